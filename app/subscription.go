package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/app/config"
	"github.com/JoHi36/AnkiPlus-sub001/app/models"

	"github.com/stripe/stripe-go/v79"
)

// Two independent writers update subscription state: the asynchronous
// Stripe webhook and the synchronous verify-session fallback. Both apply
// the same projection of the then-current subscription object, so whichever
// runs last (or both, in either order) converges to the same row.

// tierFromPriceID resolves a Stripe price to a tier via configuration. An
// unknown price is an error, never a defaulted tier, since defaulting could
// silently grant or deny paid entitlements.
func tierFromPriceID(priceID string) (models.Tier, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return "", err
	}
	switch {
	case priceID != "" && priceID == cfg.Stripe.PriceTier1:
		return models.Tier1, nil
	case priceID != "" && priceID == cfg.Stripe.PriceTier2:
		return models.Tier2, nil
	default:
		return "", fmt.Errorf("%w: %s", errUnknownBillingPrice, priceID)
	}
}

// subscriptionStateFor projects a Stripe subscription onto the full target
// user state. Pure: no store or network access.
func subscriptionStateFor(sub *stripe.Subscription) (models.SubscriptionState, error) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return models.SubscriptionState{}, errSubscriptionNoPrices
	}

	tier, err := tierFromPriceID(sub.Items.Data[0].Price.ID)
	if err != nil {
		return models.SubscriptionState{}, err
	}

	var periodEnd time.Time
	if sub.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	return models.SubscriptionState{
		Tier:              tier,
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  periodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

// applySubscriptionForUser projects and writes subscription state for a
// known user id.
func applySubscriptionForUser(ctx context.Context, userID string, sub *stripe.Subscription) error {
	if users == nil {
		return errStoreUnavailable
	}

	state, err := subscriptionStateFor(sub)
	if err != nil {
		return err
	}

	if err := users.ApplySubscription(ctx, userID, state); err != nil {
		return err
	}
	log.Printf("subscription applied user=%s tier=%s status=%s sub=%s", userID, state.Tier, state.Status, state.SubscriptionID)
	return nil
}

// applySubscriptionForCustomer resolves the owning user by Stripe customer
// id, then applies the same projection.
func applySubscriptionForCustomer(ctx context.Context, customerID string, sub *stripe.Subscription) error {
	if users == nil {
		return errStoreUnavailable
	}

	user, ok, err := users.GetByStripeCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no user for stripe customer %s", customerID)
	}
	return applySubscriptionForUser(ctx, user.ID, sub)
}

// downgradeForCustomer handles a deleted subscription: tier free, status
// canceled, subscription id cleared. The user row itself is never deleted.
func downgradeForCustomer(ctx context.Context, customerID string) error {
	if users == nil {
		return errStoreUnavailable
	}

	user, ok, err := users.GetByStripeCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no user for stripe customer %s", customerID)
	}

	if err := users.ClearSubscription(ctx, user.ID); err != nil {
		return err
	}
	log.Printf("subscription deleted, downgraded to free user=%s", user.ID)
	return nil
}
