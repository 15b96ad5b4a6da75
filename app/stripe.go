package app

import (
	"context"
	"errors"
	"log"

	"github.com/JoHi36/AnkiPlus-sub001/app/config"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key from the environment.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	stripe.Key = cfg.Stripe.SecretKey
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given
// user. It uses the stored customer id when present, otherwise creates a
// new customer with metadata userId = <userID> and stores that id.
func ensureStripeCustomer(ctx context.Context, userID, email string) (string, error) {
	if users == nil {
		return "", errStoreUnavailable
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}

	user, err := users.GetOrCreate(ctx, userID, email)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"userId": userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := users.SetStripeCustomer(ctx, userID, cust.ID); err != nil {
		return "", err
	}

	log.Printf("created stripe customer user=%s customer=%s", userID, cust.ID)
	return cust.ID, nil
}
