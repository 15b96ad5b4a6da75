package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/JoHi36/AnkiPlus-sub001/app/config"
	"github.com/JoHi36/AnkiPlus-sub001/app/models"
	"github.com/JoHi36/AnkiPlus-sub001/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	stripesub "github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreateCheckoutSession starts a Stripe Checkout Session for the
// authenticated user for the requested paid tier.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req models.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Tier != models.Tier1 && req.Tier != models.Tier2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier, must be tier1 or tier2"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe checkout config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	priceID := cfg.Stripe.PriceTier1
	if req.Tier == models.Tier2 {
		priceID = cfg.Stripe.PriceTier2
	}
	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if priceID == "" || frontendURL == "" {
		log.Printf("missing Stripe config: price_id=%t frontend_url=%t", priceID != "", frontendURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("ensureStripeCustomer failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/dashboard/subscription?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(frontendURL + "/dashboard/subscription?canceled=true"),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"userId": claims.Subject,
			},
		},
	}
	// Session metadata carries the owner so the webhook and verify paths can
	// resolve and authorize it.
	params.AddMetadata("userId", claims.Subject)
	params.AddMetadata("tier", string(req.Tier))

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// StripeWebhook handles Stripe subscription events and reconciles user
// tier/subscription state. Stripe retries failed deliveries, so every
// branch must be safe to replay; state is always recomputed from the
// current subscription object, never applied as a delta.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		if err := handleCheckoutCompleted(c, sess); err != nil {
			return
		}

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		if err := handleSubscriptionUpdate(c, sub); err != nil {
			return
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if customerID == "" {
			log.Printf("stripe subscription missing customer id sub=%s", sub.ID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}
		if err := downgradeForCustomer(c.Request.Context(), customerID); err != nil {
			log.Printf("stripe downgrade failed customer=%s err=%v", customerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}

	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			log.Printf("stripe invoice unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice payload"})
			return
		}
		customerID := ""
		if inv.Customer != nil {
			customerID = inv.Customer.ID
		}
		log.Printf("invoice paid customer=%s invoice=%s amount=%d %s", customerID, inv.ID, inv.AmountPaid, inv.Currency)

	default:
		// Intentionally ignore unhandled events.
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func handleCheckoutCompleted(c *gin.Context, sess stripe.CheckoutSession) error {
	userID := sess.Metadata["userId"]
	if userID == "" {
		log.Printf("stripe session missing userId metadata session=%s", sess.ID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session owner"})
		return errIdentityUnresolved
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		log.Printf("stripe session missing subscription session=%s", sess.ID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing subscription id"})
		return errSubscriptionMissing
	}

	// Re-fetch the subscription so the write reflects current state even if
	// this event was delayed or replayed.
	sub, err := stripesub.Get(sess.Subscription.ID, nil)
	if err != nil {
		log.Printf("stripe subscription fetch failed sub=%s err=%v", sess.Subscription.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return err
	}

	if err := applySubscriptionForUser(c.Request.Context(), userID, sub); err != nil {
		log.Printf("stripe checkout reconcile failed user=%s err=%v", userID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, errUnknownBillingPrice) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "failed to update user"})
		return err
	}
	return nil
}

func handleSubscriptionUpdate(c *gin.Context, sub stripe.Subscription) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" {
		log.Printf("stripe subscription missing customer id sub=%s", sub.ID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
		return errIdentityUnresolved
	}

	// The event payload may be stale. Re-fetch the subscription's current
	// state so a delayed "updated" delivery cannot overwrite a newer
	// cancellation.
	fresh, err := stripesub.Get(sub.ID, nil)
	if err != nil {
		log.Printf("stripe subscription fetch failed sub=%s err=%v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return err
	}

	if err := applySubscriptionForCustomer(c.Request.Context(), customerID, fresh); err != nil {
		log.Printf("stripe subscription reconcile failed customer=%s err=%v", customerID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, errUnknownBillingPrice) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "failed to update user"})
		return err
	}
	return nil
}

// VerifyCheckoutSession is the synchronous fallback for webhook latency:
// the client submits its checkout session id right after returning from
// Stripe, and the handler applies the same reconciliation as the webhook.
func VerifyCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if users == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store not initialized"})
		return
	}

	var req models.VerifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("subscription")
	sess, err := session.Get(req.SessionID, params)
	if err != nil {
		log.Printf("stripe session fetch failed session=%s err=%v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	// One user must not be able to redeem another's session id.
	if sess.Metadata["userId"] != claims.Subject {
		log.Printf("checkout session ownership mismatch session=%s owner=%s caller=%s",
			req.SessionID, sess.Metadata["userId"], claims.Subject)
		c.JSON(http.StatusForbidden, gin.H{"error": "session does not belong to current user"})
		return
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Printf("checkout session not paid session=%s status=%s", req.SessionID, sess.PaymentStatus)
		c.JSON(http.StatusBadRequest, gin.H{"error": "session payment not completed"})
		return
	}

	if sess.Subscription == nil || sess.Subscription.ID == "" {
		log.Printf("checkout session missing subscription session=%s", req.SessionID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "no subscription found in session"})
		return
	}

	// Same convergent write as the webhook path: re-fetch the current
	// subscription and project it.
	sub, err := stripesub.Get(sess.Subscription.ID, nil)
	if err != nil {
		log.Printf("stripe subscription fetch failed sub=%s err=%v", sess.Subscription.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	if sess.Customer != nil && sess.Customer.ID != "" {
		if err := users.SetStripeCustomer(c.Request.Context(), claims.Subject, sess.Customer.ID); err != nil {
			log.Printf("failed to store stripe customer user=%s err=%v", claims.Subject, err)
		}
	}

	state, err := subscriptionStateFor(sub)
	if err != nil {
		log.Printf("verify session projection failed session=%s err=%v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown subscription tier"})
		return
	}
	if err := users.ApplySubscription(c.Request.Context(), claims.Subject, state); err != nil {
		log.Printf("verify session apply failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	log.Printf("subscription verified user=%s tier=%s status=%s", claims.Subject, state.Tier, state.Status)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"tier":               state.Tier,
		"subscriptionStatus": state.Status,
	})
}

// CreatePortalSession creates a Stripe Customer Portal session for the
// authenticated user.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if users == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store not initialized"})
		return
	}

	user, found, err := users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("portal lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if !found || user.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("portal config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/dashboard/subscription"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}
