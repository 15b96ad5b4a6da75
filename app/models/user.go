// Package models defines user tier and subscription tracking fields.
package models

import "time"

type Tier string

const (
	TierFree Tier = "free"
	Tier1    Tier = "tier1"
	Tier2    Tier = "tier2"
)

type User struct {
	ID                   string    `db:"id"`
	Email                string    `db:"email"`
	Tier                 Tier      `db:"tier"`
	StripeCustomerID     string    `db:"stripe_customer_id"`
	StripeSubscriptionID string    `db:"stripe_subscription_id"`
	SubscriptionStatus   string    `db:"subscription_status"`
	CurrentPeriodEnd     time.Time `db:"current_period_end"`
	CancelAtPeriodEnd    bool      `db:"cancel_at_period_end"`
}

// SubscriptionState is the full target state projected from a Stripe
// subscription object. The reconciler always writes all of these fields
// together so repeated or reordered writes converge.
type SubscriptionState struct {
	Tier              Tier
	SubscriptionID    string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}
