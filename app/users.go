package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
	"github.com/JoHi36/AnkiPlus-sub001/auth"
)

// UserStore holds account and subscription state. Subscription fields are
// written only by the reconciler; account creation defaults to the free tier.
type UserStore interface {
	GetOrCreate(ctx context.Context, id, email string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, bool, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (models.User, bool, error)
	SetStripeCustomer(ctx context.Context, id, customerID string) error
	// ApplySubscription overwrites all subscription fields with the given
	// projected state.
	ApplySubscription(ctx context.Context, id string, state models.SubscriptionState) error
	// ClearSubscription downgrades to free/canceled and drops the
	// subscription id. Customer id is kept for future checkouts.
	ClearSubscription(ctx context.Context, id string) error
}

type postgresUserStore struct {
	db *sql.DB
}

func (s *postgresUserStore) GetOrCreate(ctx context.Context, id, email string) (models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, tier, last_login)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET last_login = now();
	`, id, nullIfEmpty(email), models.TierFree)
	if err != nil {
		return models.User{}, err
	}

	user, ok, err := s.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *postgresUserStore) Get(ctx context.Context, id string) (models.User, bool, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, tier, stripe_customer_id, stripe_subscription_id,
		       subscription_status, current_period_end, cancel_at_period_end
		FROM users
		WHERE id = $1;
	`, id))
}

func (s *postgresUserStore) GetByStripeCustomer(ctx context.Context, customerID string) (models.User, bool, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, tier, stripe_customer_id, stripe_subscription_id,
		       subscription_status, current_period_end, cancel_at_period_end
		FROM users
		WHERE stripe_customer_id = $1;
	`, customerID))
}

func (s *postgresUserStore) scanUser(row *sql.Row) (models.User, bool, error) {
	var (
		user      models.User
		email     sql.NullString
		custID    sql.NullString
		subID     sql.NullString
		status    sql.NullString
		periodEnd sql.NullTime
	)
	err := row.Scan(&user.ID, &email, &user.Tier, &custID, &subID, &status, &periodEnd, &user.CancelAtPeriodEnd)
	if err == sql.ErrNoRows {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	user.Email = email.String
	user.StripeCustomerID = custID.String
	user.StripeSubscriptionID = subID.String
	user.SubscriptionStatus = status.String
	if periodEnd.Valid {
		user.CurrentPeriodEnd = periodEnd.Time
	}
	return user, true, nil
}

func (s *postgresUserStore) SetStripeCustomer(ctx context.Context, id, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1
		WHERE id = $2;
	`, customerID, id)
	return err
}

func (s *postgresUserStore) ApplySubscription(ctx context.Context, id string, state models.SubscriptionState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET tier = $1,
		    stripe_subscription_id = $2,
		    subscription_status = $3,
		    current_period_end = $4,
		    cancel_at_period_end = $5
		WHERE id = $6;
	`, state.Tier, state.SubscriptionID, state.Status, nullIfZeroTime(state.CurrentPeriodEnd), state.CancelAtPeriodEnd, id)
	return err
}

func (s *postgresUserStore) ClearSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET tier = $1,
		    stripe_subscription_id = NULL,
		    subscription_status = 'canceled',
		    current_period_end = NULL,
		    cancel_at_period_end = false
		WHERE id = $2;
	`, models.TierFree, id)
	return err
}

// UpsertUserFromClaims creates a user row on first authenticated request.
func UpsertUserFromClaims(ctx context.Context, claims *auth.Claims) error {
	if users == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}
	_, err := users.GetOrCreate(ctx, claims.Subject, claims.Email)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullIfZeroTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
