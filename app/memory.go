package app

import (
	"context"
	"sync"
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
)

// In-memory store implementations. Used by tests and by local runs without
// a Postgres instance; the mutex stands in for the database's atomicity so
// the no-lost-increment property holds here too.

type memoryUsageStore struct {
	mu      sync.Mutex
	records map[string]models.UsageRecord
}

func newMemoryUsageStore() *memoryUsageStore {
	return &memoryUsageStore{records: make(map[string]models.UsageRecord)}
}

func usageKey(identity, day string) string {
	return identity + "/" + day
}

func (s *memoryUsageStore) GetOrCreate(_ context.Context, identity, day string) (models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(identity, day)
	if rec, ok := s.records[key]; ok {
		return rec, nil
	}
	rec := models.UsageRecord{Identity: identity, Day: day, LastReset: time.Now().UTC()}
	s.records[key] = rec
	return rec, nil
}

func (s *memoryUsageStore) Add(_ context.Context, identity, day string, flash, deep int) (models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(identity, day)
	rec, ok := s.records[key]
	if !ok {
		rec = models.UsageRecord{Identity: identity, Day: day, LastReset: time.Now().UTC()}
	}
	rec.FlashRequests += flash
	rec.DeepRequests += deep
	s.records[key] = rec
	return rec, nil
}

func (s *memoryUsageStore) Read(_ context.Context, identity, day string) (models.UsageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[usageKey(identity, day)]
	return rec, ok, nil
}

func (s *memoryUsageStore) Reset(_ context.Context, identity, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[usageKey(identity, day)] = models.UsageRecord{
		Identity: identity, Day: day, LastReset: time.Now().UTC(),
	}
	return nil
}

func (s *memoryUsageStore) Delete(_ context.Context, identity, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, usageKey(identity, day))
	return nil
}

func (s *memoryUsageStore) ReadDays(_ context.Context, identity string, days []string) (map[string]models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.UsageRecord, len(days))
	for _, day := range days {
		if rec, ok := s.records[usageKey(identity, day)]; ok {
			out[day] = rec
		}
	}
	return out, nil
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]models.User)}
}

func (s *memoryUserStore) GetOrCreate(_ context.Context, id, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	user := models.User{ID: id, Email: email, Tier: models.TierFree}
	s.users[id] = user
	return user, nil
}

func (s *memoryUserStore) Get(_ context.Context, id string) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	return user, ok, nil
}

func (s *memoryUserStore) GetByStripeCustomer(_ context.Context, customerID string) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.StripeCustomerID == customerID && customerID != "" {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

func (s *memoryUserStore) SetStripeCustomer(_ context.Context, id, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errStoreUnavailable
	}
	user.StripeCustomerID = customerID
	s.users[id] = user
	return nil
}

func (s *memoryUserStore) ApplySubscription(_ context.Context, id string, state models.SubscriptionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errStoreUnavailable
	}
	user.Tier = state.Tier
	user.StripeSubscriptionID = state.SubscriptionID
	user.SubscriptionStatus = state.Status
	user.CurrentPeriodEnd = state.CurrentPeriodEnd
	user.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	s.users[id] = user
	return nil
}

func (s *memoryUserStore) ClearSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errStoreUnavailable
	}
	user.Tier = models.TierFree
	user.StripeSubscriptionID = ""
	user.SubscriptionStatus = "canceled"
	user.CurrentPeriodEnd = time.Time{}
	user.CancelAtPeriodEnd = false
	s.users[id] = user
	return nil
}
