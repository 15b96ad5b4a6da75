package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"

	"github.com/lib/pq"
)

// UsageStore is the per-identity, per-day request ledger. Identities are
// user ids or device ids; each owns at most one record per UTC day.
type UsageStore interface {
	// GetOrCreate returns the record for (identity, day), creating a zeroed
	// one if absent. Safe under concurrent first access: both racers write
	// zero counts, so whichever create survives is canonical.
	GetOrCreate(ctx context.Context, identity, day string) (models.UsageRecord, error)
	// Add atomically adds the given counts, creating the record in the same
	// statement when absent, and returns the updated record. Never a
	// read-modify-write in application code.
	Add(ctx context.Context, identity, day string, flash, deep int) (models.UsageRecord, error)
	// Read is a non-mutating lookup.
	Read(ctx context.Context, identity, day string) (models.UsageRecord, bool, error)
	// Reset overwrites the record with zero counts and a fresh last_reset.
	Reset(ctx context.Context, identity, day string) error
	// Delete removes the record. Used only for anonymous records after
	// migration.
	Delete(ctx context.Context, identity, day string) error
	// ReadDays fetches the records for the given days in one query, keyed by
	// day. Missing days are simply absent from the map.
	ReadDays(ctx context.Context, identity string, days []string) (map[string]models.UsageRecord, error)
}

// postgresUsageStore backs the ledger with a usage_daily table. All
// mutations are single statements so concurrent requests never lose an
// increment.
type postgresUsageStore struct {
	db *sql.DB
}

func (s *postgresUsageStore) GetOrCreate(ctx context.Context, identity, day string) (models.UsageRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_daily (identity, day, flash_requests, deep_requests, last_reset)
		VALUES ($1, $2, 0, 0, now())
		ON CONFLICT (identity, day) DO NOTHING;
	`, identity, day)
	if err != nil {
		return models.UsageRecord{}, err
	}

	rec, ok, err := s.Read(ctx, identity, day)
	if err != nil {
		return models.UsageRecord{}, err
	}
	if !ok {
		// Row vanished between insert and read; treat as zeroed today.
		return models.UsageRecord{Identity: identity, Day: day, LastReset: time.Now().UTC()}, nil
	}
	return rec, nil
}

func (s *postgresUsageStore) Add(ctx context.Context, identity, day string, flash, deep int) (models.UsageRecord, error) {
	rec := models.UsageRecord{Identity: identity, Day: day}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_daily (identity, day, flash_requests, deep_requests, last_reset)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (identity, day) DO UPDATE SET
			flash_requests = usage_daily.flash_requests + EXCLUDED.flash_requests,
			deep_requests  = usage_daily.deep_requests  + EXCLUDED.deep_requests
		RETURNING flash_requests, deep_requests, last_reset;
	`, identity, day, flash, deep).Scan(&rec.FlashRequests, &rec.DeepRequests, &rec.LastReset)
	if err != nil {
		return models.UsageRecord{}, err
	}
	return rec, nil
}

func (s *postgresUsageStore) Read(ctx context.Context, identity, day string) (models.UsageRecord, bool, error) {
	var rec models.UsageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, day, flash_requests, deep_requests, last_reset
		FROM usage_daily
		WHERE identity = $1 AND day = $2;
	`, identity, day).Scan(&rec.Identity, &rec.Day, &rec.FlashRequests, &rec.DeepRequests, &rec.LastReset)
	if err == sql.ErrNoRows {
		return models.UsageRecord{}, false, nil
	}
	if err != nil {
		return models.UsageRecord{}, false, err
	}
	return rec, true, nil
}

func (s *postgresUsageStore) Reset(ctx context.Context, identity, day string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_daily (identity, day, flash_requests, deep_requests, last_reset)
		VALUES ($1, $2, 0, 0, now())
		ON CONFLICT (identity, day) DO UPDATE SET
			flash_requests = 0,
			deep_requests  = 0,
			last_reset     = now();
	`, identity, day)
	return err
}

func (s *postgresUsageStore) Delete(ctx context.Context, identity, day string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM usage_daily
		WHERE identity = $1 AND day = $2;
	`, identity, day)
	return err
}

func (s *postgresUsageStore) ReadDays(ctx context.Context, identity string, days []string) (map[string]models.UsageRecord, error) {
	out := make(map[string]models.UsageRecord, len(days))
	if len(days) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, day, flash_requests, deep_requests, last_reset
		FROM usage_daily
		WHERE identity = $1 AND day = ANY($2);
	`, identity, pq.Array(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.UsageRecord
		if err := rows.Scan(&rec.Identity, &rec.Day, &rec.FlashRequests, &rec.DeepRequests, &rec.LastReset); err != nil {
			return nil, err
		}
		out[rec.Day] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// deviceIdentity namespaces anonymous device ids away from user ids in the
// shared ledger.
func deviceIdentity(deviceID string) string {
	return "device:" + deviceID
}
