package app

import (
	"context"
	"log"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
)

// MigrateAnonymousUsage transfers a device's current-day usage onto a newly
// authenticated user, then removes the anonymous record. Historical days are
// not migrated; anonymous usage is ephemeral beyond today.
//
// The transfer is an atomic add of the anonymous counts onto the user's
// record, never a read-add-write. Deletion runs only after the add is
// durable and is best-effort: a delete failure is logged rather than
// returned, so a client retry cannot be provoked into double-counting. A
// second call finds no anonymous record and is a no-op.
func MigrateAnonymousUsage(ctx context.Context, deviceID, userID string) (models.MigrationResult, error) {
	if usage == nil {
		return models.MigrationResult{}, errStoreUnavailable
	}

	today := currentDayKey()
	identity := deviceIdentity(deviceID)

	rec, ok, err := usage.Read(ctx, identity, today)
	if err != nil {
		return models.MigrationResult{}, err
	}
	if !ok {
		return models.MigrationResult{}, nil
	}

	if rec.FlashRequests > 0 || rec.DeepRequests > 0 {
		if _, err := usage.Add(ctx, userID, today, rec.FlashRequests, rec.DeepRequests); err != nil {
			return models.MigrationResult{}, err
		}
	}

	if err := usage.Delete(ctx, identity, today); err != nil {
		log.Printf("failed to delete anonymous usage after migration device=%s err=%v", deviceID, err)
	}

	return models.MigrationResult{
		FlashRequests: rec.FlashRequests,
		DeepRequests:  rec.DeepRequests,
	}, nil
}
