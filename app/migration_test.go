package app

import (
	"context"
	"testing"
)

func TestMigrateAnonymousUsage(t *testing.T) {
	usageStore, _ := withMemoryStores(t)
	ctx := context.Background()
	day := currentDayKey()

	if _, err := usageStore.Add(ctx, deviceIdentity("device-1"), day, 2, 1); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	result, err := MigrateAnonymousUsage(ctx, "device-1", "user-1")
	if err != nil {
		t.Fatalf("MigrateAnonymousUsage error = %v", err)
	}
	if result.FlashRequests != 2 || result.DeepRequests != 1 {
		t.Fatalf("migrated = %+v, want {2 1}", result)
	}

	rec, ok, _ := usageStore.Read(ctx, "user-1", day)
	if !ok || rec.FlashRequests != 2 || rec.DeepRequests != 1 {
		t.Fatalf("user record after migration = %+v, want {2 1}", rec)
	}
	if _, ok, _ := usageStore.Read(ctx, deviceIdentity("device-1"), day); ok {
		t.Fatalf("anonymous record still exists after migration")
	}
}

func TestMigrateAnonymousUsageAddsToExisting(t *testing.T) {
	usageStore, _ := withMemoryStores(t)
	ctx := context.Background()
	day := currentDayKey()

	if _, err := usageStore.Add(ctx, "user-1", day, 4, 1); err != nil {
		t.Fatalf("Add error = %v", err)
	}
	if _, err := usageStore.Add(ctx, deviceIdentity("device-1"), day, 2, 0); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	if _, err := MigrateAnonymousUsage(ctx, "device-1", "user-1"); err != nil {
		t.Fatalf("MigrateAnonymousUsage error = %v", err)
	}

	rec, ok, _ := usageStore.Read(ctx, "user-1", day)
	if !ok || rec.FlashRequests != 6 || rec.DeepRequests != 1 {
		t.Fatalf("user record after migration = %+v, want {6 1}", rec)
	}
}

func TestMigrateAnonymousUsageIdempotent(t *testing.T) {
	usageStore, _ := withMemoryStores(t)
	ctx := context.Background()
	day := currentDayKey()

	if _, err := usageStore.Add(ctx, deviceIdentity("device-1"), day, 3, 2); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	if _, err := MigrateAnonymousUsage(ctx, "device-1", "user-1"); err != nil {
		t.Fatalf("first migration error = %v", err)
	}

	// The anonymous record is gone, so a second run must be a no-op.
	result, err := MigrateAnonymousUsage(ctx, "device-1", "user-1")
	if err != nil {
		t.Fatalf("second migration error = %v", err)
	}
	if result.FlashRequests != 0 || result.DeepRequests != 0 {
		t.Fatalf("second migration = %+v, want zero counts", result)
	}

	rec, ok, _ := usageStore.Read(ctx, "user-1", day)
	if !ok || rec.FlashRequests != 3 || rec.DeepRequests != 2 {
		t.Fatalf("user record after double migration = %+v, want {3 2}", rec)
	}
}

func TestMigrateAnonymousUsageNoRecord(t *testing.T) {
	withMemoryStores(t)

	result, err := MigrateAnonymousUsage(context.Background(), "never-used", "user-1")
	if err != nil {
		t.Fatalf("MigrateAnonymousUsage error = %v", err)
	}
	if result.FlashRequests != 0 || result.DeepRequests != 0 {
		t.Fatalf("migration of absent record = %+v, want zeros", result)
	}
}
