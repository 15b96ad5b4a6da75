package app

import (
	"context"
	"log"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
)

// classForMode maps the chat proxy's mode to a request class:
// "detailed" runs deep mode, everything else is flash.
func classForMode(mode string) models.RequestClass {
	if mode == "detailed" {
		return models.ClassDeep
	}
	return models.ClassFlash
}

func deniedResult(class models.RequestClass, limit int) models.QuotaCheckResult {
	return models.QuotaCheckResult{Allowed: false, Remaining: 0, Limit: limit, Type: class}
}

// CheckQuota decides whether an authenticated user may make a request of
// the given mode. It never increments; consuming quota is the caller's
// post-success side effect. Any lookup failure denies the request - quota
// correctness bounds spend against the paid upstream AI provider, so the
// gate fails closed.
func CheckQuota(ctx context.Context, userID, mode string) models.QuotaCheckResult {
	class := classForMode(mode)

	if usage == nil || users == nil {
		log.Printf("quota check with uninitialized stores user=%s", userID)
		return deniedResult(class, 0)
	}

	user, ok, err := users.Get(ctx, userID)
	if err != nil {
		log.Printf("quota check user lookup failed user=%s err=%v", userID, err)
		return deniedResult(class, 0)
	}
	if !ok {
		log.Printf("quota check for unknown user=%s", userID)
		return deniedResult(class, 0)
	}

	limits := limitsFor(user.Tier)

	today := currentDayKey()
	rec, err := usage.GetOrCreate(ctx, userID, today)
	if err != nil {
		log.Printf("quota check usage lookup failed user=%s err=%v", userID, err)
		return deniedResult(class, 0)
	}

	rec, err = rolloverIfStale(ctx, userID, today, rec)
	if err != nil {
		log.Printf("quota rollover failed user=%s err=%v", userID, err)
		return deniedResult(class, 0)
	}

	return evaluate(limits, rec, class)
}

// CheckAnonymousQuota decides for a device-based identity. Anonymous users
// get a fixed flash allowance and no deep mode.
func CheckAnonymousQuota(ctx context.Context, deviceID, mode string) models.QuotaCheckResult {
	class := classForMode(mode)

	if class == models.ClassDeep {
		return deniedResult(models.ClassDeep, AnonymousDeepLimit)
	}

	if usage == nil {
		log.Printf("anonymous quota check with uninitialized store device=%s", deviceID)
		return deniedResult(class, 0)
	}

	identity := deviceIdentity(deviceID)
	today := currentDayKey()
	rec, err := usage.GetOrCreate(ctx, identity, today)
	if err != nil {
		log.Printf("anonymous quota check failed device=%s err=%v", deviceID, err)
		return deniedResult(class, 0)
	}

	rec, err = rolloverIfStale(ctx, identity, today, rec)
	if err != nil {
		log.Printf("anonymous quota rollover failed device=%s err=%v", deviceID, err)
		return deniedResult(class, 0)
	}

	return evaluate(tierLimits{Flash: AnonymousFlashLimit, Deep: AnonymousDeepLimit}, rec, class)
}

// rolloverIfStale forces a reset when the record's last reset predates
// today's key. Rollover is entirely lazy and request-driven; there is no
// background sweep, so this check is what keeps yesterday's exhausted quota
// from leaking into today.
func rolloverIfStale(ctx context.Context, identity, today string, rec models.UsageRecord) (models.UsageRecord, error) {
	if dayKey(rec.LastReset) == today {
		return rec, nil
	}
	log.Printf("resetting stale usage identity=%s day=%s lastReset=%s", identity, today, dayKey(rec.LastReset))
	if err := usage.Reset(ctx, identity, today); err != nil {
		return models.UsageRecord{}, err
	}
	return usage.GetOrCreate(ctx, identity, today)
}

// remainingFor computes the remaining allowance for one class, preserving
// the unlimited sentinel and clamping exhausted counts to zero.
func remainingFor(limit, used int) int {
	if limit == unlimited {
		return unlimited
	}
	remaining := limit - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// evaluate applies limits to a usage record for one request class.
func evaluate(limits tierLimits, rec models.UsageRecord, class models.RequestClass) models.QuotaCheckResult {
	limit := limits.Flash
	used := rec.FlashRequests
	if class == models.ClassDeep {
		limit = limits.Deep
		used = rec.DeepRequests
	}

	if limit == unlimited {
		return models.QuotaCheckResult{Allowed: true, Remaining: unlimited, Limit: unlimited, Type: class}
	}

	remaining := remainingFor(limit, used)
	return models.QuotaCheckResult{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     limit,
		Type:      class,
	}
}

// RecordUsage adds one request of the given class to today's counters.
// Called by the chat proxy only after the gated AI call succeeded, so
// cancelled or failed calls never consume quota. Returns the new count.
func RecordUsage(ctx context.Context, identity, mode string) (int, error) {
	if usage == nil {
		return 0, errStoreUnavailable
	}

	class := classForMode(mode)
	flash, deep := 1, 0
	if class == models.ClassDeep {
		flash, deep = 0, 1
	}

	rec, err := usage.Add(ctx, identity, currentDayKey(), flash, deep)
	if err != nil {
		return 0, err
	}
	if class == models.ClassDeep {
		return rec.DeepRequests, nil
	}
	return rec.FlashRequests, nil
}
