package app

import "time"

// dayKeyLayout is the canonical UTC date key for one quota period.
const dayKeyLayout = "2006-01-02"

func dayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// currentDayKey returns today's UTC date key. All identities share the same
// reset boundary at UTC midnight regardless of client timezone.
func currentDayKey() string {
	return dayKey(time.Now())
}

// nextResetInstant returns the next UTC midnight. Advisory only ("resets in
// Xh" displays); gating always compares stored day keys, not elapsed time.
func nextResetInstant() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// lastNDayKeys returns n day keys walking backward from today (today first).
func lastNDayKeys(n int) []string {
	today := time.Now().UTC()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, dayKey(today.AddDate(0, 0, -i)))
	}
	return keys
}
