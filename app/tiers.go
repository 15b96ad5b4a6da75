// Package app enforces per-tier daily quotas on flash and deep AI requests.
package app

import (
	"log"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
)

// unlimited is the sentinel limit value. It must never be compared with <
// against usage; evaluate() special-cases it.
const unlimited = -1

// Anonymous (device-based) limits. Deep mode requires an account.
const (
	AnonymousFlashLimit = 20
	AnonymousDeepLimit  = 0
)

type tierLimits struct {
	Flash int
	Deep  int
}

// limitsFor maps a subscription tier to daily quota limits. Limits are never
// persisted, always derived here. An unknown tier gets free limits rather
// than an error so a corrupted tier field cannot grant paid quota.
func limitsFor(tier models.Tier) tierLimits {
	switch tier {
	case models.TierFree:
		return tierLimits{Flash: unlimited, Deep: 3}
	case models.Tier1:
		return tierLimits{Flash: unlimited, Deep: 30}
	case models.Tier2:
		// Safety caps for the top tier.
		return tierLimits{Flash: 500, Deep: 500}
	default:
		log.Printf("unknown tier %q, falling back to free limits", tier)
		return tierLimits{Flash: unlimited, Deep: 3}
	}
}
