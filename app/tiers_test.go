package app

import (
	"testing"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
)

func TestLimitsFor(t *testing.T) {
	cases := []struct {
		name  string
		tier  models.Tier
		flash int
		deep  int
	}{
		{"free", models.TierFree, unlimited, 3},
		{"tier1", models.Tier1, unlimited, 30},
		{"tier2", models.Tier2, 500, 500},
		{"unknown falls back to free", models.Tier("platinum"), unlimited, 3},
		{"empty falls back to free", models.Tier(""), unlimited, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limits := limitsFor(tc.tier)
			if limits.Flash != tc.flash || limits.Deep != tc.deep {
				t.Fatalf("limitsFor(%q) = {%d, %d}, want {%d, %d}",
					tc.tier, limits.Flash, limits.Deep, tc.flash, tc.deep)
			}
			if limits.Deep < 0 && limits.Deep != unlimited {
				t.Fatalf("limitsFor(%q) deep limit %d is neither non-negative nor the sentinel", tc.tier, limits.Deep)
			}
		})
	}
}
