package app

import (
	"log"
	"net/http"
	"time"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
	"github.com/JoHi36/AnkiPlus-sub001/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// CheckQuotaEndpoint is consumed by the chat proxy before it calls the AI
// provider. Authenticated callers are gated by tier; otherwise the request
// must carry a deviceId and is gated by the anonymous limits. The decision
// is always a 200; the allowed flag carries the verdict.
func CheckQuotaEndpoint(c *gin.Context) {
	var req models.QuotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
		c.JSON(http.StatusOK, CheckQuota(c.Request.Context(), claims.Subject, req.Mode))
		return
	}
	if req.DeviceID != "" {
		c.JSON(http.StatusOK, CheckAnonymousQuota(c.Request.Context(), req.DeviceID, req.Mode))
		return
	}

	c.JSON(http.StatusUnauthorized, gin.H{"error": errIdentityUnresolved.Error()})
}

// ConsumeQuotaEndpoint records one successful gated call. The chat proxy
// calls it only after the AI request completed, so failed or cancelled
// calls never consume quota.
func ConsumeQuotaEndpoint(c *gin.Context) {
	var req models.QuotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity := ""
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
		identity = claims.Subject
	} else if req.DeviceID != "" {
		identity = deviceIdentity(req.DeviceID)
	} else {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errIdentityUnresolved.Error()})
		return
	}

	count, err := RecordUsage(c.Request.Context(), identity, req.Mode)
	if err != nil {
		log.Printf("record usage failed identity=%s err=%v", identity, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count, "type": classForMode(req.Mode)})
}

// GetQuota returns the authenticated user's quota status for the dashboard.
func GetQuota(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if usage == nil || users == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store not initialized"})
		return
	}

	user, err := users.GetOrCreate(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("quota status user load failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	today := currentDayKey()
	rec, err := usage.GetOrCreate(c.Request.Context(), claims.Subject, today)
	if err != nil {
		log.Printf("quota status usage load failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	rec, err = rolloverIfStale(c.Request.Context(), claims.Subject, today, rec)
	if err != nil {
		log.Printf("quota status rollover failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}

	limits := limitsFor(user.Tier)

	c.JSON(http.StatusOK, models.QuotaStatusResponse{
		Tier: user.Tier,
		Flash: models.ClassUsage{
			Used:      rec.FlashRequests,
			Limit:     limits.Flash,
			Remaining: remainingFor(limits.Flash, rec.FlashRequests),
		},
		Deep: models.ClassUsage{
			Used:      rec.DeepRequests,
			Limit:     limits.Deep,
			Remaining: remainingFor(limits.Deep, rec.DeepRequests),
		},
		ResetAt: nextResetInstant().Format(time.RFC3339),
	})
}

// GetUsageHistory returns the last 30 daily records for dashboard charts,
// oldest first, with totals and the current usage streak.
func GetUsageHistory(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if usage == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store not initialized"})
		return
	}

	days := lastNDayKeys(30)
	records, err := usage.ReadDays(c.Request.Context(), claims.Subject, days)
	if err != nil {
		log.Printf("usage history load failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage history"})
		return
	}

	// days is today-first; build the response oldest-first.
	daily := make([]models.DailyUsage, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		entry := models.DailyUsage{Date: day}
		if rec, ok := records[day]; ok {
			entry.Flash = rec.FlashRequests
			entry.Deep = rec.DeepRequests
		}
		daily = append(daily, entry)
	}

	totalFlash, totalDeep := 0, 0
	for _, d := range daily {
		totalFlash += d.Flash
		totalDeep += d.Deep
	}

	// Streak: consecutive most-recent days with any usage, walking backward
	// from today.
	streak := 0
	for i := len(daily) - 1; i >= 0; i-- {
		if daily[i].Flash > 0 || daily[i].Deep > 0 {
			streak++
		} else {
			break
		}
	}

	c.JSON(http.StatusOK, models.UsageHistoryResponse{
		DailyUsage: daily,
		TotalFlash: totalFlash,
		TotalDeep:  totalDeep,
		Streak:     streak,
	})
}

// MigrateAnonymous transfers a device's current-day usage into the
// authenticated account. Triggered once by the client immediately after
// sign-in; the result feeds a one-time "we migrated N requests" notice.
func MigrateAnonymous(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req models.MigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id is required"})
		return
	}

	result, err := MigrateAnonymousUsage(c.Request.Context(), req.DeviceID, claims.Subject)
	if err != nil {
		log.Printf("migration failed user=%s device=%s err=%v", claims.Subject, req.DeviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to migrate anonymous usage"})
		return
	}

	log.Printf("anonymous usage migrated user=%s device=%s flash=%d deep=%d",
		claims.Subject, req.DeviceID, result.FlashRequests, result.DeepRequests)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"migrated": result,
	})
}
