package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JoHi36/AnkiPlus-sub001/app/models"
	"github.com/JoHi36/AnkiPlus-sub001/auth"

	"github.com/gin-gonic/gin"
)

// asUser injects verified claims the way the auth middleware would.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithClaims(c.Request.Context(), &auth.Claims{Subject: userID, Email: userID + "@example.com"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestGetQuota(t *testing.T) {
	usageStore, userStore := withMemoryStores(t)
	ctx := context.Background()
	seedUser(t, userStore, "user-1", models.Tier1)
	if _, err := usageStore.Add(ctx, "user-1", currentDayKey(), 7, 4); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	router := gin.New()
	router.GET("/api/user/quota", asUser("user-1"), GetQuota)

	req := httptest.NewRequest(http.MethodGet, "/api/user/quota", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var status models.QuotaStatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if status.Tier != models.Tier1 {
		t.Fatalf("tier = %q, want tier1", status.Tier)
	}
	if status.Flash.Used != 7 || status.Flash.Limit != -1 || status.Flash.Remaining != -1 {
		t.Fatalf("flash = %+v", status.Flash)
	}
	if status.Deep.Used != 4 || status.Deep.Limit != 30 || status.Deep.Remaining != 26 {
		t.Fatalf("deep = %+v", status.Deep)
	}
	if status.ResetAt == "" {
		t.Fatalf("missing resetAt")
	}
}

func TestGetQuotaCreatesUser(t *testing.T) {
	_, userStore := withMemoryStores(t)

	router := gin.New()
	router.GET("/api/user/quota", asUser("brand-new"), GetQuota)

	req := httptest.NewRequest(http.MethodGet, "/api/user/quota", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	user, ok, _ := userStore.Get(context.Background(), "brand-new")
	if !ok || user.Tier != models.TierFree {
		t.Fatalf("first request should create a free-tier user, got %+v ok=%v", user, ok)
	}
}

func TestGetUsageHistory(t *testing.T) {
	usageStore, userStore := withMemoryStores(t)
	ctx := context.Background()
	seedUser(t, userStore, "user-1", models.TierFree)

	days := lastNDayKeys(5)
	// Usage today and yesterday, a gap before that: streak of 2.
	if _, err := usageStore.Add(ctx, "user-1", days[0], 2, 1); err != nil {
		t.Fatalf("Add error = %v", err)
	}
	if _, err := usageStore.Add(ctx, "user-1", days[1], 3, 0); err != nil {
		t.Fatalf("Add error = %v", err)
	}
	if _, err := usageStore.Add(ctx, "user-1", days[3], 1, 1); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	router := gin.New()
	router.GET("/api/user/usage-history", asUser("user-1"), GetUsageHistory)

	req := httptest.NewRequest(http.MethodGet, "/api/user/usage-history", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var history models.UsageHistoryResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &history); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(history.DailyUsage) != 30 {
		t.Fatalf("expected 30 days, got %d", len(history.DailyUsage))
	}
	last := history.DailyUsage[len(history.DailyUsage)-1]
	if last.Date != days[0] || last.Flash != 2 || last.Deep != 1 {
		t.Fatalf("last entry = %+v, want today's usage", last)
	}
	if history.TotalFlash != 6 || history.TotalDeep != 2 {
		t.Fatalf("totals = (%d, %d), want (6, 2)", history.TotalFlash, history.TotalDeep)
	}
	if history.Streak != 2 {
		t.Fatalf("streak = %d, want 2", history.Streak)
	}
}

func TestCheckQuotaEndpointAnonymous(t *testing.T) {
	withMemoryStores(t)

	router := gin.New()
	router.POST("/api/quota/check", CheckQuotaEndpoint)

	resp := postJSON(t, router, "/api/quota/check", models.QuotaCheckRequest{Mode: "compact", DeviceID: "device-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var result models.QuotaCheckResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !result.Allowed || result.Limit != AnonymousFlashLimit {
		t.Fatalf("anonymous check = %+v", result)
	}
}

func TestCheckQuotaEndpointNoIdentity(t *testing.T) {
	withMemoryStores(t)

	router := gin.New()
	router.POST("/api/quota/check", CheckQuotaEndpoint)

	resp := postJSON(t, router, "/api/quota/check", models.QuotaCheckRequest{Mode: "compact"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.Code)
	}
}

func TestConsumeQuotaEndpoint(t *testing.T) {
	usageStore, _ := withMemoryStores(t)

	router := gin.New()
	router.POST("/api/quota/consume", asUser("user-1"), ConsumeQuotaEndpoint)

	resp := postJSON(t, router, "/api/quota/consume", models.QuotaCheckRequest{Mode: "detailed"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Count int                 `json:"count"`
		Type  models.RequestClass `json:"type"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Count != 1 || body.Type != models.ClassDeep {
		t.Fatalf("consume = %+v", body)
	}

	rec, ok, _ := usageStore.Read(context.Background(), "user-1", currentDayKey())
	if !ok || rec.DeepRequests != 1 {
		t.Fatalf("ledger after consume = %+v", rec)
	}
}

func TestMigrateAnonymousEndpoint(t *testing.T) {
	usageStore, _ := withMemoryStores(t)
	ctx := context.Background()
	if _, err := usageStore.Add(ctx, deviceIdentity("device-1"), currentDayKey(), 2, 1); err != nil {
		t.Fatalf("Add error = %v", err)
	}

	router := gin.New()
	router.POST("/api/migrate-anonymous", asUser("user-1"), MigrateAnonymous)

	resp := postJSON(t, router, "/api/migrate-anonymous", models.MigrationRequest{DeviceID: "device-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Success  bool                   `json:"success"`
		Migrated models.MigrationResult `json:"migrated"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success || body.Migrated.FlashRequests != 2 || body.Migrated.DeepRequests != 1 {
		t.Fatalf("migration response = %+v", body)
	}

	t.Run("missing device id", func(t *testing.T) {
		resp := postJSON(t, router, "/api/migrate-anonymous", models.MigrationRequest{})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	withMemoryStores(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	router := gin.New()
	router.POST("/api/stripe/webhook", StripeWebhook)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte(`{"type":"checkout.session.completed"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", resp.Code)
	}
}

func TestHealth(t *testing.T) {
	router := gin.New()
	router.GET("/health", Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
