package models

// QuotaCheckResult is the gate's decision for a single request.
// Remaining and Limit use -1 as the unlimited sentinel.
type QuotaCheckResult struct {
	Allowed   bool         `json:"allowed"`
	Remaining int          `json:"remaining"`
	Limit     int          `json:"limit"`
	Type      RequestClass `json:"type"`
}

type QuotaCheckRequest struct {
	Mode     string `json:"mode"`
	DeviceID string `json:"deviceId"`
}

type ClassUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type QuotaStatusResponse struct {
	Tier    Tier       `json:"tier"`
	Flash   ClassUsage `json:"flash"`
	Deep    ClassUsage `json:"deep"`
	ResetAt string     `json:"resetAt"`
}

type UsageHistoryResponse struct {
	DailyUsage []DailyUsage `json:"dailyUsage"`
	TotalFlash int          `json:"totalFlash"`
	TotalDeep  int          `json:"totalDeep"`
	Streak     int          `json:"streak"`
}

type MigrationRequest struct {
	DeviceID string `json:"deviceId"`
}

type MigrationResult struct {
	FlashRequests int `json:"flashRequests"`
	DeepRequests  int `json:"deepRequests"`
}

type CheckoutSessionRequest struct {
	Tier Tier `json:"tier"`
}

type VerifySessionRequest struct {
	SessionID string `json:"sessionId"`
}
