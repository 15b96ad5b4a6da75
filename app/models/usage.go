package models

import "time"

// RequestClass distinguishes the two rate-limited AI request kinds.
type RequestClass string

const (
	ClassFlash RequestClass = "flash"
	ClassDeep  RequestClass = "deep"
)

// UsageRecord is one identity's counters for one UTC day. Counts only ever
// grow within a day; a new day gets a new record.
type UsageRecord struct {
	Identity      string    `db:"identity"`
	Day           string    `db:"day"`
	FlashRequests int       `db:"flash_requests"`
	DeepRequests  int       `db:"deep_requests"`
	LastReset     time.Time `db:"last_reset"`
}

type DailyUsage struct {
	Date  string `json:"date"`
	Flash int    `json:"flash"`
	Deep  int    `json:"deep"`
}
