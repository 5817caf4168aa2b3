package models

import "time"

// TimelinePoint is the compact sample stored in the per-ticker timeline list.
type TimelinePoint struct {
	Timestamp int64   `json:"t"`
	Score     float64 `json:"s"`
	Direction int     `json:"d"`
	BullCount int     `json:"b"`
	BearCount int     `json:"r"`
}

// Time returns the sample timestamp.
func (p TimelinePoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// ThesisSnapshot is the heavy record kept for offline analysis.
type ThesisSnapshot struct {
	Ticker    string      `json:"ticker"`
	Timestamp time.Time   `json:"timestamp"`
	Bias      BiasResult  `json:"bias"`
	State     TickerState `json:"state"`
	Derived   Derived     `json:"derived"`
}

// Run status values.
const (
	RunStatusOK      = "ok"
	RunStatusSkipped = "skipped"
	RunStatusError   = "error"
)

// Run error kinds, set on RunSummary.ErrorKind when Status is error.
const (
	RunErrorConfiguration    = "configuration"
	RunErrorStoreUnavailable = "store_unavailable"
)

// Per-ticker result reasons.
const (
	TickerStatusOK         = "ok"
	TickerStatusNoSnapshot = "no-snapshot"
	TickerStatusTooRecent  = "too-recent"
	TickerStatusError      = "error"
)

// TickerResult is one ticker's outcome inside a run.
type TickerResult struct {
	Ticker     string  `json:"ticker"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Signals    int     `json:"signals"`
	Alerts     int     `json:"alerts"`
	Suppressed int     `json:"suppressed"`
}

// RunSummary is the JSON body returned to the scheduler.
type RunSummary struct {
	RunID           string         `json:"run_id"`
	Job             string         `json:"job"`
	Status          string         `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	ErrorKind       string         `json:"error_kind,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	ElapsedMs       int64          `json:"elapsed_ms"`
	Tickers         int            `json:"tickers"`
	SignalsDetected int            `json:"signals_detected"`
	AlertsCreated   int            `json:"alerts_created"`
	PointsWritten   int            `json:"points_written"`
	Cleanup         *CleanupResult `json:"cleanup,omitempty"`
	Results         []TickerResult `json:"results"`
}

// CleanupResult counts rows removed by the expiry sweep.
type CleanupResult struct {
	CooldownsDeleted int64 `json:"cooldowns_deleted"`
	AlertsDeleted    int64 `json:"alerts_deleted"`
}
