package models

import "time"

// CVDTrend is the direction of cumulative volume delta over the sampled buckets.
type CVDTrend string

const (
	CVDRising  CVDTrend = "rising"
	CVDFalling CVDTrend = "falling"
	CVDFlat    CVDTrend = "flat"
)

// BiasLabel is the thesis label derived from aligned signal counts.
type BiasLabel string

const (
	BiasBullish BiasLabel = "bullish"
	BiasBearish BiasLabel = "bearish"
	BiasNeutral BiasLabel = "neutral"
)

// FlowLeader tells which side of the options tape dominates.
type FlowLeader string

const (
	FlowCalls    FlowLeader = "calls"
	FlowPuts     FlowLeader = "puts"
	FlowBalanced FlowLeader = "balanced"
)

// DarkPoolRegime classifies off-exchange prints.
type DarkPoolRegime string

const (
	DarkPoolAccumulation DarkPoolRegime = "accumulation"
	DarkPoolDistribution DarkPoolRegime = "distribution"
	DarkPoolNeutral      DarkPoolRegime = "neutral"
)

// RSRegime classifies relative strength against the benchmark.
type RSRegime string

const (
	RSLeading RSRegime = "leading"
	RSLagging RSRegime = "lagging"
	RSInline  RSRegime = "inline"
)

// Neutral sentinels used when a collaborator result is missing.
const (
	NeutralPercent = 50.0
	NeutralDelta   = 0.0
)

// FlowMetrics holds aggregated options flow for one ticker.
type FlowMetrics struct {
	CallRatio       float64 `json:"call_ratio"`
	SweepRatio      float64 `json:"sweep_ratio"`
	NetDeltaPremium float64 `json:"net_delta_premium"`
	TradeCount      int     `json:"trade_count"`
	SweepCount      int     `json:"sweep_count"`
	TopSweepStrike  float64 `json:"top_sweep_strike"`
	TopSweepValue   float64 `json:"top_sweep_value"`
}

// DarkPoolMetrics holds aggregated dark-pool prints for one ticker.
type DarkPoolMetrics struct {
	BullishPercent  float64 `json:"bullish_percent"`
	PrintCount      int     `json:"print_count"`
	LargePrintCount int     `json:"large_print_count"`
	TotalNotional   float64 `json:"total_notional"`
	LargestPrint    float64 `json:"largest_print"`
}

// KeyLevels are the price thresholds the key-level detector watches.
type KeyLevels struct {
	CallWall  float64 `json:"call_wall"`
	PutWall   float64 `json:"put_wall"`
	GammaFlip float64 `json:"gamma_flip"`
	VWAP      float64 `json:"vwap"`
}

// TickerState is the canonical per-ticker record for one detection cycle.
// Numeric fields always carry a value; missing collaborators leave neutral sentinels.
type TickerState struct {
	Ticker           string          `json:"ticker"`
	Price            float64         `json:"price"`
	ChangePercent    float64         `json:"change_percent"`
	Flow             FlowMetrics     `json:"flow"`
	CVDTrend         CVDTrend        `json:"cvd_trend"`
	VolumePressure   float64         `json:"volume_pressure"`
	DarkPool         DarkPoolMetrics `json:"dark_pool"`
	RelativeStrength float64         `json:"relative_strength"`
	Levels           KeyLevels       `json:"levels"`
	NewsSentiment    *float64        `json:"news_sentiment,omitempty"`
	ObservedAt       time.Time       `json:"observed_at"`
}

// Derived is the projection of a TickerState that the next cycle compares against.
type Derived struct {
	BiasLabel       BiasLabel      `json:"bias_label"`
	BullCount       int            `json:"bull_count"`
	BearCount       int            `json:"bear_count"`
	ConfluenceCount int            `json:"confluence_count"`
	FlowLeader      FlowLeader     `json:"flow_leader"`
	CVDTrend        CVDTrend       `json:"cvd_trend"`
	DarkPoolRegime  DarkPoolRegime `json:"dark_pool_regime"`
	RSRegime        RSRegime       `json:"rs_regime"`
	LastPrice       float64        `json:"last_price"`
}

// CachedTickerState is what the ticker state cache stores between cycles.
type CachedTickerState struct {
	State    TickerState `json:"state"`
	Derived  Derived     `json:"derived"`
	CachedAt time.Time   `json:"cached_at"`
}

// PreviousState is the prior cycle's Derived projection. The zero value means the
// ticker has never been observed.
type PreviousState struct {
	Derived
	observed bool
}

// NewPreviousState wraps a cached projection.
func NewPreviousState(d Derived) PreviousState {
	return PreviousState{Derived: d, observed: true}
}

// PreviousFromCache returns the empty projection for a nil cache entry.
func PreviousFromCache(cached *CachedTickerState) PreviousState {
	if cached == nil {
		return PreviousState{}
	}
	return NewPreviousState(cached.Derived)
}

// IsZero reports whether there was no prior observation.
func (p PreviousState) IsZero() bool {
	return !p.observed
}
