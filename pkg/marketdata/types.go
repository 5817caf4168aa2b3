package marketdata

import "time"

// Snapshot is the latest price reading for a ticker.
type Snapshot struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FlowStats aggregates the options tape for the current session.
type FlowStats struct {
	Ticker          string  `json:"ticker"`
	CallRatio       float64 `json:"call_ratio"`
	SweepRatio      float64 `json:"sweep_ratio"`
	NetDeltaPremium float64 `json:"net_delta_premium"`
	TradeCount      int     `json:"trade_count"`
	SweepCount      int     `json:"sweep_count"`
	TopSweepStrike  float64 `json:"top_sweep_strike"`
	TopSweepValue   float64 `json:"top_sweep_value"`
}

// DarkPoolStats aggregates off-exchange prints.
type DarkPoolStats struct {
	Ticker          string  `json:"ticker"`
	BullishPercent  float64 `json:"bullish_percent"`
	PrintCount      int     `json:"print_count"`
	LargePrintCount int     `json:"large_print_count"`
	TotalNotional   float64 `json:"total_notional"`
	LargestPrint    float64 `json:"largest_print"`
}

// VolumeBucket is one sampled interval of aggressor volume.
type VolumeBucket struct {
	Timestamp  int64   `json:"t"`
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
}

// VolumePressureStats carries net pressure and the buckets CVD is built from.
// CVDTrend is optional; when empty it is derived from the buckets.
type VolumePressureStats struct {
	Ticker   string         `json:"ticker"`
	Pressure float64        `json:"pressure"`
	CVDTrend string         `json:"cvd_trend,omitempty"`
	Buckets  []VolumeBucket `json:"buckets"`
}

// Levels are the dealer-positioning price levels.
type Levels struct {
	Ticker    string  `json:"ticker"`
	CallWall  float64 `json:"call_wall"`
	PutWall   float64 `json:"put_wall"`
	GammaFlip float64 `json:"gamma_flip"`
	VWAP      float64 `json:"vwap"`
}

type RelativeStrength struct {
	Ticker    string  `json:"ticker"`
	Benchmark string  `json:"benchmark"`
	Value     float64 `json:"relative_strength"`
}

type NewsSentiment struct {
	Ticker       string  `json:"ticker"`
	Sentiment    float64 `json:"sentiment"`
	ArticleCount int     `json:"article_count"`
}

// HealthResponse is returned by the service health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ErrorResponse is the error body the service returns on 4xx/5xx.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
