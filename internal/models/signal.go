package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType enumerates the detector families.
type SignalType string

const (
	SignalConfluence    SignalType = "confluence"
	SignalThesisFlip    SignalType = "thesis_flip"
	SignalSweepCluster  SignalType = "sweep_cluster"
	SignalCVDDivergence SignalType = "cvd_divergence"
	SignalDarkPoolLarge SignalType = "dark_pool_large"
	SignalKeyLevel      SignalType = "key_level"
	SignalNewsCatalyst  SignalType = "news_catalyst"
)

// AllSignalTypes lists every detector family in tier order.
var AllSignalTypes = []SignalType{
	SignalConfluence,
	SignalThesisFlip,
	SignalSweepCluster,
	SignalCVDDivergence,
	SignalDarkPoolLarge,
	SignalKeyLevel,
	SignalNewsCatalyst,
}

// Tier is a fixed priority class; 1 is the highest.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Tier returns the fixed priority attached to the signal type.
func (t SignalType) Tier() Tier {
	switch t {
	case SignalConfluence, SignalThesisFlip:
		return Tier1
	case SignalSweepCluster, SignalCVDDivergence, SignalDarkPoolLarge:
		return Tier2
	default:
		return Tier3
	}
}

// Valid reports whether t is a known signal type.
func (t SignalType) Valid() bool {
	for _, known := range AllSignalTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SignalDetail is the type-specific payload of a DetectedSignal. Each detector
// produces exactly one variant.
type SignalDetail interface {
	SignalType() SignalType
}

// Actionable is implemented by variants that carry a target and stop.
type Actionable interface {
	TargetStop() (target, stop *decimal.Decimal)
}

// ConfluenceDetail is produced by the confluence detector.
type ConfluenceDetail struct {
	AlignedCount int              `json:"aligned_count"`
	BullCount    int              `json:"bull_count"`
	BearCount    int              `json:"bear_count"`
	Aligned      []string         `json:"aligned"`
	Target       *decimal.Decimal `json:"target,omitempty"`
	Stop         *decimal.Decimal `json:"stop,omitempty"`
}

func (ConfluenceDetail) SignalType() SignalType { return SignalConfluence }

func (d ConfluenceDetail) TargetStop() (*decimal.Decimal, *decimal.Decimal) {
	return d.Target, d.Stop
}

// ThesisFlipDetail is produced by the thesis flip detector.
type ThesisFlipDetail struct {
	From   BiasLabel        `json:"from"`
	To     BiasLabel        `json:"to"`
	Target *decimal.Decimal `json:"target,omitempty"`
	Stop   *decimal.Decimal `json:"stop,omitempty"`
}

func (ThesisFlipDetail) SignalType() SignalType { return SignalThesisFlip }

func (d ThesisFlipDetail) TargetStop() (*decimal.Decimal, *decimal.Decimal) {
	return d.Target, d.Stop
}

// SweepClusterDetail is produced by the sweep cluster detector.
type SweepClusterDetail struct {
	SweepCount     int     `json:"sweep_count"`
	SweepRatio     float64 `json:"sweep_ratio"`
	TopSweepStrike float64 `json:"top_sweep_strike"`
	TopSweepValue  float64 `json:"top_sweep_value"`
}

func (SweepClusterDetail) SignalType() SignalType { return SignalSweepCluster }

// CVDDivergenceDetail is produced by the CVD divergence detector.
type CVDDivergenceDetail struct {
	ChangePercent float64  `json:"change_percent"`
	CVDTrend      CVDTrend `json:"cvd_trend"`
}

func (CVDDivergenceDetail) SignalType() SignalType { return SignalCVDDivergence }

// DarkPoolDetail is produced by the dark-pool detector.
type DarkPoolDetail struct {
	FromRegime    DarkPoolRegime `json:"from_regime,omitempty"`
	ToRegime      DarkPoolRegime `json:"to_regime"`
	RegimeFlip    bool           `json:"regime_flip"`
	LargestPrint  float64        `json:"largest_print"`
	TotalNotional float64        `json:"total_notional"`
}

func (DarkPoolDetail) SignalType() SignalType { return SignalDarkPoolLarge }

// KeyLevelDetail is produced by the key level detector.
type KeyLevelDetail struct {
	Level      string           `json:"level"`
	LevelPrice float64          `json:"level_price"`
	Crossed    string           `json:"crossed"` // "above" or "below"
	Target     *decimal.Decimal `json:"target,omitempty"`
	Stop       *decimal.Decimal `json:"stop,omitempty"`
}

func (KeyLevelDetail) SignalType() SignalType { return SignalKeyLevel }

func (d KeyLevelDetail) TargetStop() (*decimal.Decimal, *decimal.Decimal) {
	return d.Target, d.Stop
}

// NewsCatalystDetail is produced by the news catalyst detector.
type NewsCatalystDetail struct {
	Sentiment float64 `json:"sentiment"`
}

func (NewsCatalystDetail) SignalType() SignalType { return SignalNewsCatalyst }

// DetectedSignal is one event fired by the detector bank. It is not mutated after
// creation.
type DetectedSignal struct {
	Type       SignalType   `json:"type"`
	Tier       Tier         `json:"tier"`
	Ticker     string       `json:"ticker"`
	Title      string       `json:"title"`
	Summary    string       `json:"summary"`
	Bias       BiasLabel    `json:"bias"`
	Confidence float64      `json:"confidence"`
	Price      float64      `json:"price"`
	Detail     SignalDetail `json:"detail"`
	DetectedAt time.Time    `json:"detected_at"`
}

// TargetStop returns the optional target and stop of actionable variants.
func (s DetectedSignal) TargetStop() (target, stop *decimal.Decimal) {
	if a, ok := s.Detail.(Actionable); ok {
		return a.TargetStop()
	}
	return nil, nil
}
