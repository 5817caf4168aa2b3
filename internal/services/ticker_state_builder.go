package services

import (
	"math"
	"strings"
	"time"

	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/pkg/marketdata"
)

// Alignment thresholds shared by the confluence detector, the bias label and
// the cached projection.
const (
	flowBullRatio      = 60.0
	flowBearRatio      = 40.0
	pressureBull       = 20.0
	pressureBear       = -20.0
	darkPoolBull       = 60.0
	darkPoolBear       = 40.0
	relStrengthBull    = 0.3
	relStrengthBear    = -0.3
	biasLabelMinCount  = 3
	flowLeaderCalls    = 55.0
	flowLeaderPuts     = 45.0
	cvdFlatVolumeShare = 0.01
)

// RawTickerData holds the independently fetched collaborator responses for one
// ticker. Any field may be nil.
type RawTickerData struct {
	Ticker           string
	Snapshot         *marketdata.Snapshot
	Flow             *marketdata.FlowStats
	DarkPool         *marketdata.DarkPoolStats
	VolumePressure   *marketdata.VolumePressureStats
	Levels           *marketdata.Levels
	RelativeStrength *marketdata.RelativeStrength
	News             *marketdata.NewsSentiment
	Failures         map[string]string
	FetchedAt        time.Time
}

// HasSnapshot reports whether a usable price was fetched.
func (r RawTickerData) HasSnapshot() bool {
	return r.Snapshot != nil && r.Snapshot.Price > 0
}

// BuildTickerState normalizes raw responses into one state, substituting
// neutral sentinels for anything missing.
func BuildTickerState(ticker string, raw RawTickerData) models.TickerState {
	state := models.TickerState{
		Ticker:     strings.ToUpper(ticker),
		CVDTrend:   models.CVDFlat,
		ObservedAt: raw.FetchedAt,
		Flow: models.FlowMetrics{
			CallRatio: models.NeutralPercent,
		},
		DarkPool: models.DarkPoolMetrics{
			BullishPercent: models.NeutralPercent,
		},
	}

	if s := raw.Snapshot; s != nil {
		state.Price = s.Price
		state.ChangePercent = s.ChangePercent
	}

	if f := raw.Flow; f != nil {
		state.Flow = models.FlowMetrics{
			CallRatio:       f.CallRatio,
			SweepRatio:      f.SweepRatio,
			NetDeltaPremium: f.NetDeltaPremium,
			TradeCount:      f.TradeCount,
			SweepCount:      f.SweepCount,
			TopSweepStrike:  f.TopSweepStrike,
			TopSweepValue:   f.TopSweepValue,
		}
		if f.TradeCount == 0 {
			state.Flow.CallRatio = models.NeutralPercent
		}
	}

	if vp := raw.VolumePressure; vp != nil {
		state.VolumePressure = vp.Pressure
		state.CVDTrend = DeriveCVDTrend(vp)
	}

	if dp := raw.DarkPool; dp != nil {
		state.DarkPool = models.DarkPoolMetrics{
			BullishPercent:  dp.BullishPercent,
			PrintCount:      dp.PrintCount,
			LargePrintCount: dp.LargePrintCount,
			TotalNotional:   dp.TotalNotional,
			LargestPrint:    dp.LargestPrint,
		}
		if dp.PrintCount == 0 {
			state.DarkPool.BullishPercent = models.NeutralPercent
		}
	}

	if rs := raw.RelativeStrength; rs != nil {
		state.RelativeStrength = rs.Value
	}

	if l := raw.Levels; l != nil {
		state.Levels = models.KeyLevels{
			CallWall:  l.CallWall,
			PutWall:   l.PutWall,
			GammaFlip: l.GammaFlip,
			VWAP:      l.VWAP,
		}
	}

	if n := raw.News; n != nil {
		sentiment := n.Sentiment
		state.NewsSentiment = &sentiment
	}

	return state
}

// DeriveCVDTrend uses the reported trend when valid, otherwise compares the
// cumulative delta at the first and last bucket. Moves under 1% of traded
// volume read as flat.
func DeriveCVDTrend(vp *marketdata.VolumePressureStats) models.CVDTrend {
	if vp == nil {
		return models.CVDFlat
	}
	switch models.CVDTrend(strings.ToLower(vp.CVDTrend)) {
	case models.CVDRising:
		return models.CVDRising
	case models.CVDFalling:
		return models.CVDFalling
	case models.CVDFlat:
		return models.CVDFlat
	}

	if len(vp.Buckets) < 2 {
		return models.CVDFlat
	}

	var cvd, first, volume float64
	for i, b := range vp.Buckets {
		cvd += b.BuyVolume - b.SellVolume
		volume += b.BuyVolume + b.SellVolume
		if i == 0 {
			first = cvd
		}
	}

	change := cvd - first
	if volume == 0 || math.Abs(change) <= volume*cvdFlatVolumeShare {
		return models.CVDFlat
	}
	if change > 0 {
		return models.CVDRising
	}
	return models.CVDFalling
}

// BiasReadingsFromState maps a state into scorer inputs. Presence comes from
// the raw data so that sentinel values are never scored.
func BiasReadingsFromState(state models.TickerState, raw RawTickerData) BiasReadings {
	var readings BiasReadings

	if raw.Flow != nil {
		readings.Flow = &FlowReading{
			CallRatio:       state.Flow.CallRatio,
			SweepRatio:      state.Flow.SweepRatio,
			NetDeltaPremium: state.Flow.NetDeltaPremium,
			TradeCount:      state.Flow.TradeCount,
		}
	}
	if raw.DarkPool != nil {
		readings.DarkPool = &DarkPoolReading{
			BullishPercent: state.DarkPool.BullishPercent,
			PrintCount:     state.DarkPool.PrintCount,
		}
	}
	if raw.Snapshot != nil {
		readings.Price = state.Price
		change := state.ChangePercent
		readings.ChangePercent = &change
	}
	if raw.Levels != nil {
		readings.VWAP = state.Levels.VWAP
	}
	if raw.VolumePressure != nil {
		pressure := state.VolumePressure
		readings.VolumePressure = &pressure
	}
	if raw.RelativeStrength != nil {
		rs := state.RelativeStrength
		readings.RelativeStrength = &rs
	}

	return readings
}

// Alignment lists which signals currently agree with each side.
type Alignment struct {
	Bull []string
	Bear []string
}

// Count is the size of the larger side.
func (a Alignment) Count() int {
	if len(a.Bull) > len(a.Bear) {
		return len(a.Bull)
	}
	return len(a.Bear)
}

// AlignSignals applies the per-signal bull/bear rules to a state.
func AlignSignals(s models.TickerState) Alignment {
	var a Alignment
	side := func(name string, bull, bear bool) {
		switch {
		case bull:
			a.Bull = append(a.Bull, name)
		case bear:
			a.Bear = append(a.Bear, name)
		}
	}

	side("flow", s.Flow.CallRatio >= flowBullRatio, s.Flow.CallRatio <= flowBearRatio)
	side("volume", s.VolumePressure > pressureBull, s.VolumePressure < pressureBear)
	hasPrints := s.DarkPool.PrintCount > 0
	side("dark_pool", hasPrints && s.DarkPool.BullishPercent >= darkPoolBull, hasPrints && s.DarkPool.BullishPercent <= darkPoolBear)
	side("relative_strength", s.RelativeStrength > relStrengthBull, s.RelativeStrength < relStrengthBear)
	hasVWAP := s.Price > 0 && s.Levels.VWAP > 0
	side("vwap", hasVWAP && s.Price > s.Levels.VWAP, hasVWAP && s.Price < s.Levels.VWAP)
	side("cvd", s.CVDTrend == models.CVDRising, s.CVDTrend == models.CVDFalling)

	return a
}

// DeriveState computes the projection that the next cycle compares against.
func DeriveState(s models.TickerState) models.Derived {
	a := AlignSignals(s)
	bull, bear := len(a.Bull), len(a.Bear)

	label := models.BiasNeutral
	switch {
	case bull >= biasLabelMinCount && bull > bear:
		label = models.BiasBullish
	case bear >= biasLabelMinCount && bear > bull:
		label = models.BiasBearish
	}

	leader := models.FlowBalanced
	if s.Flow.TradeCount > 0 {
		switch {
		case s.Flow.CallRatio >= flowLeaderCalls:
			leader = models.FlowCalls
		case s.Flow.CallRatio <= flowLeaderPuts:
			leader = models.FlowPuts
		}
	}

	regime := models.DarkPoolNeutral
	if s.DarkPool.PrintCount > 0 {
		switch {
		case s.DarkPool.BullishPercent >= darkPoolBull:
			regime = models.DarkPoolAccumulation
		case s.DarkPool.BullishPercent <= darkPoolBear:
			regime = models.DarkPoolDistribution
		}
	}

	rsRegime := models.RSInline
	switch {
	case s.RelativeStrength > relStrengthBull:
		rsRegime = models.RSLeading
	case s.RelativeStrength < relStrengthBear:
		rsRegime = models.RSLagging
	}

	return models.Derived{
		BiasLabel:       label,
		BullCount:       bull,
		BearCount:       bear,
		ConfluenceCount: a.Count(),
		FlowLeader:      leader,
		CVDTrend:        s.CVDTrend,
		DarkPoolRegime:  regime,
		RSRegime:        rsRegime,
		LastPrice:       s.Price,
	}
}
