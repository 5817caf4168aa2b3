package services

import (
	"fmt"
	"math"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// Component weights before renormalization over the present set.
const (
	weightOptionsFlow      = 0.25
	weightDarkPool         = 0.15
	weightPriceVsVWAP      = 0.25
	weightVolumePressure   = 0.15
	weightMomentum         = 0.15
	weightRelativeStrength = 0.05
)

const (
	sweepNudgeRatio     = 0.1
	sweepNudge          = 5.0
	largePremium        = 500_000.0
	largePremiumNudge   = 3.0
	vwapAmplifier       = 60.0
	momentumAmplifier   = 25.0
	pressureDivisor     = 1.5
	relStrengthMultiple = 20.0
)

// FlowReading is the options-flow input of the scorer.
type FlowReading struct {
	CallRatio       float64
	SweepRatio      float64
	NetDeltaPremium float64
	TradeCount      int
}

// DarkPoolReading is the dark-pool input of the scorer.
type DarkPoolReading struct {
	BullishPercent float64
	PrintCount     int
}

// BiasReadings is the loosely populated input of ScoreBias. Nil pointers and
// zero prices mark absent readings, which are excluded rather than scored as 50.
type BiasReadings struct {
	Flow             *FlowReading
	DarkPool         *DarkPoolReading
	Price            float64
	VWAP             float64
	VolumePressure   *float64
	ChangePercent    *float64
	RelativeStrength *float64
}

// ScoreBias collapses the readings into one weighted directional score.
func ScoreBias(r BiasReadings) models.BiasResult {
	components := make([]models.BiasComponent, 0, 6)
	add := func(name string, score, weight float64, raw string) {
		score = clampScore(score)
		components = append(components, models.BiasComponent{
			Name:             name,
			Score:            round1(score),
			Weight:           weight,
			RawValue:         raw,
			BullContribution: round1(math.Max(0, score-50) * 2),
			BearContribution: round1(math.Max(0, 50-score) * 2),
		})
	}

	if r.Flow != nil && r.Flow.TradeCount > 0 {
		score := r.Flow.CallRatio
		if r.Flow.SweepRatio > sweepNudgeRatio {
			score += sweepNudge
		}
		switch {
		case r.Flow.NetDeltaPremium >= largePremium:
			score += largePremiumNudge
		case r.Flow.NetDeltaPremium <= -largePremium:
			score -= largePremiumNudge
		}
		add("options_flow", score, weightOptionsFlow, fmt.Sprintf("%.1f%% calls", r.Flow.CallRatio))
	}

	if r.DarkPool != nil && r.DarkPool.PrintCount > 0 {
		add("dark_pool", r.DarkPool.BullishPercent, weightDarkPool,
			fmt.Sprintf("%.1f%% bullish (%d prints)", r.DarkPool.BullishPercent, r.DarkPool.PrintCount))
	}

	if r.Price > 0 && r.VWAP > 0 {
		deviation := (r.Price - r.VWAP) / r.VWAP * 100
		add("price_vs_vwap", 50+deviation*vwapAmplifier, weightPriceVsVWAP, fmt.Sprintf("%+.2f%% vs VWAP", deviation))
	}

	if r.VolumePressure != nil {
		add("volume_pressure", 50+*r.VolumePressure/pressureDivisor, weightVolumePressure,
			fmt.Sprintf("%+.1f pressure", *r.VolumePressure))
	}

	if r.ChangePercent != nil {
		add("momentum", 50+*r.ChangePercent*momentumAmplifier, weightMomentum, fmt.Sprintf("%+.2f%%", *r.ChangePercent))
	}

	if r.RelativeStrength != nil {
		add("relative_strength", 50+*r.RelativeStrength*relStrengthMultiple, weightRelativeStrength,
			fmt.Sprintf("%+.2f RS", *r.RelativeStrength))
	}

	return aggregate(components)
}

func aggregate(components []models.BiasComponent) models.BiasResult {
	var totalWeight, score, bull, bear float64
	for _, c := range components {
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return models.BiasResult{
			Score:      50,
			Direction:  models.DirectionNeutral,
			Components: []models.BiasComponent{},
		}
	}

	for _, c := range components {
		w := c.Weight / totalWeight
		score += c.Score * w
		bull += c.BullContribution * w
		bear += c.BearContribution * w
	}

	score = clampScore(score)
	return models.BiasResult{
		Score:        round1(score),
		Direction:    models.DirectionForScore(score),
		BullPressure: round1(clampScore(bull)),
		BearPressure: round1(clampScore(bear)),
		Components:   components,
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
