package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/tradeyodha-signals/internal/config"
	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// Detector is one independent predicate over the current and previous state.
// It returns nil when it does not fire.
type Detector func(current models.TickerState, derived models.Derived, previous models.PreviousState) *models.DetectedSignal

type namedDetector struct {
	signalType models.SignalType
	detect     Detector
}

// DetectorBank evaluates every detector against one ticker.
type DetectorBank struct {
	cfg       config.DetectorsConfig
	detectors []namedDetector
	logger    *logrus.Logger
}

// NewDetectorBank creates the bank with the built-in detector families.
func NewDetectorBank(cfg config.DetectorsConfig, logger *logrus.Logger) *DetectorBank {
	b := &DetectorBank{
		cfg:    cfg,
		logger: logger,
	}
	b.detectors = []namedDetector{
		{models.SignalConfluence, b.detectConfluence},
		{models.SignalThesisFlip, b.detectThesisFlip},
		{models.SignalSweepCluster, b.detectSweepCluster},
		{models.SignalCVDDivergence, b.detectCVDDivergence},
		{models.SignalDarkPoolLarge, b.detectDarkPool},
		{models.SignalKeyLevel, b.detectKeyLevel},
		{models.SignalNewsCatalyst, b.detectNewsCatalyst},
	}
	return b
}

// Detect runs every detector. A detector that panics is logged and skipped.
func (b *DetectorBank) Detect(current models.TickerState, previous models.PreviousState) []models.DetectedSignal {
	derived := DeriveState(current)

	var signals []models.DetectedSignal
	for _, d := range b.detectors {
		if sig := b.run(d, current, derived, previous); sig != nil {
			sig.Type = d.signalType
			sig.Tier = d.signalType.Tier()
			sig.Ticker = current.Ticker
			sig.Price = current.Price
			sig.DetectedAt = current.ObservedAt
			signals = append(signals, *sig)
		}
	}
	return signals
}

func (b *DetectorBank) run(d namedDetector, current models.TickerState, derived models.Derived, previous models.PreviousState) (sig *models.DetectedSignal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"ticker":   current.Ticker,
				"detector": string(d.signalType),
				"panic":    fmt.Sprint(r),
			}).Error("Detector panicked")
			sig = nil
		}
	}()
	return d.detect(current, derived, previous)
}

func (b *DetectorBank) detectConfluence(s models.TickerState, derived models.Derived, prev models.PreviousState) *models.DetectedSignal {
	threshold := b.cfg.ConfluenceMin
	if derived.ConfluenceCount < threshold || prev.ConfluenceCount >= threshold {
		return nil
	}

	a := AlignSignals(s)
	bias, aligned := models.BiasBullish, a.Bull
	if len(a.Bear) > len(a.Bull) {
		bias, aligned = models.BiasBearish, a.Bear
	}
	target, stop := b.targetStop(s, bias)

	return &models.DetectedSignal{
		Title:      fmt.Sprintf("%s %s Confluence", s.Ticker, titleCase(string(bias))),
		Summary:    fmt.Sprintf("%d of 6 signals aligned %s: %s", len(aligned), bias, strings.Join(aligned, ", ")),
		Bias:       bias,
		Confidence: math.Min(95, 50+float64(len(aligned))*8),
		Detail: models.ConfluenceDetail{
			AlignedCount: len(aligned),
			BullCount:    len(a.Bull),
			BearCount:    len(a.Bear),
			Aligned:      aligned,
			Target:       target,
			Stop:         stop,
		},
	}
}

func (b *DetectorBank) detectThesisFlip(s models.TickerState, derived models.Derived, prev models.PreviousState) *models.DetectedSignal {
	if prev.IsZero() || prev.BiasLabel == "" || prev.BiasLabel == derived.BiasLabel {
		return nil
	}

	target, stop := b.targetStop(s, derived.BiasLabel)
	strength := derived.BullCount
	if derived.BearCount > strength {
		strength = derived.BearCount
	}

	return &models.DetectedSignal{
		Title:      fmt.Sprintf("%s Thesis Flip: %s → %s", s.Ticker, titleCase(string(prev.BiasLabel)), titleCase(string(derived.BiasLabel))),
		Summary:    fmt.Sprintf("Bias moved from %s to %s (%d bull / %d bear signals)", prev.BiasLabel, derived.BiasLabel, derived.BullCount, derived.BearCount),
		Bias:       derived.BiasLabel,
		Confidence: math.Min(90, 60+float64(strength)*5),
		Detail: models.ThesisFlipDetail{
			From:   prev.BiasLabel,
			To:     derived.BiasLabel,
			Target: target,
			Stop:   stop,
		},
	}
}

func (b *DetectorBank) detectSweepCluster(s models.TickerState, derived models.Derived, _ models.PreviousState) *models.DetectedSignal {
	bigSweep := s.Flow.TopSweepValue >= b.cfg.SweepValueMin
	if s.Flow.SweepCount < b.cfg.SweepCountMin && !bigSweep {
		return nil
	}

	bias := models.BiasNeutral
	switch derived.FlowLeader {
	case models.FlowCalls:
		bias = models.BiasBullish
	case models.FlowPuts:
		bias = models.BiasBearish
	}

	confidence := 55 + float64(s.Flow.SweepCount)*2
	if bigSweep {
		confidence += 10
	}

	return &models.DetectedSignal{
		Title:      fmt.Sprintf("%s Sweep Cluster", s.Ticker),
		Summary:    fmt.Sprintf("%d sweeps, top $%s at %.2f strike", s.Flow.SweepCount, humanNotional(s.Flow.TopSweepValue), s.Flow.TopSweepStrike),
		Bias:       bias,
		Confidence: math.Min(90, confidence),
		Detail: models.SweepClusterDetail{
			SweepCount:     s.Flow.SweepCount,
			SweepRatio:     s.Flow.SweepRatio,
			TopSweepStrike: s.Flow.TopSweepStrike,
			TopSweepValue:  s.Flow.TopSweepValue,
		},
	}
}

func (b *DetectorBank) detectCVDDivergence(s models.TickerState, _ models.Derived, _ models.PreviousState) *models.DetectedSignal {
	if math.Abs(s.ChangePercent) < b.cfg.CVDChangeMin {
		return nil
	}

	var bias models.BiasLabel
	switch {
	case s.ChangePercent > 0 && s.CVDTrend == models.CVDFalling:
		bias = models.BiasBearish
	case s.ChangePercent < 0 && s.CVDTrend == models.CVDRising:
		bias = models.BiasBullish
	default:
		return nil
	}

	return &models.DetectedSignal{
		Title:      fmt.Sprintf("%s CVD Divergence", s.Ticker),
		Summary:    fmt.Sprintf("Price %+.2f%% while CVD is %s", s.ChangePercent, s.CVDTrend),
		Bias:       bias,
		Confidence: math.Min(85, 50+math.Abs(s.ChangePercent)*20),
		Detail: models.CVDDivergenceDetail{
			ChangePercent: s.ChangePercent,
			CVDTrend:      s.CVDTrend,
		},
	}
}

func (b *DetectorBank) detectDarkPool(s models.TickerState, derived models.Derived, prev models.PreviousState) *models.DetectedSignal {
	flip := !prev.IsZero() && isOpposingRegime(prev.DarkPoolRegime, derived.DarkPoolRegime)
	large := s.DarkPool.PrintCount > 0 && s.DarkPool.LargestPrint >= b.cfg.LargePrintMin
	if !flip && !large {
		return nil
	}

	bias := models.BiasNeutral
	switch derived.DarkPoolRegime {
	case models.DarkPoolAccumulation:
		bias = models.BiasBullish
	case models.DarkPoolDistribution:
		bias = models.BiasBearish
	}

	detail := models.DarkPoolDetail{
		ToRegime:      derived.DarkPoolRegime,
		RegimeFlip:    flip,
		LargestPrint:  s.DarkPool.LargestPrint,
		TotalNotional: s.DarkPool.TotalNotional,
	}
	title := fmt.Sprintf("%s Dark Pool Large Print", s.Ticker)
	summary := fmt.Sprintf("$%s print, $%s total across %d prints", humanNotional(s.DarkPool.LargestPrint), humanNotional(s.DarkPool.TotalNotional), s.DarkPool.PrintCount)
	confidence := 60.0
	if b.cfg.LargePrintMin > 0 {
		confidence = math.Min(90, 60+s.DarkPool.LargestPrint/b.cfg.LargePrintMin*5)
	}
	if flip {
		detail.FromRegime = prev.DarkPoolRegime
		title = fmt.Sprintf("%s Dark Pool %s", s.Ticker, titleCase(string(derived.DarkPoolRegime)))
		summary = fmt.Sprintf("Regime flipped from %s to %s (%.0f%% bullish)", prev.DarkPoolRegime, derived.DarkPoolRegime, s.DarkPool.BullishPercent)
		confidence = 70
	}

	return &models.DetectedSignal{
		Title:      title,
		Summary:    summary,
		Bias:       bias,
		Confidence: confidence,
		Detail:     detail,
	}
}

func isOpposingRegime(from, to models.DarkPoolRegime) bool {
	return (from == models.DarkPoolAccumulation && to == models.DarkPoolDistribution) ||
		(from == models.DarkPoolDistribution && to == models.DarkPoolAccumulation)
}

func (b *DetectorBank) detectKeyLevel(s models.TickerState, _ models.Derived, prev models.PreviousState) *models.DetectedSignal {
	if prev.IsZero() || prev.LastPrice <= 0 || s.Price <= 0 {
		return nil
	}

	levels := []struct {
		name  string
		price float64
	}{
		{"call_wall", s.Levels.CallWall},
		{"put_wall", s.Levels.PutWall},
		{"gamma_flip", s.Levels.GammaFlip},
		{"vwap", s.Levels.VWAP},
	}

	for _, level := range levels {
		if level.price <= 0 {
			continue
		}

		var crossed string
		var bias models.BiasLabel
		switch {
		case prev.LastPrice < level.price && s.Price >= level.price:
			crossed, bias = "above", models.BiasBullish
		case prev.LastPrice > level.price && s.Price <= level.price:
			crossed, bias = "below", models.BiasBearish
		default:
			continue
		}

		confidence := 65.0
		if level.name == "gamma_flip" {
			confidence = 70
		}
		target, stop := b.targetStop(s, bias)
		label := strings.ReplaceAll(level.name, "_", " ")

		return &models.DetectedSignal{
			Title:      fmt.Sprintf("%s Crossed %s %s", s.Ticker, titleCase(crossed), titleCase(label)),
			Summary:    fmt.Sprintf("Price moved from %.2f to %.2f through the %s at %.2f", prev.LastPrice, s.Price, label, level.price),
			Bias:       bias,
			Confidence: confidence,
			Detail: models.KeyLevelDetail{
				Level:      level.name,
				LevelPrice: level.price,
				Crossed:    crossed,
				Target:     target,
				Stop:       stop,
			},
		}
	}
	return nil
}

func (b *DetectorBank) detectNewsCatalyst(s models.TickerState, _ models.Derived, _ models.PreviousState) *models.DetectedSignal {
	if s.NewsSentiment == nil {
		return nil
	}
	sentiment := *s.NewsSentiment
	if math.Abs(sentiment) < b.cfg.NewsSentimentMin {
		return nil
	}

	bias := models.BiasBullish
	if sentiment < 0 {
		bias = models.BiasBearish
	}

	return &models.DetectedSignal{
		Title:      fmt.Sprintf("%s %s News Catalyst", s.Ticker, titleCase(string(bias))),
		Summary:    fmt.Sprintf("News sentiment %+.2f", sentiment),
		Bias:       bias,
		Confidence: math.Min(95, math.Abs(sentiment)*100),
		Detail:     models.NewsCatalystDetail{Sentiment: sentiment},
	}
}

// targetStop picks walls on the right side of price, falling back to fixed
// percentages. Neutral bias has no target or stop.
func (b *DetectorBank) targetStop(s models.TickerState, bias models.BiasLabel) (*decimal.Decimal, *decimal.Decimal) {
	if s.Price <= 0 || bias == models.BiasNeutral {
		return nil, nil
	}

	price := decimal.NewFromFloat(s.Price)
	up := func(pct float64) decimal.Decimal {
		return price.Mul(decimal.NewFromFloat(1 + pct/100))
	}
	down := func(pct float64) decimal.Decimal {
		return price.Mul(decimal.NewFromFloat(1 - pct/100))
	}

	var target, stop decimal.Decimal
	if bias == models.BiasBullish {
		target = up(b.cfg.TargetFallbackPct)
		if s.Levels.CallWall > s.Price {
			target = decimal.NewFromFloat(s.Levels.CallWall)
		}
		stop = down(b.cfg.StopFallbackPct)
		if s.Levels.PutWall > 0 && s.Levels.PutWall < s.Price {
			stop = decimal.NewFromFloat(s.Levels.PutWall)
		}
	} else {
		target = down(b.cfg.TargetFallbackPct)
		if s.Levels.PutWall > 0 && s.Levels.PutWall < s.Price {
			target = decimal.NewFromFloat(s.Levels.PutWall)
		}
		stop = up(b.cfg.StopFallbackPct)
		if s.Levels.CallWall > s.Price {
			stop = decimal.NewFromFloat(s.Levels.CallWall)
		}
	}

	target = target.Round(2)
	stop = stop.Round(2)
	return &target, &stop
}

// titleCase builds a fresh Caser per call; a Caser is not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func humanNotional(v float64) string {
	switch {
	case math.Abs(v) >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case math.Abs(v) >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case math.Abs(v) >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
