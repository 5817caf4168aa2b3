package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// TickerStateStore keeps the previous observation of every ticker between runs.
type TickerStateStore interface {
	Previous(ctx context.Context, ticker string) (models.PreviousState, error)
	Set(ctx context.Context, state models.TickerState, derived models.Derived, now time.Time) error
}

// statsLogger is implemented by state stores that keep hit counters.
type statsLogger interface {
	LogStats()
}

// ExpiryCleaner removes expired cooldowns and alerts.
type ExpiryCleaner interface {
	RunCleanup(ctx context.Context, now time.Time) (models.CleanupResult, error)
}

// SignalEngine is the signal detection job: fetch, build, detect, fan out and
// remember each ticker's state for the next cycle.
type SignalEngine struct {
	runner    jobRunner
	states    TickerStateStore
	detectors *DetectorBank
	fanout    *AlertFanOut
	cleaner   ExpiryCleaner
}

func NewSignalEngine(deps JobDeps, states TickerStateStore, detectors *DetectorBank, fanout *AlertFanOut, cleaner ExpiryCleaner) *SignalEngine {
	return &SignalEngine{
		runner:    newJobRunner("signals", deps),
		states:    states,
		detectors: detectors,
		fanout:    fanout,
		cleaner:   cleaner,
	}
}

// Run performs one detection cycle over the tracked universe.
func (e *SignalEngine) Run(ctx context.Context, opts RunOptions) models.RunSummary {
	return e.runner.run(ctx, opts, e.processTicker, e.finish)
}

func (e *SignalEngine) processTicker(ctx context.Context, ticker string) models.TickerResult {
	logger := e.runner.Logger
	now := e.runner.Now()

	raw := e.runner.Fetcher.Fetch(ctx, ticker, now)
	if !raw.HasSnapshot() {
		if err := ctx.Err(); err != nil {
			return errorResult(ticker, err.Error())
		}
		return models.TickerResult{
			Ticker:  ticker,
			Status:  models.TickerStatusNoSnapshot,
			Message: raw.Failures[EndpointSnapshot],
		}
	}

	state := BuildTickerState(ticker, raw)
	derived := DeriveState(state)
	bias := ScoreBias(BiasReadingsFromState(state, raw))

	previous, err := e.states.Previous(ctx, ticker)
	if err != nil {
		// Without a previous state only first-observation detectors can fire.
		logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"error":  err.Error(),
		}).Warn("Failed to read previous ticker state")
		previous = models.PreviousState{}
	}

	signals := e.detectors.Detect(state, previous)
	result := models.TickerResult{
		Ticker:  ticker,
		Status:  models.TickerStatusOK,
		Score:   bias.Score,
		Signals: len(signals),
	}

	if len(signals) > 0 {
		fanout, err := e.fanout.Dispatch(ctx, state, signals, now)
		result.Alerts = int(fanout.Inserted)
		result.Suppressed = fanout.Suppressed
		if err != nil {
			logger.WithFields(logrus.Fields{
				"ticker":  ticker,
				"signals": len(signals),
				"error":   err.Error(),
			}).Error("Failed to dispatch alerts")
			// State is left unwritten so the next cycle detects these again.
			result.Status = models.TickerStatusError
			result.Message = "dispatch failed: " + err.Error()
			return result
		}
	}

	if err := e.states.Set(ctx, state, derived, now); err != nil {
		logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"error":  err.Error(),
		}).Warn("Failed to cache ticker state")
		result.Message = "state not cached"
	}

	return result
}

func (e *SignalEngine) finish(ctx context.Context, summary *models.RunSummary) {
	if stats, ok := e.states.(statsLogger); ok {
		stats.LogStats()
	}

	if e.cleaner == nil {
		return
	}
	cleaned, err := e.cleaner.RunCleanup(ctx, e.runner.Now())
	if err != nil {
		e.runner.Logger.WithError(err).Warn("Expiry cleanup failed")
	}
	summary.Cleanup = &cleaned
}
