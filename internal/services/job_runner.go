package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/config"
	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/telemetry"
)

const storePingTimeout = 5 * time.Second

// RunOptions are the per-invocation switches of a cron job.
type RunOptions struct {
	// Force bypasses the market session gate.
	Force bool
}

// StoreCheck is a named reachability check run before any ticker work.
type StoreCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// JobDeps are the collaborators shared by both cron jobs.
type JobDeps struct {
	Config    *config.Config
	Session   MarketSession
	Universe  UniverseSource
	Fetcher   *MarketDataFetcher
	Stores    []StoreCheck
	Resources *ResourceMonitor
	Tracer    *telemetry.BusinessTracer
	Logger    *logrus.Logger
	Now       func() time.Time
}

// jobRunner applies the gates every job shares and drives batched processing.
type jobRunner struct {
	name string
	JobDeps
}

func newJobRunner(name string, deps JobDeps) jobRunner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Session == nil {
		deps.Session = AlwaysOpen{}
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewBusinessTracer()
	}
	return jobRunner{name: name, JobDeps: deps}
}

// run validates configuration, checks the session and stores, resolves the
// universe and processes it. finish runs after processing with the caller's
// context, so it still has time when the run deadline was hit.
func (j jobRunner) run(ctx context.Context, opts RunOptions, process TickerFunc, finish func(ctx context.Context, summary *models.RunSummary)) models.RunSummary {
	started := j.Now()
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       j.name,
		StartedAt: started.UTC(),
		Results:   []models.TickerResult{},
	}

	ctx, span := j.Tracer.TraceRun(ctx, j.name, summary.RunID, opts.Force)
	defer span.End()

	logger := j.Logger.WithFields(logrus.Fields{"job": j.name, "run_id": summary.RunID})
	done := func() models.RunSummary {
		summary.ElapsedMs = j.Now().Sub(started).Milliseconds()
		j.Tracer.RecordRunSummary(span, summary)
		entry := logger.WithFields(logrus.Fields{
			"status":           summary.Status,
			"reason":           summary.Reason,
			"tickers":          summary.Tickers,
			"signals_detected": summary.SignalsDetected,
			"alerts_created":   summary.AlertsCreated,
			"points_written":   summary.PointsWritten,
			"elapsed_ms":       summary.ElapsedMs,
		})
		if summary.Status == models.RunStatusError {
			entry.Error("Job run failed")
		} else {
			entry.Info("Job run completed")
		}
		return summary
	}

	if err := j.Config.ValidateRun(); err != nil {
		summary.Status = models.RunStatusError
		summary.ErrorKind = models.RunErrorConfiguration
		summary.Reason = err.Error()
		return done()
	}

	if !opts.Force && !j.Session.IsOpen(started) {
		summary.Status = models.RunStatusSkipped
		summary.Reason = "outside market session"
		return done()
	}

	for _, store := range j.Stores {
		pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			summary.Status = models.RunStatusError
			summary.ErrorKind = models.RunErrorStoreUnavailable
			summary.Reason = fmt.Sprintf("%s unavailable: %v", store.Name, err)
			return done()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, j.Config.Signals.RunTimeout)
	defer cancel()

	universe, err := ResolveUniverse(runCtx, j.Universe, j.Config.Signals.CoreTickers, j.Config.Signals.MaxTickers)
	if err != nil {
		summary.Status = models.RunStatusError
		summary.ErrorKind = models.RunErrorStoreUnavailable
		summary.Reason = err.Error()
		return done()
	}
	if len(universe) == 0 {
		summary.Status = models.RunStatusSkipped
		summary.Reason = "no tracked tickers"
		return done()
	}

	batchSize := j.Config.Signals.BatchSize
	if j.Resources != nil {
		batchSize = j.Resources.BatchSize(runCtx, batchSize)
	}

	logger.WithFields(logrus.Fields{
		"tickers":    len(universe),
		"batch_size": batchSize,
		"forced":     opts.Force,
	}).Info("Job run started")

	results := RunBatched(runCtx, universe, batchSize, func(ctx context.Context, ticker string) models.TickerResult {
		ctx, span := j.Tracer.TraceTicker(ctx, ticker)
		defer span.End()

		result := process(ctx, ticker)
		j.Tracer.RecordTickerResult(span, result)
		return result
	})
	summarize(&summary, results)
	summary.Status = models.RunStatusOK

	if finish != nil {
		finish(ctx, &summary)
	}
	return done()
}
