package services

import (
	"context"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// TimelineJob samples the bias score of every tracked ticker into its timeline.
type TimelineJob struct {
	runner   jobRunner
	recorder *TimelineRecorder
}

func NewTimelineJob(deps JobDeps, recorder *TimelineRecorder) *TimelineJob {
	return &TimelineJob{
		runner:   newJobRunner("timeline", deps),
		recorder: recorder,
	}
}

// Run appends a thesis snapshot for every ticker with a price, and a timeline
// point for each one whose last point is old enough.
func (j *TimelineJob) Run(ctx context.Context, opts RunOptions) models.RunSummary {
	return j.runner.run(ctx, opts, j.processTicker, countPoints)
}

func (j *TimelineJob) processTicker(ctx context.Context, ticker string) models.TickerResult {
	now := j.runner.Now()

	raw := j.runner.Fetcher.Fetch(ctx, ticker, now)
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
	bias := ScoreBias(BiasReadingsFromState(state, raw))

	written, err := j.recorder.Record(ctx, ticker, state, DeriveState(state), bias, now)
	if err != nil {
		return errorResult(ticker, err.Error())
	}
	if !written {
		return models.TickerResult{Ticker: ticker, Status: models.TickerStatusTooRecent, Score: bias.Score}
	}

	return models.TickerResult{Ticker: ticker, Status: models.TickerStatusOK, Score: bias.Score}
}

func countPoints(_ context.Context, summary *models.RunSummary) {
	for _, r := range summary.Results {
		if r.Status == models.TickerStatusOK {
			summary.PointsWritten++
		}
	}
}
