package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/models"
)

func newTimelineFixture(t *testing.T, tickers ...string) (*TimelineJob, *fakeMarketData, *cache.TimelineStore, *fakeClock) {
	t.Helper()
	source := newFakeMarketData()
	store := newTestTimelineStore(t, 500)
	clock := newFakeClock()

	deps := JobDeps{
		Config:   testConfig(),
		Universe: staticUniverse{tickers: tickers},
		Fetcher:  NewMarketDataFetcher(source, NewCircuitBreakerManager(CircuitBreakerConfig{FailureThreshold: 10}, testLogger()), false, testLogger()),
		Logger:   testLogger(),
		Now:      clock.Now,
	}
	job := NewTimelineJob(deps, NewTimelineRecorder(store, 30*time.Second, testLogger()))
	return job, source, store, clock
}

func TestTimelineJob_WritesPoints(t *testing.T) {
	job, source, store, _ := newTimelineFixture(t, "X", "NODATA")
	ctx := context.Background()
	source.data["X"] = scenarioRaw("X")
	source.failing["NODATA"] = []string{EndpointSnapshot}

	summary := job.Run(ctx, RunOptions{})

	require.Equal(t, models.RunStatusOK, summary.Status)
	assert.Equal(t, "timeline", summary.Job)
	assert.Equal(t, 1, summary.PointsWritten)
	assert.Nil(t, summary.Cleanup)

	x := resultFor(t, summary, "X")
	assert.Equal(t, models.TickerStatusOK, x.Status)
	assert.Equal(t, 81.5, x.Score)
	assert.Equal(t, models.TickerStatusNoSnapshot, resultFor(t, summary, "NODATA").Status)

	points, err := store.Points(ctx, "X", 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 81.5, points[0].Score)
	assert.Equal(t, 6, points[0].BullCount)
}

func TestTimelineJob_TooRecent(t *testing.T) {
	job, source, store, clock := newTimelineFixture(t, "X")
	ctx := context.Background()
	source.data["X"] = scenarioRaw("X")

	require.Equal(t, 1, job.Run(ctx, RunOptions{}).PointsWritten)

	clock.Advance(10 * time.Second)
	summary := job.Run(ctx, RunOptions{})
	assert.Equal(t, 0, summary.PointsWritten)
	x := resultFor(t, summary, "X")
	assert.Equal(t, models.TickerStatusTooRecent, x.Status)
	assert.Equal(t, 81.5, x.Score)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, job.Run(ctx, RunOptions{}).PointsWritten)

	points, err := store.Points(ctx, "X", 0)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestTimelineJob_ThesisEveryRun(t *testing.T) {
	job, source, store, clock := newTimelineFixture(t, "X")
	ctx := context.Background()
	source.data["X"] = scenarioRaw("X")

	for i := 0; i < 3; i++ {
		job.Run(ctx, RunOptions{})
		clock.Advance(10 * time.Second)
	}

	points, err := store.Points(ctx, "X", 0)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	theses, err := store.Theses(ctx, "X", 0)
	require.NoError(t, err)
	require.Len(t, theses, 3)
	assert.True(t, theses[2].Timestamp.Equal(scenarioTime.Add(20*time.Second)))
	assert.Equal(t, 3, source.callCount(EndpointSnapshot))
}

func TestTimelineJob_SessionClosed(t *testing.T) {
	job, source, _, _ := newTimelineFixture(t, "X")
	job.runner.Session = closedSession{}

	summary := job.Run(context.Background(), RunOptions{})
	assert.Equal(t, models.RunStatusSkipped, summary.Status)
	assert.Zero(t, source.callCount(EndpointSnapshot))
}
