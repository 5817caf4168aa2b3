package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/config"
	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/testutil"
	"github.com/irfndi/tradeyodha-signals/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		MarketData:  config.MarketDataConfig{BaseURL: "http://market-data.test", APIKey: "test-key"},
		Signals: config.SignalsConfig{
			BatchSize:        5,
			MaxTickers:       200,
			RunTimeout:       5 * time.Second,
			CooldownBackend:  config.CooldownBackendRedis,
			CooldownStandard: 15 * time.Minute,
			CooldownExtended: 30 * time.Minute,
			AlertTTL:         30 * time.Minute,
			StateTTL:         72 * time.Hour,
			Detectors:        defaultDetectorsConfig(),
		},
	}
}

type closedSession struct{}

func (closedSession) IsOpen(time.Time) bool { return false }

type recordingCleaner struct {
	calls int
	err   error
}

func (c *recordingCleaner) RunCleanup(context.Context, time.Time) (models.CleanupResult, error) {
	c.calls++
	return models.CleanupResult{CooldownsDeleted: 2, AlertsDeleted: 1}, c.err
}

type engineFixture struct {
	engine  *SignalEngine
	source  *fakeMarketData
	subs    *MockSubscriberSource
	sink    *MockAlertSink
	states   *cache.TickerStateCache
	stateLog *logrustest.Hook
	cleaner  *recordingCleaner
	clock    *fakeClock
	mr       *miniredis.Miniredis
}

func newEngineFixture(t *testing.T, cfg *config.Config, universe UniverseSource, session MarketSession, stores ...StoreCheck) *engineFixture {
	t.Helper()
	mr, client := testutil.NewMiniRedis(t)
	stateLogger, stateLog := logrustest.NewNullLogger()

	f := &engineFixture{
		source:   newFakeMarketData(),
		subs:     new(MockSubscriberSource),
		sink:     new(MockAlertSink),
		states:   cache.NewTickerStateCache(client, cfg.Signals.StateTTL, stateLogger),
		stateLog: stateLog,
		cleaner:  &recordingCleaner{},
		clock:    newFakeClock(),
		mr:       mr,
	}

	deps := JobDeps{
		Config:   cfg,
		Session:  session,
		Universe: universe,
		Fetcher:  NewMarketDataFetcher(f.source, NewCircuitBreakerManager(CircuitBreakerConfig{FailureThreshold: 10}, testLogger()), false, testLogger()),
		Stores:   stores,
		Logger:   testLogger(),
		Now:      f.clock.Now,
	}
	filter := NewCooldownFilter(cache.NewCooldownCache(client), cfg.Signals.CooldownWindow, testLogger())
	fanout := NewAlertFanOut(f.subs, filter, f.sink, cfg.Signals.AlertTTL, testLogger())
	f.engine = NewSignalEngine(deps, f.states, NewDetectorBank(cfg.Signals.Detectors, testLogger()), fanout, f.cleaner)
	return f
}

func resultFor(t *testing.T, summary models.RunSummary, ticker string) models.TickerResult {
	t.Helper()
	for _, r := range summary.Results {
		if r.Ticker == ticker {
			return r
		}
	}
	t.Fatalf("no result for %s", ticker)
	return models.TickerResult{}
}

func TestSignalEngine_ConfigurationError(t *testing.T) {
	cfg := testConfig()
	cfg.MarketData.APIKey = ""
	f := newEngineFixture(t, cfg, staticUniverse{tickers: []string{"X"}}, AlwaysOpen{})

	summary := f.engine.Run(context.Background(), RunOptions{})

	assert.Equal(t, models.RunStatusError, summary.Status)
	assert.Equal(t, models.RunErrorConfiguration, summary.ErrorKind)
	assert.Contains(t, summary.Reason, "market_data.api_key")
	assert.NotEmpty(t, summary.RunID)
	assert.Empty(t, summary.Results)
	assert.Zero(t, f.source.callCount(EndpointSnapshot))
	assert.Zero(t, f.cleaner.calls)
	assert.True(t, utils.IsConfigError(cfg.ValidateRun()))
}

func TestSignalEngine_SessionGate(t *testing.T) {
	f := newEngineFixture(t, testConfig(), staticUniverse{}, closedSession{})

	summary := f.engine.Run(context.Background(), RunOptions{})
	assert.Equal(t, models.RunStatusSkipped, summary.Status)
	assert.Equal(t, "outside market session", summary.Reason)

	forced := f.engine.Run(context.Background(), RunOptions{Force: true})
	assert.Equal(t, models.RunStatusSkipped, forced.Status)
	assert.Equal(t, "no tracked tickers", forced.Reason)
}

func TestSignalEngine_StoreUnavailable(t *testing.T) {
	down := StoreCheck{Name: "postgres", Ping: func(context.Context) error { return errors.New("connection refused") }}
	f := newEngineFixture(t, testConfig(), staticUniverse{tickers: []string{"X"}}, AlwaysOpen{}, down)

	summary := f.engine.Run(context.Background(), RunOptions{})

	assert.Equal(t, models.RunStatusError, summary.Status)
	assert.Equal(t, models.RunErrorStoreUnavailable, summary.ErrorKind)
	assert.Equal(t, "postgres unavailable: connection refused", summary.Reason)
	assert.Zero(t, f.source.callCount(EndpointSnapshot))
}

func TestSignalEngine_UniverseError(t *testing.T) {
	f := newEngineFixture(t, testConfig(), staticUniverse{err: errors.New("relation does not exist")}, AlwaysOpen{})

	summary := f.engine.Run(context.Background(), RunOptions{})
	assert.Equal(t, models.RunStatusError, summary.Status)
	assert.Equal(t, models.RunErrorStoreUnavailable, summary.ErrorKind)
}

func TestSignalEngine_EndToEnd(t *testing.T) {
	up := StoreCheck{Name: "redis", Ping: func(context.Context) error { return nil }}
	f := newEngineFixture(t, testConfig(), staticUniverse{tickers: []string{"X", "B", "NODATA"}}, AlwaysOpen{}, up)
	ctx := context.Background()

	f.source.data["X"] = scenarioRaw("X")
	f.source.data["B"] = scenarioRaw("B")
	f.source.failing["B"] = []string{EndpointFlow, EndpointDarkPool, EndpointVolumePressure, EndpointRelativeStrength}
	f.source.failing["NODATA"] = []string{EndpointSnapshot}

	f.subs.On("SubscribersFor", mock.Anything, "X").
		Return([]models.Subscriber{
			{UserID: "user-1", Settings: models.DefaultAlertSettings()},
			{UserID: "user-2", Settings: models.CustomAlertSettings(models.SensitivityLow, []string{"thesis_flip"})},
		}, nil)
	f.sink.On("InsertAlerts", mock.Anything, mock.MatchedBy(func(alerts []models.AlertRecord) bool {
		return len(alerts) == 1 && alerts[0].UserID == "user-1" && alerts[0].SignalType == models.SignalConfluence
	})).Return(int64(1), nil).Once()

	summary := f.engine.Run(ctx, RunOptions{})

	require.Equal(t, models.RunStatusOK, summary.Status)
	assert.Equal(t, "signals", summary.Job)
	assert.Equal(t, 3, summary.Tickers)
	assert.Equal(t, 1, summary.SignalsDetected)
	assert.Equal(t, 1, summary.AlertsCreated)
	require.NotNil(t, summary.Cleanup)
	assert.Equal(t, int64(2), summary.Cleanup.CooldownsDeleted)
	assert.Equal(t, 1, f.cleaner.calls)

	x := resultFor(t, summary, "X")
	assert.Equal(t, models.TickerStatusOK, x.Status)
	assert.Equal(t, 81.5, x.Score)
	assert.Equal(t, 1, x.Signals)
	assert.Equal(t, 1, x.Alerts)

	b := resultFor(t, summary, "B")
	assert.Equal(t, models.TickerStatusOK, b.Status)
	assert.Zero(t, b.Signals)

	nodata := resultFor(t, summary, "NODATA")
	assert.Equal(t, models.TickerStatusNoSnapshot, nodata.Status)
	assert.Contains(t, nodata.Message, "snapshot unavailable")

	cached, err := f.states.Get(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 5, cached.Derived.ConfluenceCount)
	assert.Equal(t, models.BiasBullish, cached.Derived.BiasLabel)

	missing, err := f.states.Get(ctx, "NODATA")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// The next cycle sees confluence already in place and stays quiet.
	f.clock.Advance(time.Minute)
	again := f.engine.Run(ctx, RunOptions{})
	assert.Equal(t, 0, resultFor(t, again, "X").Signals)
	f.sink.AssertNumberOfCalls(t, "InsertAlerts", 1)
}

func TestSignalEngine_DispatchFailureSkipsStateWrite(t *testing.T) {
	f := newEngineFixture(t, testConfig(), staticUniverse{tickers: []string{"X"}}, AlwaysOpen{})
	ctx := context.Background()
	f.source.data["X"] = scenarioRaw("X")

	f.subs.On("SubscribersFor", mock.Anything, "X").Return(nil, errors.New("too many connections"))

	summary := f.engine.Run(ctx, RunOptions{})
	require.Equal(t, models.RunStatusOK, summary.Status)

	x := resultFor(t, summary, "X")
	assert.Equal(t, models.TickerStatusError, x.Status)
	assert.Contains(t, x.Message, "dispatch failed")

	cached, err := f.states.Get(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSignalEngine_StateCacheDownTreatsAsFirstObservation(t *testing.T) {
	f := newEngineFixture(t, testConfig(), staticUniverse{tickers: []string{"Q"}}, AlwaysOpen{})
	ctx := context.Background()

	quiet := scenarioRaw("Q")
	quiet.Flow.CallRatio = 50
	quiet.DarkPool.BullishPercent = 50
	quiet.VolumePressure.Pressure = 0
	f.source.data["Q"] = quiet

	f.mr.Close()

	summary := f.engine.Run(ctx, RunOptions{})
	q := resultFor(t, summary, "Q")
	assert.Equal(t, models.TickerStatusOK, q.Status)
	assert.Equal(t, "state not cached", q.Message)
	assert.Zero(t, q.Signals)
}

func TestSignalEngine_LogsStateCacheStatsAfterRun(t *testing.T) {
	f := newEngineFixture(t, testConfig(), staticUniverse{tickers: []string{"Q"}}, AlwaysOpen{})
	ctx := context.Background()

	quiet := scenarioRaw("Q")
	quiet.Flow.CallRatio = 50
	quiet.DarkPool.BullishPercent = 50
	quiet.VolumePressure.Pressure = 0
	f.source.data["Q"] = quiet

	summary := f.engine.Run(ctx, RunOptions{})
	require.Equal(t, models.RunStatusOK, summary.Status)
	assert.Zero(t, resultFor(t, summary, "Q").Signals)

	var logged []*logrus.Entry
	for _, entry := range f.stateLog.AllEntries() {
		if entry.Message == "Ticker state cache stats" {
			logged = append(logged, entry)
		}
	}
	require.Len(t, logged, 1)
	assert.Equal(t, int64(1), logged[0].Data["sets"])
	assert.Equal(t, int64(1), logged[0].Data["misses"])
	assert.Equal(t, int64(0), logged[0].Data["hits"])

	f.clock.Advance(time.Minute)
	f.engine.Run(ctx, RunOptions{})
	last := f.stateLog.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "Ticker state cache stats", last.Message)
	assert.Equal(t, int64(1), last.Data["hits"])
	assert.Equal(t, int64(2), last.Data["sets"])
}
