package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/testutil"
)

type MockSubscriberSource struct {
	mock.Mock
}

func (m *MockSubscriberSource) SubscribersFor(ctx context.Context, ticker string) ([]models.Subscriber, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Subscriber), args.Error(1)
}

type MockAlertSink struct {
	mock.Mock
}

func (m *MockAlertSink) InsertAlerts(ctx context.Context, alerts []models.AlertRecord) (int64, error) {
	args := m.Called(ctx, alerts)
	return args.Get(0).(int64), args.Error(1)
}

func newTestFanOut(t *testing.T, subs *MockSubscriberSource, sink *MockAlertSink) *AlertFanOut {
	_, client := testutil.NewMiniRedis(t)
	filter := NewCooldownFilter(cache.NewCooldownCache(client), testWindows, testLogger())
	return NewAlertFanOut(subs, filter, sink, 30*time.Minute, testLogger())
}

func TestAlertFanOut_DispatchOnceWithinCooldown(t *testing.T) {
	subs := new(MockSubscriberSource)
	sink := new(MockAlertSink)
	fanout := newTestFanOut(t, subs, sink)
	ctx := context.Background()

	state := BuildTickerState("X", scenarioRaw("X"))
	signals := newTestBank().Detect(state, models.PreviousState{})
	require.Len(t, signals, 1)

	subs.On("SubscribersFor", mock.Anything, "X").
		Return([]models.Subscriber{{UserID: "user-1", Settings: models.DefaultAlertSettings()}}, nil)
	sink.On("InsertAlerts", mock.Anything, mock.MatchedBy(func(alerts []models.AlertRecord) bool {
		return len(alerts) == 1 && alerts[0].UserID == "user-1"
	})).Return(int64(1), nil).Once()

	first, err := fanout.Dispatch(ctx, state, signals, scenarioTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Inserted)
	assert.Equal(t, 1, first.Delivered)

	second, err := fanout.Dispatch(ctx, state, signals, scenarioTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 1, second.Suppressed)

	sink.AssertNumberOfCalls(t, "InsertAlerts", 1)
	subs.AssertExpectations(t)
}

func TestAlertFanOut_NoSignalsSkipsLookup(t *testing.T) {
	subs := new(MockSubscriberSource)
	sink := new(MockAlertSink)
	fanout := newTestFanOut(t, subs, sink)

	result, err := fanout.Dispatch(context.Background(), models.TickerState{Ticker: "X"}, nil, scenarioTime)
	require.NoError(t, err)
	assert.Zero(t, result)
	subs.AssertNotCalled(t, "SubscribersFor", mock.Anything, mock.Anything)
}

func TestAlertFanOut_NoSubscribers(t *testing.T) {
	subs := new(MockSubscriberSource)
	sink := new(MockAlertSink)
	fanout := newTestFanOut(t, subs, sink)

	subs.On("SubscribersFor", mock.Anything, "X").Return([]models.Subscriber{}, nil)

	result, err := fanout.Dispatch(context.Background(), models.TickerState{Ticker: "X"},
		[]models.DetectedSignal{testSignal(models.SignalConfluence)}, scenarioTime)
	require.NoError(t, err)
	assert.Zero(t, result.Subscribers)
	sink.AssertNotCalled(t, "InsertAlerts", mock.Anything, mock.Anything)
}

func TestAlertFanOut_Errors(t *testing.T) {
	t.Run("subscriber lookup", func(t *testing.T) {
		subs := new(MockSubscriberSource)
		fanout := newTestFanOut(t, subs, new(MockAlertSink))
		subs.On("SubscribersFor", mock.Anything, "X").Return(nil, errors.New("db down"))

		_, err := fanout.Dispatch(context.Background(), models.TickerState{Ticker: "X"},
			[]models.DetectedSignal{testSignal(models.SignalConfluence)}, scenarioTime)
		assert.ErrorContains(t, err, "failed to resolve subscribers")
	})

	t.Run("insert", func(t *testing.T) {
		subs := new(MockSubscriberSource)
		sink := new(MockAlertSink)
		fanout := newTestFanOut(t, subs, sink)
		subs.On("SubscribersFor", mock.Anything, "X").
			Return([]models.Subscriber{{UserID: "u", Settings: models.DefaultAlertSettings()}}, nil)
		sink.On("InsertAlerts", mock.Anything, mock.Anything).Return(int64(0), errors.New("copy failed"))

		result, err := fanout.Dispatch(context.Background(), models.TickerState{Ticker: "X"},
			[]models.DetectedSignal{testSignal(models.SignalConfluence)}, scenarioTime)
		assert.ErrorContains(t, err, "copy failed")
		assert.Zero(t, result.Delivered)
		assert.Equal(t, 1, result.Released)
	})
}

func TestAlertFanOut_FailedInsertReleasesCooldown(t *testing.T) {
	subs := new(MockSubscriberSource)
	sink := new(MockAlertSink)
	fanout := newTestFanOut(t, subs, sink)
	ctx := context.Background()

	state := models.TickerState{Ticker: "X"}
	signals := []models.DetectedSignal{testSignal(models.SignalSweepCluster)}

	subs.On("SubscribersFor", mock.Anything, "X").
		Return([]models.Subscriber{{UserID: "user-1", Settings: models.DefaultAlertSettings()}}, nil)
	sink.On("InsertAlerts", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()
	sink.On("InsertAlerts", mock.Anything, mock.Anything).Return(int64(1), nil)

	_, err := fanout.Dispatch(ctx, state, signals, scenarioTime)
	require.Error(t, err)

	var persisted int64
	for i := 1; i <= 20; i++ {
		result, err := fanout.Dispatch(ctx, state, signals, scenarioTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		persisted += result.Inserted
	}

	assert.Equal(t, int64(1), persisted, "the signal is delivered once after the failed insert")
	sink.AssertNumberOfCalls(t, "InsertAlerts", 2)
}

func TestBuildAlertRecord(t *testing.T) {
	state := BuildTickerState("X", scenarioRaw("X"))
	signals := newTestBank().Detect(state, models.PreviousState{})
	require.Len(t, signals, 1)

	record, err := BuildAlertRecord(Delivery{
		Subscriber: models.Subscriber{UserID: "user-9"},
		Signal:     signals[0],
	}, scenarioTime, 30*time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, "user-9", record.UserID)
	assert.Equal(t, "X", record.Ticker)
	assert.Equal(t, models.SignalConfluence, record.SignalType)
	assert.Equal(t, models.Tier1, record.Tier)
	assert.Equal(t, scenarioTime, record.CreatedAt)
	assert.Equal(t, scenarioTime.Add(30*time.Minute), record.ExpiresAt)
	require.NotNil(t, record.TargetPrice)
	require.NotNil(t, record.StopPrice)
	assert.Equal(t, 105.0, *record.TargetPrice)
	assert.Equal(t, 98.0, *record.StopPrice)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(record.Payload, &payload))
	assert.Equal(t, "confluence", payload["type"])
	detail, ok := payload["detail"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), detail["aligned_count"])
}

func TestBuildAlertRecord_NonActionable(t *testing.T) {
	sig := testSignal(models.SignalNewsCatalyst)
	sig.Detail = models.NewsCatalystDetail{Sentiment: 0.8}

	record, err := BuildAlertRecord(Delivery{Subscriber: models.Subscriber{UserID: "u"}, Signal: sig}, scenarioTime, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, record.TargetPrice)
	assert.Nil(t, record.StopPrice)
}
