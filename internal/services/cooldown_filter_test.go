package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/testutil"
)

func testWindows(tier int) time.Duration {
	if tier >= 3 {
		return 30 * time.Minute
	}
	return 15 * time.Minute
}

// flakyCooldownStore fails Reserve and Release for one user and accepts everything else.
type flakyCooldownStore struct {
	failUser string
	reserved []models.CooldownKey
	released []models.CooldownKey
}

func (s *flakyCooldownStore) Reserve(_ context.Context, key models.CooldownKey, _ time.Duration, _ time.Time) (bool, error) {
	if key.UserID == s.failUser {
		return false, errors.New("connection reset")
	}
	s.reserved = append(s.reserved, key)
	return true, nil
}

func (s *flakyCooldownStore) Release(_ context.Context, key models.CooldownKey, _ time.Time) error {
	if key.UserID == s.failUser {
		return errors.New("connection reset")
	}
	s.released = append(s.released, key)
	return nil
}

func (s *flakyCooldownStore) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *flakyCooldownStore) CountActive(context.Context, time.Time) (int64, error)   { return 0, nil }

func testSignal(t models.SignalType) models.DetectedSignal {
	return models.DetectedSignal{
		Type:       t,
		Tier:       t.Tier(),
		Ticker:     "AAPL",
		Title:      "AAPL test",
		Bias:       models.BiasBullish,
		Confidence: 70,
		Price:      190,
		DetectedAt: scenarioTime,
	}
}

func TestCooldownFilter_SettingsGate(t *testing.T) {
	store := &flakyCooldownStore{}
	filter := NewCooldownFilter(store, testWindows, testLogger())

	subscribers := []models.Subscriber{
		{UserID: "default", Settings: models.DefaultAlertSettings()},
		{UserID: "low", Settings: models.CustomAlertSettings(models.SensitivityLow, nil)},
		{UserID: "high", Settings: models.CustomAlertSettings(models.SensitivityHigh, nil)},
		{UserID: "only-news", Settings: models.CustomAlertSettings(models.SensitivityHigh, []string{"news_catalyst"})},
		{UserID: "nothing", Settings: models.CustomAlertSettings(models.SensitivityHigh, []string{})},
	}
	signals := []models.DetectedSignal{
		testSignal(models.SignalConfluence),
		testSignal(models.SignalSweepCluster),
		testSignal(models.SignalNewsCatalyst),
	}

	result, err := filter.Filter(context.Background(), "AAPL", signals, subscribers, scenarioTime)
	require.NoError(t, err)

	delivered := map[string][]models.SignalType{}
	for _, d := range result.Deliveries {
		delivered[d.Subscriber.UserID] = append(delivered[d.Subscriber.UserID], d.Signal.Type)
	}

	assert.ElementsMatch(t, []models.SignalType{models.SignalConfluence, models.SignalSweepCluster}, delivered["default"])
	assert.ElementsMatch(t, []models.SignalType{models.SignalConfluence}, delivered["low"])
	assert.ElementsMatch(t, []models.SignalType{models.SignalConfluence, models.SignalSweepCluster, models.SignalNewsCatalyst}, delivered["high"])
	assert.ElementsMatch(t, []models.SignalType{models.SignalNewsCatalyst}, delivered["only-news"])
	assert.Empty(t, delivered["nothing"])
	assert.Equal(t, 8, result.Gated)
	assert.Len(t, store.reserved, 7)
}

func TestCooldownFilter_StoreErrorSuppressesOnlyThatPair(t *testing.T) {
	store := &flakyCooldownStore{failUser: "broken"}
	filter := NewCooldownFilter(store, testWindows, testLogger())

	subscribers := []models.Subscriber{
		{UserID: "broken", Settings: models.DefaultAlertSettings()},
		{UserID: "fine", Settings: models.DefaultAlertSettings()},
	}

	result, err := filter.Filter(context.Background(), "AAPL",
		[]models.DetectedSignal{testSignal(models.SignalConfluence)}, subscribers, scenarioTime)
	require.NoError(t, err)

	require.Len(t, result.Deliveries, 1)
	assert.Equal(t, "fine", result.Deliveries[0].Subscriber.UserID)
	assert.Equal(t, 1, result.Errors)
}

func TestCooldownFilter_CancelledContext(t *testing.T) {
	filter := NewCooldownFilter(&flakyCooldownStore{}, testWindows, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := filter.Filter(ctx, "AAPL",
		[]models.DetectedSignal{testSignal(models.SignalConfluence)},
		[]models.Subscriber{{UserID: "u", Settings: models.DefaultAlertSettings()}}, scenarioTime)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCooldownFilter_RedisIdempotence(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	filter := NewCooldownFilter(cache.NewCooldownCache(client), testWindows, testLogger())
	ctx := context.Background()

	subscribers := []models.Subscriber{{UserID: "user-1", Settings: models.DefaultAlertSettings()}}
	signals := []models.DetectedSignal{testSignal(models.SignalConfluence)}

	first, err := filter.Filter(ctx, "AAPL", signals, subscribers, scenarioTime)
	require.NoError(t, err)
	assert.Len(t, first.Deliveries, 1)

	mr.FastForward(5 * time.Minute)

	second, err := filter.Filter(ctx, "AAPL", signals, subscribers, scenarioTime.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, second.Deliveries)
	assert.Equal(t, 1, second.Suppressed)

	// The second firing pushed the window out again.
	assert.Equal(t, 15*time.Minute, mr.TTL("signals:cooldown:user-1:AAPL:confluence"))

	mr.FastForward(16 * time.Minute)
	third, err := filter.Filter(ctx, "AAPL", signals, subscribers, scenarioTime.Add(21*time.Minute))
	require.NoError(t, err)
	assert.Len(t, third.Deliveries, 1)
}

func TestCooldownFilter_Release(t *testing.T) {
	store := &flakyCooldownStore{failUser: "bad"}
	filter := NewCooldownFilter(store, testWindows, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	released := filter.Release(ctx, []Delivery{
		{Key: models.CooldownKey{UserID: "good", Ticker: "AAPL", SignalType: models.SignalConfluence}, ReservedAt: scenarioTime},
		{Key: models.CooldownKey{UserID: "bad", Ticker: "AAPL", SignalType: models.SignalConfluence}, ReservedAt: scenarioTime},
	})

	assert.Equal(t, 1, released, "a cancelled caller still releases")
	require.Len(t, store.released, 1)
	assert.Equal(t, "good", store.released[0].UserID)
	assert.Zero(t, filter.Release(ctx, nil))
}

func TestCooldownFilter_DeliveriesCarryReservation(t *testing.T) {
	store := &flakyCooldownStore{}
	filter := NewCooldownFilter(store, testWindows, testLogger())

	result, err := filter.Filter(context.Background(), "AAPL",
		[]models.DetectedSignal{testSignal(models.SignalThesisFlip)},
		[]models.Subscriber{{UserID: "u1", Settings: models.DefaultAlertSettings()}}, scenarioTime)
	require.NoError(t, err)
	require.Len(t, result.Deliveries, 1)

	d := result.Deliveries[0]
	assert.Equal(t, models.CooldownKey{UserID: "u1", Ticker: "AAPL", SignalType: models.SignalThesisFlip}, d.Key)
	assert.Equal(t, scenarioTime, d.ReservedAt)
}
