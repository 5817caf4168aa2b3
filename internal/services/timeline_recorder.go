package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// TimelineStore is the bounded list storage behind the recorder.
type TimelineStore interface {
	Last(ctx context.Context, ticker string) (*models.TimelinePoint, error)
	Append(ctx context.Context, ticker string, point models.TimelinePoint) error
	AppendThesis(ctx context.Context, snapshot models.ThesisSnapshot) error
	Points(ctx context.Context, ticker string, limit int) ([]models.TimelinePoint, error)
	Theses(ctx context.Context, ticker string, limit int) ([]models.ThesisSnapshot, error)
}

// TimelineRecorder writes throttled score samples and unthrottled thesis snapshots.
type TimelineRecorder struct {
	store       TimelineStore
	minInterval time.Duration
	logger      *logrus.Logger
}

func NewTimelineRecorder(store TimelineStore, minInterval time.Duration, logger *logrus.Logger) *TimelineRecorder {
	return &TimelineRecorder{store: store, minInterval: minInterval, logger: logger}
}

// ShouldRecord reports whether the newest stored point is old enough.
func (r *TimelineRecorder) ShouldRecord(ctx context.Context, ticker string, now time.Time) (bool, error) {
	last, err := r.store.Last(ctx, ticker)
	if err != nil {
		return false, fmt.Errorf("failed to read last timeline point: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(last.Time()) >= r.minInterval, nil
}

// Record appends a timeline point unless one was written within the minimum
// interval, then always appends the thesis snapshot. It reports whether the
// point was written.
func (r *TimelineRecorder) Record(ctx context.Context, ticker string, state models.TickerState, derived models.Derived, bias models.BiasResult, now time.Time) (bool, error) {
	ok, err := r.ShouldRecord(ctx, ticker, now)
	if err != nil {
		return false, err
	}

	written := false
	if ok {
		point := models.TimelinePoint{
			Timestamp: now.UnixMilli(),
			Score:     round1(bias.Score),
			Direction: bias.Direction.Code(),
			BullCount: bias.BullCount(),
			BearCount: bias.BearCount(),
		}
		if err := r.store.Append(ctx, ticker, point); err != nil {
			return false, fmt.Errorf("failed to append timeline point: %w", err)
		}
		written = true
	}

	snapshot := models.ThesisSnapshot{
		Ticker:    state.Ticker,
		Timestamp: now.UTC(),
		Bias:      bias,
		State:     state,
		Derived:   derived,
	}
	if err := r.store.AppendThesis(ctx, snapshot); err != nil {
		// thesis history is best effort
		r.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"error":  err.Error(),
		}).Warn("Failed to append thesis snapshot")
	}

	return written, nil
}

// Points reads back the newest limit points, oldest first.
func (r *TimelineRecorder) Points(ctx context.Context, ticker string, limit int) ([]models.TimelinePoint, error) {
	return r.store.Points(ctx, ticker, limit)
}

// Theses reads back the newest limit thesis snapshots, oldest first.
func (r *TimelineRecorder) Theses(ctx context.Context, ticker string, limit int) ([]models.ThesisSnapshot, error) {
	return r.store.Theses(ctx, ticker, limit)
}

// SmoothScores returns an EMA of the point scores aligned with points. Entries
// before the first full period are nil.
func SmoothScores(points []models.TimelinePoint, period int) []*float64 {
	smoothed := make([]*float64, len(points))
	if period <= 1 {
		for i := range points {
			score := points[i].Score
			smoothed[i] = &score
		}
		return smoothed
	}
	if len(points) < period {
		return smoothed
	}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(scores)))

	offset := len(points) - len(values)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		rounded := round1(v)
		smoothed[offset+i] = &rounded
	}
	return smoothed
}
