package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// SubscriberSource resolves the users watching a ticker.
type SubscriberSource interface {
	SubscribersFor(ctx context.Context, ticker string) ([]models.Subscriber, error)
}

// AlertSink persists alert records.
type AlertSink interface {
	InsertAlerts(ctx context.Context, alerts []models.AlertRecord) (int64, error)
}

// FanOutResult summarizes one Dispatch call.
type FanOutResult struct {
	Subscribers int   `json:"subscribers"`
	Delivered   int   `json:"delivered"`
	Gated       int   `json:"gated"`
	Suppressed  int   `json:"suppressed"`
	Inserted    int64 `json:"inserted"`
	Released    int   `json:"released"`
}

// AlertFanOut turns detected signals into per-user alert rows.
type AlertFanOut struct {
	subscribers SubscriberSource
	filter      *CooldownFilter
	alerts      AlertSink
	alertTTL    time.Duration
	logger      *logrus.Logger
}

func NewAlertFanOut(subscribers SubscriberSource, filter *CooldownFilter, alerts AlertSink, alertTTL time.Duration, logger *logrus.Logger) *AlertFanOut {
	return &AlertFanOut{
		subscribers: subscribers,
		filter:      filter,
		alerts:      alerts,
		alertTTL:    alertTTL,
		logger:      logger,
	}
}

// Dispatch resolves subscribers, filters, and bulk-inserts the surviving alerts.
func (a *AlertFanOut) Dispatch(ctx context.Context, state models.TickerState, signals []models.DetectedSignal, now time.Time) (FanOutResult, error) {
	var result FanOutResult
	if len(signals) == 0 {
		return result, nil
	}

	subscribers, err := a.subscribers.SubscribersFor(ctx, state.Ticker)
	if err != nil {
		return result, fmt.Errorf("failed to resolve subscribers: %w", err)
	}
	result.Subscribers = len(subscribers)
	if len(subscribers) == 0 {
		return result, nil
	}

	filtered, err := a.filter.Filter(ctx, state.Ticker, signals, subscribers, now)
	result.Gated = filtered.Gated
	result.Suppressed = filtered.Suppressed + filtered.Errors
	if err != nil {
		return result, err
	}

	records := make([]models.AlertRecord, 0, len(filtered.Deliveries))
	built := make([]Delivery, 0, len(filtered.Deliveries))
	var unbuilt []Delivery
	for _, d := range filtered.Deliveries {
		record, err := BuildAlertRecord(d, now, a.alertTTL)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"ticker":      state.Ticker,
				"signal_type": string(d.Signal.Type),
				"error":       err.Error(),
			}).Error("Failed to build alert record")
			unbuilt = append(unbuilt, d)
			continue
		}
		records = append(records, record)
		built = append(built, d)
	}
	result.Delivered = len(records)
	result.Released = a.filter.Release(ctx, unbuilt)

	if len(records) == 0 {
		return result, nil
	}

	inserted, err := a.alerts.InsertAlerts(ctx, records)
	if err != nil {
		// nothing was persisted, so the cooldowns claimed above must not hold
		result.Released += a.filter.Release(ctx, built)
		result.Delivered = 0
		return result, fmt.Errorf("failed to insert alerts: %w", err)
	}
	result.Inserted = inserted

	a.logger.WithFields(logrus.Fields{
		"ticker":     state.Ticker,
		"signals":    len(signals),
		"alerts":     inserted,
		"suppressed": result.Suppressed,
	}).Info("Dispatched alerts")

	return result, nil
}

// BuildAlertRecord materializes one delivery. The payload is the full signal.
func BuildAlertRecord(d Delivery, now time.Time, ttl time.Duration) (models.AlertRecord, error) {
	payload, err := json.Marshal(d.Signal)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("failed to encode signal payload: %w", err)
	}

	record := models.AlertRecord{
		ID:         uuid.New(),
		UserID:     d.Subscriber.UserID,
		Ticker:     d.Signal.Ticker,
		SignalType: d.Signal.Type,
		Tier:       d.Signal.Tier,
		Title:      d.Signal.Title,
		Summary:    d.Signal.Summary,
		Bias:       d.Signal.Bias,
		Confidence: d.Signal.Confidence,
		Price:      d.Signal.Price,
		Payload:    payload,
		CreatedAt:  now.UTC(),
		ExpiresAt:  now.UTC().Add(ttl),
	}

	target, stop := d.Signal.TargetStop()
	if target != nil {
		v := target.InexactFloat64()
		record.TargetPrice = &v
	}
	if stop != nil {
		v := stop.InexactFloat64()
		record.StopPrice = &v
	}

	return record, nil
}
