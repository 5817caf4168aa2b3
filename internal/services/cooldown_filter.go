package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// CooldownStore holds per (user, ticker, type) suppression windows.
type CooldownStore interface {
	// Reserve reports true when no unexpired window exists for key. Either
	// way the window ends at now+window afterwards.
	Reserve(ctx context.Context, key models.CooldownKey, window time.Duration, now time.Time) (bool, error)
	// Release drops the window for key only if it is still the one claimed at
	// firedAt.
	Release(ctx context.Context, key models.CooldownKey, firedAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

const releaseTimeout = 5 * time.Second

// Delivery is one (user, signal) pair that passed filtering.
type Delivery struct {
	Subscriber models.Subscriber
	Signal     models.DetectedSignal
	Key        models.CooldownKey
	ReservedAt time.Time
}

// FilterResult is the outcome of one Filter call.
type FilterResult struct {
	Deliveries []Delivery
	Gated      int // rejected by sensitivity or allow-list
	Suppressed int // inside an active cooldown
	Errors     int // store failures, also suppressed
}

// CooldownWindows maps a tier to its suppression window.
type CooldownWindows func(tier int) time.Duration

// CooldownFilter applies the settings gate and the cooldown to each pair.
type CooldownFilter struct {
	store   CooldownStore
	windows CooldownWindows
	logger  *logrus.Logger
}

func NewCooldownFilter(store CooldownStore, windows CooldownWindows, logger *logrus.Logger) *CooldownFilter {
	return &CooldownFilter{store: store, windows: windows, logger: logger}
}

// Filter returns the pairs that should become alerts. A store error on one
// pair suppresses only that pair. The error return is the context error when
// the caller gave up part way.
func (f *CooldownFilter) Filter(ctx context.Context, ticker string, signals []models.DetectedSignal, subscribers []models.Subscriber, now time.Time) (FilterResult, error) {
	var result FilterResult

	for _, sig := range signals {
		window := f.windows(int(sig.Tier))
		for _, sub := range subscribers {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if !sub.Settings.Allows(sig.Type, sig.Tier) {
				result.Gated++
				continue
			}

			key := models.CooldownKey{UserID: sub.UserID, Ticker: ticker, SignalType: sig.Type}
			accepted, err := f.store.Reserve(ctx, key, window, now)
			if err != nil {
				result.Errors++
				f.logger.WithFields(logrus.Fields{
					"ticker":      ticker,
					"user_id":     sub.UserID,
					"signal_type": string(sig.Type),
					"error":       err.Error(),
				}).Warn("Cooldown reservation failed, suppressing alert")
				continue
			}
			if !accepted {
				result.Suppressed++
				continue
			}

			result.Deliveries = append(result.Deliveries, Delivery{
				Subscriber: sub,
				Signal:     sig,
				Key:        key,
				ReservedAt: now,
			})
		}
	}

	return result, nil
}

// Release hands back the windows claimed for deliveries that never became
// alerts, so the next detection can deliver them. It runs even when ctx is
// already done and returns how many windows were released.
func (f *CooldownFilter) Release(ctx context.Context, deliveries []Delivery) int {
	if len(deliveries) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released := 0
	for _, d := range deliveries {
		if err := f.store.Release(ctx, d.Key, d.ReservedAt); err != nil {
			f.logger.WithFields(logrus.Fields{
				"ticker":      d.Key.Ticker,
				"user_id":     d.Key.UserID,
				"signal_type": string(d.Key.SignalType),
				"error":       err.Error(),
			}).Error("Failed to release cooldown, alert stays suppressed until the window lapses")
			continue
		}
		released++
	}
	return released
}
