package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// AlertStore is the expiry and counting surface of the alert table.
type AlertStore interface {
	DeleteExpiredAlerts(ctx context.Context, now time.Time) (int64, error)
	CountAlerts(ctx context.Context, now time.Time) (total int64, active int64, err error)
}

// WatchlistCounter counts watchlist rows for the data-stats endpoint.
type WatchlistCounter interface {
	CountWatchlistEntries(ctx context.Context) (int64, error)
}

// StateCacheInspector reports what the ticker state cache currently holds.
type StateCacheInspector interface {
	CachedTickers(ctx context.Context) ([]string, error)
	GetStats() cache.TickerStateCacheStats
}

// CleanupService handles removal of expired cooldowns and alerts
type CleanupService struct {
	cooldowns CooldownStore
	alerts    AlertStore
	watchlist WatchlistCounter
	states    StateCacheInspector
	logger    *logrus.Logger
	now       func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(cooldowns CooldownStore, alerts AlertStore, watchlist WatchlistCounter, logger *logrus.Logger) *CleanupService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		cooldowns: cooldowns,
		alerts:    alerts,
		watchlist: watchlist,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetStateCache adds the ticker state cache to the data stats.
func (c *CleanupService) SetStateCache(states StateCacheInspector) {
	c.states = states
}

// Start begins periodic cleanup in the background. It is a no-op when the
// service is already running.
func (c *CleanupService) Start(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || interval <= 0 {
		return
	}
	c.running = true

	c.logger.WithField("interval", interval.String()).Info("Starting cleanup service")

	ticker := time.NewTicker(interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RunCleanup(c.ctx, c.now()); err != nil {
					c.logger.WithError(err).Warn("Periodic cleanup failed")
				}
			}
		}
	}()
}

// Stop stops the cleanup service and waits for an in-flight sweep.
func (c *CleanupService) Stop() {
	c.logger.Info("Stopping cleanup service")
	c.cancel()
	c.wg.Wait()
}

// RunCleanup deletes expired cooldowns and alerts. Both deletions are
// attempted; the first error is returned alongside the partial counts.
func (c *CleanupService) RunCleanup(ctx context.Context, now time.Time) (models.CleanupResult, error) {
	var result models.CleanupResult
	var firstErr error

	deleted, err := c.cooldowns.DeleteExpired(ctx, now)
	if err != nil {
		firstErr = fmt.Errorf("failed to cleanup cooldowns: %w", err)
	}
	result.CooldownsDeleted = deleted

	deleted, err = c.alerts.DeleteExpiredAlerts(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to cleanup alerts: %w", err)
	}
	result.AlertsDeleted = deleted

	if result.CooldownsDeleted > 0 || result.AlertsDeleted > 0 {
		c.logger.WithFields(logrus.Fields{
			"cooldowns_deleted": result.CooldownsDeleted,
			"alerts_deleted":    result.AlertsDeleted,
		}).Info("Cleaned up expired signal data")
	}

	return result, firstErr
}

// GetDataStats returns statistics about current data storage
func (c *CleanupService) GetDataStats(ctx context.Context) (map[string]int64, error) {
	now := c.now()
	stats := make(map[string]int64)

	active, err := c.cooldowns.CountActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count cooldowns: %w", err)
	}
	stats["active_cooldowns"] = active

	total, live, err := c.alerts.CountAlerts(ctx, now)
	if err != nil {
		return nil, err
	}
	stats["alerts_total"] = total
	stats["alerts_active"] = live

	if c.watchlist != nil {
		entries, err := c.watchlist.CountWatchlistEntries(ctx)
		if err != nil {
			return nil, err
		}
		stats["watchlist_entries"] = entries
	}

	if c.states != nil {
		tickers, err := c.states.CachedTickers(ctx)
		if err != nil {
			return nil, err
		}
		stats["cached_tickers"] = int64(len(tickers))

		counters := c.states.GetStats()
		stats["state_cache_hits"] = counters.Hits
		stats["state_cache_misses"] = counters.Misses
		stats["state_cache_sets"] = counters.Sets
	}

	return stats, nil
}
