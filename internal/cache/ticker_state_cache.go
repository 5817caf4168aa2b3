package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

const tickerStatePrefix = "signals:state:"

// TickerStateCacheStats tracks cache performance counters.
type TickerStateCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// TickerStateCache keeps the last processed state of every ticker so the next
// cycle can compare against it.
type TickerStateCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewTickerStateCache creates a Redis-backed ticker state cache.
func NewTickerStateCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *TickerStateCache {
	return &TickerStateCache{
		redis:  client,
		ttl:    ttl,
		prefix: tickerStatePrefix,
		logger: logger,
	}
}

func (c *TickerStateCache) key(ticker string) string {
	return c.prefix + strings.ToUpper(ticker)
}

// Get returns the cached entry for ticker, or nil when there is none.
// An undecodable entry is treated as a miss.
func (c *TickerStateCache) Get(ctx context.Context, ticker string) (*models.CachedTickerState, error) {
	data, err := c.redis.Get(ctx, c.key(ticker)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		c.misses.Add(1)
		return nil, fmt.Errorf("failed to read ticker state for %s: %w", ticker, err)
	}

	var entry models.CachedTickerState
	if err := json.Unmarshal(data, &entry); err != nil {
		c.misses.Add(1)
		c.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"error":  err.Error(),
		}).Warn("Discarding undecodable cached ticker state")
		return nil, nil
	}

	c.hits.Add(1)
	return &entry, nil
}

// Previous returns the projection the detectors compare against.
func (c *TickerStateCache) Previous(ctx context.Context, ticker string) (models.PreviousState, error) {
	entry, err := c.Get(ctx, ticker)
	if err != nil {
		return models.PreviousState{}, err
	}
	return models.PreviousFromCache(entry), nil
}

// Set stores the state and its derived projection with the configured TTL.
func (c *TickerStateCache) Set(ctx context.Context, state models.TickerState, derived models.Derived, now time.Time) error {
	entry := models.CachedTickerState{
		State:    state,
		Derived:  derived,
		CachedAt: now.UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ticker state for %s: %w", state.Ticker, err)
	}

	if err := c.redis.Set(ctx, c.key(state.Ticker), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write ticker state for %s: %w", state.Ticker, err)
	}

	c.sets.Add(1)
	return nil
}

// CachedTickers lists the tickers that currently have a cached state.
func (c *TickerStateCache) CachedTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		tickers = append(tickers, strings.TrimPrefix(iter.Val(), c.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning ticker state keys: %w", err)
	}
	return tickers, nil
}

// GetStats returns current cache statistics.
func (c *TickerStateCache) GetStats() TickerStateCacheStats {
	return TickerStateCacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
	}
}

// LogStats logs current cache performance statistics.
func (c *TickerStateCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Ticker state cache stats")
}
