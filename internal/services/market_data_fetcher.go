package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tradeyodha-signals/pkg/marketdata"
)

// Collaborator endpoint names, also used as circuit breaker names.
const (
	EndpointSnapshot         = "snapshot"
	EndpointFlow             = "flow"
	EndpointDarkPool         = "darkpool"
	EndpointVolumePressure   = "volume_pressure"
	EndpointLevels           = "levels"
	EndpointRelativeStrength = "relative_strength"
	EndpointNews             = "news_sentiment"
)

// MarketDataSource is the collaborator API consumed per ticker.
type MarketDataSource interface {
	Snapshot(ctx context.Context, ticker string) (*marketdata.Snapshot, error)
	Flow(ctx context.Context, ticker string) (*marketdata.FlowStats, error)
	DarkPool(ctx context.Context, ticker string) (*marketdata.DarkPoolStats, error)
	VolumePressure(ctx context.Context, ticker string) (*marketdata.VolumePressureStats, error)
	Levels(ctx context.Context, ticker string) (*marketdata.Levels, error)
	RelativeStrength(ctx context.Context, ticker string) (*marketdata.RelativeStrength, error)
	NewsSentiment(ctx context.Context, ticker string) (*marketdata.NewsSentiment, error)
}

// MarketDataFetcher gathers every collaborator reading for one ticker.
type MarketDataFetcher struct {
	source      MarketDataSource
	breakers    *CircuitBreakerManager
	newsEnabled bool
	logger      *logrus.Logger
}

func NewMarketDataFetcher(source MarketDataSource, breakers *CircuitBreakerManager, newsEnabled bool, logger *logrus.Logger) *MarketDataFetcher {
	return &MarketDataFetcher{
		source:      source,
		breakers:    breakers,
		newsEnabled: newsEnabled,
		logger:      logger,
	}
}

// Fetch issues the collaborator calls concurrently. A failed or short-circuited
// call leaves its field nil and is recorded in Failures; Fetch itself never fails.
func (f *MarketDataFetcher) Fetch(ctx context.Context, ticker string, now time.Time) RawTickerData {
	ticker = strings.ToUpper(ticker)
	raw := RawTickerData{
		Ticker:    ticker,
		Failures:  make(map[string]string),
		FetchedAt: now,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	run := func(endpoint string, call func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					raw.Failures[endpoint] = fmt.Sprintf("panic: %v", r)
					mu.Unlock()
				}
			}()
			if err := call(); err != nil {
				mu.Lock()
				raw.Failures[endpoint] = err.Error()
				mu.Unlock()
			}
		}()
	}

	run(EndpointSnapshot, func() (err error) {
		raw.Snapshot, err = fetchEndpoint(ctx, f.breakers.Get(EndpointSnapshot), ticker, f.source.Snapshot)
		return err
	})
	run(EndpointFlow, func() (err error) {
		raw.Flow, err = fetchEndpoint(ctx, f.breakers.Get(EndpointFlow), ticker, f.source.Flow)
		return err
	})
	run(EndpointDarkPool, func() (err error) {
		raw.DarkPool, err = fetchEndpoint(ctx, f.breakers.Get(EndpointDarkPool), ticker, f.source.DarkPool)
		return err
	})
	run(EndpointVolumePressure, func() (err error) {
		raw.VolumePressure, err = fetchEndpoint(ctx, f.breakers.Get(EndpointVolumePressure), ticker, f.source.VolumePressure)
		return err
	})
	run(EndpointLevels, func() (err error) {
		raw.Levels, err = fetchEndpoint(ctx, f.breakers.Get(EndpointLevels), ticker, f.source.Levels)
		return err
	})
	run(EndpointRelativeStrength, func() (err error) {
		raw.RelativeStrength, err = fetchEndpoint(ctx, f.breakers.Get(EndpointRelativeStrength), ticker, f.source.RelativeStrength)
		return err
	})
	if f.newsEnabled {
		run(EndpointNews, func() (err error) {
			raw.News, err = fetchEndpoint(ctx, f.breakers.Get(EndpointNews), ticker, f.source.NewsSentiment)
			return err
		})
	}

	wg.Wait()

	if len(raw.Failures) > 0 {
		f.logger.WithFields(logrus.Fields{
			"ticker":   ticker,
			"failures": raw.Failures,
		}).Warn("Market data partially unavailable, using neutral values")
	}

	return raw
}

// fetchEndpoint runs call behind breaker. Client errors other than 429 are
// returned to the caller without counting against the breaker.
func fetchEndpoint[T any](ctx context.Context, breaker *CircuitBreaker, ticker string, call func(context.Context, string) (*T, error)) (*T, error) {
	var (
		out      *T
		rejected error
	)
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := call(ctx, ticker)
		if err != nil {
			if isClientRejection(err) {
				rejected = err
				return nil
			}
			if marketdata.IsStatus(err, http.StatusTooManyRequests) {
				return fmt.Errorf("rate limited: %w", err)
			}
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}
	return out, nil
}

func isClientRejection(err error) bool {
	var statusErr *marketdata.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		!marketdata.IsStatus(err, http.StatusTooManyRequests)
}
