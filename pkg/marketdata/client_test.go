package marketdata_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/config"
	"github.com/irfndi/tradeyodha-signals/pkg/marketdata"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *marketdata.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return marketdata.NewClient(config.MarketDataConfig{
		BaseURL: server.URL + "/",
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNewClient(t *testing.T) {
	client := marketdata.NewClient(config.MarketDataConfig{BaseURL: "http://localhost:9000/"})
	assert.Equal(t, "http://localhost:9000", client.BaseURL)
	assert.Equal(t, 8*time.Second, client.HTTPClient.Timeout)
}

func TestClient_Snapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/snapshot/AAPL", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "TradeYodha-Signals/1.0", r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, marketdata.Snapshot{Ticker: "AAPL", Price: 187.2, ChangePercent: 0.8})
	})

	snapshot, err := client.Snapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 187.2, snapshot.Price)
	assert.Equal(t, 0.8, snapshot.ChangePercent)
}

func TestClient_NotFoundIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, marketdata.ErrorResponse{Error: "unknown ticker"})
	})

	flow, err := client.Flow(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, flow)
}

func TestClient_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, marketdata.ErrorResponse{Error: "upstream unavailable"})
	})

	dp, err := client.DarkPool(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Nil(t, dp)
	assert.True(t, marketdata.IsStatus(err, http.StatusBadGateway))
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := client.Levels(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}

func TestClient_RelativeStrengthSendsBenchmark(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/relative-strength/NVDA", r.URL.Path)
		assert.Equal(t, "SPY", r.URL.Query().Get("benchmark"))
		writeJSON(w, http.StatusOK, marketdata.RelativeStrength{Ticker: "NVDA", Benchmark: "SPY", Value: 0.5})
	})

	rs, err := client.RelativeStrength(context.Background(), "NVDA")
	require.NoError(t, err)
	require.NotNil(t, rs)
	assert.Equal(t, 0.5, rs.Value)
}

func TestClient_AllEndpoints(t *testing.T) {
	paths := make(chan string, 8)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		switch r.URL.Path {
		case "/v1/volume-pressure/QQQ":
			writeJSON(w, http.StatusOK, marketdata.VolumePressureStats{
				Pressure: 40,
				Buckets:  []marketdata.VolumeBucket{{Timestamp: 1, BuyVolume: 10, SellVolume: 5}},
			})
		case "/v1/news-sentiment/QQQ":
			writeJSON(w, http.StatusOK, marketdata.NewsSentiment{Sentiment: -0.7, ArticleCount: 3})
		case "/health":
			writeJSON(w, http.StatusOK, marketdata.HealthResponse{Status: "ok"})
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{})
		}
	})
	ctx := context.Background()

	vp, err := client.VolumePressure(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, 40.0, vp.Pressure)
	require.Len(t, vp.Buckets, 1)

	news, err := client.NewsSentiment(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, -0.7, news.Sentiment)

	health, err := client.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	assert.Equal(t, "/v1/volume-pressure/QQQ", <-paths)
	assert.Equal(t, "/v1/news-sentiment/QQQ", <-paths)
	assert.Equal(t, "/health", <-paths)
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, marketdata.Snapshot{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Snapshot(ctx, "AAPL")
	require.Error(t, err)
}
