package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// CleanupInterface defines the interface for cleanup operations
type CleanupInterface interface {
	GetDataStats(ctx context.Context) (map[string]int64, error)
	RunCleanup(ctx context.Context, now time.Time) (models.CleanupResult, error)
}

// CleanupHandler handles cleanup-related API endpoints
type CleanupHandler struct {
	cleanupService CleanupInterface
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(cleanupService CleanupInterface) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
	}
}

// DataStatsResponse represents the response for data statistics
type DataStatsResponse struct {
	ActiveCooldowns  int64 `json:"active_cooldowns"`
	AlertsTotal      int64 `json:"alerts_total"`
	AlertsActive     int64 `json:"alerts_active"`
	WatchlistEntries int64 `json:"watchlist_entries"`
	CachedTickers    int64 `json:"cached_tickers"`
	StateCacheHits   int64 `json:"state_cache_hits"`
	StateCacheMisses int64 `json:"state_cache_misses"`
	StateCacheSets   int64 `json:"state_cache_sets"`
}

func newDataStatsResponse(stats map[string]int64) DataStatsResponse {
	return DataStatsResponse{
		ActiveCooldowns:  stats["active_cooldowns"],
		AlertsTotal:      stats["alerts_total"],
		AlertsActive:     stats["alerts_active"],
		WatchlistEntries: stats["watchlist_entries"],
		CachedTickers:    stats["cached_tickers"],
		StateCacheHits:   stats["state_cache_hits"],
		StateCacheMisses: stats["state_cache_misses"],
		StateCacheSets:   stats["state_cache_sets"],
	}
}

// GetDataStats returns statistics about current data storage
func (h *CleanupHandler) GetDataStats(c *gin.Context) {
	stats, err := h.cleanupService.GetDataStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get data statistics"})
		return
	}

	c.JSON(http.StatusOK, newDataStatsResponse(stats))
}

// TriggerCleanup removes expired cooldowns and alerts now.
func (h *CleanupHandler) TriggerCleanup(c *gin.Context) {
	deleted, err := h.cleanupService.RunCleanup(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to run cleanup",
			"deleted": deleted,
		})
		return
	}

	stats, err := h.cleanupService.GetDataStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup completed but failed to get updated statistics"})
		return
	}

	response := struct {
		Message string               `json:"message"`
		Deleted models.CleanupResult `json:"deleted"`
		Stats   DataStatsResponse    `json:"stats"`
	}{
		Message: "Cleanup completed successfully",
		Deleted: deleted,
		Stats:   newDataStatsResponse(stats),
	}

	c.JSON(http.StatusOK, response)
}
