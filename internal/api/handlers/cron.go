package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeyodha-signals/internal/middleware"
	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/services"
)

// JobRunner is one scheduled job that reports a run summary.
type JobRunner interface {
	Run(ctx context.Context, opts services.RunOptions) models.RunSummary
}

// RunLogger records one event per finished run.
type RunLogger interface {
	LogRunSummary(job string, status string, details map[string]interface{})
}

// CronHandler exposes the scheduled jobs to the external scheduler.
type CronHandler struct {
	signals  JobRunner
	timeline JobRunner
	events   RunLogger
}

func NewCronHandler(signals, timeline JobRunner, events RunLogger) *CronHandler {
	return &CronHandler{
		signals:  signals,
		timeline: timeline,
		events:   events,
	}
}

// RunSignals runs one signal detection cycle.
func (h *CronHandler) RunSignals(c *gin.Context) {
	h.run(c, h.signals)
}

// RunTimeline records one timeline sample per tracked ticker.
func (h *CronHandler) RunTimeline(c *gin.Context) {
	h.run(c, h.timeline)
}

func (h *CronHandler) run(c *gin.Context, job JobRunner) {
	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "force must be a boolean"})
			return
		}
		force = parsed
	}

	summary := job.Run(c.Request.Context(), services.RunOptions{Force: force})

	middleware.AddSpanAttribute(c, "run.id", summary.RunID)
	middleware.AddSpanAttribute(c, "run.status", summary.Status)
	middleware.AddSpanAttribute(c, "run.tickers", summary.Tickers)

	if h.events != nil {
		h.events.LogRunSummary(summary.Job, summary.Status, map[string]interface{}{
			"run_id":           summary.RunID,
			"reason":           summary.Reason,
			"tickers":          summary.Tickers,
			"signals_detected": summary.SignalsDetected,
			"alerts_created":   summary.AlertsCreated,
			"points_written":   summary.PointsWritten,
			"elapsed_ms":       summary.ElapsedMs,
			"forced":           force,
		})
	}

	c.JSON(RunStatusCode(summary), summary)
}

// RunStatusCode maps a run summary onto the response status the scheduler
// acts on.
func RunStatusCode(summary models.RunSummary) int {
	if summary.Status != models.RunStatusError {
		return http.StatusOK
	}
	if summary.ErrorKind == models.RunErrorStoreUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
