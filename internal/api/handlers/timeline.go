package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeyodha-signals/internal/models"
	"github.com/irfndi/tradeyodha-signals/internal/services"
	"github.com/irfndi/tradeyodha-signals/internal/utils"
)

const (
	defaultTimelineLimit = 100
	defaultThesisLimit   = 20
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// TimelineReader returns the newest recorded points and thesis snapshots,
// oldest first.
type TimelineReader interface {
	Points(ctx context.Context, ticker string, limit int) ([]models.TimelinePoint, error)
	Theses(ctx context.Context, ticker string, limit int) ([]models.ThesisSnapshot, error)
}

// TimelineHandler serves the recorded bias timeline of a ticker.
type TimelineHandler struct {
	reader    TimelineReader
	emaPeriod int
	maxLimit  int
}

func NewTimelineHandler(reader TimelineReader, emaPeriod, maxLimit int) *TimelineHandler {
	if maxLimit <= 0 {
		maxLimit = defaultTimelineLimit
	}
	return &TimelineHandler{
		reader:    reader,
		emaPeriod: emaPeriod,
		maxLimit:  maxLimit,
	}
}

// TimelineResponse carries raw points and the smoothed score series aligned
// with them. Smoothed entries are null until the average has warmed up.
// Direction is the reading of the newest point.
type TimelineResponse struct {
	Ticker    string                 `json:"ticker"`
	EMAPeriod int                    `json:"ema_period"`
	Direction models.Direction       `json:"direction,omitempty"`
	Points    []models.TimelinePoint `json:"points"`
	Smoothed  []*float64             `json:"smoothed"`
}

// ThesisResponse lists recent full thesis snapshots.
type ThesisResponse struct {
	Ticker    string                  `json:"ticker"`
	Snapshots []models.ThesisSnapshot `json:"snapshots"`
}

// GetTimeline handles GET /api/v1/timeline/:ticker?limit=N.
func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	ticker, limit, ok := h.parseRequest(c, defaultTimelineLimit)
	if !ok {
		return
	}

	points, err := h.reader.Points(c.Request.Context(), ticker, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to read timeline"})
		return
	}
	if points == nil {
		points = []models.TimelinePoint{}
	}

	response := TimelineResponse{
		Ticker:    ticker,
		EMAPeriod: h.emaPeriod,
		Points:    points,
		Smoothed:  services.SmoothScores(points, h.emaPeriod),
	}
	if len(points) > 0 {
		response.Direction = models.DirectionFromCode(points[len(points)-1].Direction)
	}
	c.JSON(http.StatusOK, response)
}

// GetThesis handles GET /api/v1/timeline/:ticker/thesis?limit=N.
func (h *TimelineHandler) GetThesis(c *gin.Context) {
	ticker, limit, ok := h.parseRequest(c, defaultThesisLimit)
	if !ok {
		return
	}

	snapshots, err := h.reader.Theses(c.Request.Context(), ticker, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to read thesis history"})
		return
	}
	if snapshots == nil {
		snapshots = []models.ThesisSnapshot{}
	}

	c.JSON(http.StatusOK, ThesisResponse{Ticker: ticker, Snapshots: snapshots})
}

// parseRequest writes the error response itself and reports whether the
// handler should continue.
func (h *TimelineHandler) parseRequest(c *gin.Context, defaultLimit int) (string, int, bool) {
	ticker, limit, err := h.parseParams(c, defaultLimit)
	if err != nil {
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
			return "", 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse request"})
		return "", 0, false
	}
	return ticker, limit, true
}

func (h *TimelineHandler) parseParams(c *gin.Context, defaultLimit int) (string, int, error) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if !tickerPattern.MatchString(ticker) {
		return "", 0, utils.NewValidationErrorf("invalid ticker %q", c.Param("ticker"))
	}

	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return "", 0, utils.NewValidationError("limit must be a positive integer")
		}
		limit = parsed
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}
	return ticker, limit, nil
}
