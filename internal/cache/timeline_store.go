package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

const (
	timelinePrefix = "signals:timeline:"
	thesisPrefix   = "signals:thesis:"
)

// TimelineStoreConfig bounds the two per-ticker lists.
type TimelineStoreConfig struct {
	MaxPoints int
	TTL       time.Duration
	ThesisMax int
	ThesisTTL time.Duration
}

// TimelineStore appends compact score samples and full thesis snapshots to
// capped, expiring Redis lists.
type TimelineStore struct {
	redis redis.Cmdable
	cfg   TimelineStoreConfig
}

func NewTimelineStore(client redis.Cmdable, cfg TimelineStoreConfig) *TimelineStore {
	return &TimelineStore{redis: client, cfg: cfg}
}

func timelineKey(ticker string) string { return timelinePrefix + strings.ToUpper(ticker) }
func thesisKey(ticker string) string   { return thesisPrefix + strings.ToUpper(ticker) }

// Last returns the newest point, or nil when the list is empty.
func (s *TimelineStore) Last(ctx context.Context, ticker string) (*models.TimelinePoint, error) {
	raw, err := s.redis.LIndex(ctx, timelineKey(ticker), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last timeline point for %s: %w", ticker, err)
	}

	var point models.TimelinePoint
	if err := json.Unmarshal(raw, &point); err != nil {
		return nil, fmt.Errorf("failed to decode timeline point for %s: %w", ticker, err)
	}
	return &point, nil
}

// Append pushes a point, trims the list to the newest MaxPoints and refreshes
// its expiry in one MULTI block.
func (s *TimelineStore) Append(ctx context.Context, ticker string, point models.TimelinePoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("failed to encode timeline point: %w", err)
	}
	return s.pushCapped(ctx, timelineKey(ticker), data, s.cfg.MaxPoints, s.cfg.TTL)
}

// AppendThesis pushes a full snapshot to the long-retention list.
func (s *TimelineStore) AppendThesis(ctx context.Context, snapshot models.ThesisSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode thesis snapshot: %w", err)
	}
	return s.pushCapped(ctx, thesisKey(snapshot.Ticker), data, s.cfg.ThesisMax, s.cfg.ThesisTTL)
}

func (s *TimelineStore) pushCapped(ctx context.Context, key string, data []byte, maxLen int, ttl time.Duration) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-maxLen), -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

// Points returns up to limit of the newest points, oldest first. A limit of
// zero or less returns the whole list.
func (s *TimelineStore) Points(ctx context.Context, ticker string, limit int) ([]models.TimelinePoint, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.redis.LRange(ctx, timelineKey(ticker), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline for %s: %w", ticker, err)
	}

	points := make([]models.TimelinePoint, 0, len(raw))
	for _, item := range raw {
		var point models.TimelinePoint
		if err := json.Unmarshal([]byte(item), &point); err != nil {
			continue
		}
		points = append(points, point)
	}
	return points, nil
}

// Theses returns up to limit of the newest thesis snapshots, oldest first.
func (s *TimelineStore) Theses(ctx context.Context, ticker string, limit int) ([]models.ThesisSnapshot, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.redis.LRange(ctx, thesisKey(ticker), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read thesis snapshots for %s: %w", ticker, err)
	}

	snapshots := make([]models.ThesisSnapshot, 0, len(raw))
	for _, item := range raw {
		var snapshot models.ThesisSnapshot
		if err := json.Unmarshal([]byte(item), &snapshot); err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
