package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

var alertColumns = []string{
	"id", "user_id", "ticker", "signal_type", "tier", "title", "summary", "bias",
	"confidence", "price", "target_price", "stop_price", "payload", "created_at", "expires_at",
}

// AlertRepository persists alerts for the notification layer.
type AlertRepository struct {
	pool DatabasePool
}

func NewAlertRepository(pool DatabasePool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// InsertAlerts bulk-loads records with COPY and returns the row count.
func (r *AlertRepository) InsertAlerts(ctx context.Context, alerts []models.AlertRecord) (int64, error) {
	if len(alerts) == 0 {
		return 0, nil
	}

	source := pgx.CopyFromSlice(len(alerts), func(i int) ([]any, error) {
		a := alerts[i]
		return []any{
			a.ID, a.UserID, a.Ticker, string(a.SignalType), int(a.Tier), a.Title, a.Summary, string(a.Bias),
			a.Confidence, a.Price, a.TargetPrice, a.StopPrice, []byte(a.Payload), a.CreatedAt, a.ExpiresAt,
		}, nil
	})

	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"signal_alerts"}, alertColumns, source)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d alerts: %w", len(alerts), err)
	}
	return n, nil
}

// DeleteExpiredAlerts removes alerts whose display window ended before now.
func (r *AlertRepository) DeleteExpiredAlerts(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM signal_alerts WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountAlerts returns the total and still-active alert counts.
func (r *AlertRepository) CountAlerts(ctx context.Context, now time.Time) (total int64, active int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at >= $1)
		FROM signal_alerts
	`
	if err := r.pool.QueryRow(ctx, query, now).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return total, active, nil
}

// Ping checks that the relational store is reachable.
func (r *AlertRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
