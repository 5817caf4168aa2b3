package database

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// CooldownRepository stores suppression windows in signal_cooldowns.
type CooldownRepository struct {
	pool DatabasePool
}

func NewCooldownRepository(pool DatabasePool) *CooldownRepository {
	return &CooldownRepository{pool: pool}
}

// reserveCooldownQuery accepts when the key is new or its window has lapsed, and
// always pushes expires_at forward. fired_at only moves on acceptance, so
// comparing it to $4 tells the caller which case happened.
const reserveCooldownQuery = `
	INSERT INTO signal_cooldowns (user_id, ticker, signal_type, fired_at, expires_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, ticker, signal_type) DO UPDATE SET
		fired_at = CASE
			WHEN signal_cooldowns.expires_at <= EXCLUDED.fired_at THEN EXCLUDED.fired_at
			ELSE signal_cooldowns.fired_at
		END,
		expires_at = EXCLUDED.expires_at,
		updated_at = NOW()
	RETURNING fired_at = $4
`

// Reserve atomically claims the cooldown for key. It reports true when the
// caller should deliver the alert.
func (r *CooldownRepository) Reserve(ctx context.Context, key models.CooldownKey, window time.Duration, now time.Time) (bool, error) {
	now = now.UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(window)

	var accepted bool
	err := r.pool.QueryRow(ctx, reserveCooldownQuery,
		key.UserID, key.Ticker, string(key.SignalType), now, expiresAt,
	).Scan(&accepted)
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown %s/%s/%s: %w", key.UserID, key.Ticker, key.SignalType, err)
	}

	return accepted, nil
}

// Release deletes the window for key when fired_at still matches the
// reservation made at firedAt. A window claimed since then is left alone.
func (r *CooldownRepository) Release(ctx context.Context, key models.CooldownKey, firedAt time.Time) error {
	firedAt = firedAt.UTC().Truncate(time.Microsecond)

	query := `
		DELETE FROM signal_cooldowns
		WHERE user_id = $1 AND ticker = $2 AND signal_type = $3 AND fired_at = $4
	`
	if _, err := r.pool.Exec(ctx, query, key.UserID, key.Ticker, string(key.SignalType), firedAt); err != nil {
		return fmt.Errorf("failed to release cooldown %s/%s/%s: %w", key.UserID, key.Ticker, key.SignalType, err)
	}
	return nil
}

// DeleteExpired removes windows that lapsed before now.
func (r *CooldownRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM signal_cooldowns WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cooldowns: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountActive returns the number of windows still in force at now.
func (r *CooldownRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM signal_cooldowns WHERE expires_at >= $1", now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cooldowns: %w", err)
	}
	return count, nil
}
