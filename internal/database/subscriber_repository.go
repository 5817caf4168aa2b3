package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// SubscriberRepository resolves the tracked universe and the users watching it.
type SubscriberRepository struct {
	pool DatabasePool
}

func NewSubscriberRepository(pool DatabasePool) *SubscriberRepository {
	return &SubscriberRepository{pool: pool}
}

// TrackedTickers returns distinct upper-cased watchlist tickers, at most limit.
func (r *SubscriberRepository) TrackedTickers(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT UPPER(ticker) AS ticker
		FROM user_watchlists
		ORDER BY ticker
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan tracked ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracked tickers: %w", err)
	}

	return tickers, nil
}

// SubscribersFor returns every user watching ticker with their alert settings.
// Users without a settings row get the default variant. Enabled types that no
// detector emits are ignored.
func (r *SubscriberRepository) SubscribersFor(ctx context.Context, ticker string) ([]models.Subscriber, error) {
	query := `
		SELECT DISTINCT ON (w.user_id) w.user_id, s.sensitivity, s.enabled_types
		FROM user_watchlists w
		LEFT JOIN user_signal_settings s ON s.user_id = w.user_id
		WHERE UPPER(w.ticker) = $1
		ORDER BY w.user_id
	`

	rows, err := r.pool.Query(ctx, query, strings.ToUpper(ticker))
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers for %s: %w", ticker, err)
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		var (
			userID       string
			sensitivity  *string
			enabledTypes []string
		)
		if err := rows.Scan(&userID, &sensitivity, &enabledTypes); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}

		settings := models.DefaultAlertSettings()
		if sensitivity != nil || enabledTypes != nil {
			level := models.SensitivityMedium
			if sensitivity != nil {
				level = models.ParseSensitivity(*sensitivity)
			}
			settings = models.CustomAlertSettings(level, enabledTypes)
		}

		subscribers = append(subscribers, models.Subscriber{UserID: userID, Settings: settings})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}

	return subscribers, nil
}

// CountWatchlistEntries returns the number of (user, ticker) watch rows.
func (r *SubscriberRepository) CountWatchlistEntries(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_watchlists").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count watchlist entries: %w", err)
	}
	return count, nil
}
