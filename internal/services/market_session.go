package services

import (
	"fmt"
	"time"

	"github.com/irfndi/tradeyodha-signals/internal/config"
)

// MarketSession decides whether a scheduled run should do any work.
type MarketSession interface {
	IsOpen(now time.Time) bool
}

// AlwaysOpen is used when session gating is disabled.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(time.Time) bool { return true }

// RegularSession is a weekday open/close window in one timezone.
type RegularSession struct {
	location *time.Location
	open     time.Duration
	close    time.Duration
}

// NewMarketSession builds the session predicate from config.
func NewMarketSession(cfg config.SessionConfig) (MarketSession, error) {
	if !cfg.Enabled {
		return AlwaysOpen{}, nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load session timezone %q: %w", cfg.Timezone, err)
	}
	open, err := clockOffset(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := clockOffset(cfg.Close)
	if err != nil {
		return nil, err
	}
	if closeAt <= open {
		return nil, fmt.Errorf("session close %s must be after open %s", cfg.Close, cfg.Open)
	}

	return &RegularSession{location: loc, open: open, close: closeAt}, nil
}

func clockOffset(clock string) (time.Duration, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("invalid session clock %q: %w", clock, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IsOpen reports whether now falls inside [open, close) on a weekday.
func (s *RegularSession) IsOpen(now time.Time) bool {
	local := now.In(s.location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	offset := local.Sub(midnight)
	return offset >= s.open && offset < s.close
}
