package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sensitivity gates delivery by signal tier.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "LOW"
	SensitivityMedium Sensitivity = "MEDIUM"
	SensitivityHigh   Sensitivity = "HIGH"
)

// ParseSensitivity normalizes a stored value, falling back to MEDIUM.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(strings.ToUpper(strings.TrimSpace(s))) {
	case SensitivityLow:
		return SensitivityLow
	case SensitivityHigh:
		return SensitivityHigh
	default:
		return SensitivityMedium
	}
}

// MaxTier is the lowest-priority tier this sensitivity still delivers.
func (s Sensitivity) MaxTier() Tier {
	switch s {
	case SensitivityLow:
		return Tier1
	case SensitivityHigh:
		return Tier3
	default:
		return Tier2
	}
}

// SettingsMode tags which variant of AlertSettings is in use.
type SettingsMode int

const (
	// SettingsDefault applies to users who never configured alerts.
	SettingsDefault SettingsMode = iota
	// SettingsCustom carries the user's stored sensitivity and allow-list.
	SettingsCustom
)

// AlertSettings is a user's delivery configuration.
type AlertSettings struct {
	Mode         SettingsMode
	Sensitivity  Sensitivity
	EnabledTypes map[SignalType]bool
}

// DefaultAlertSettings enables every type at MEDIUM sensitivity.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{Mode: SettingsDefault, Sensitivity: SensitivityMedium}
}

// CustomAlertSettings builds the configured variant. A nil types slice keeps every
// type enabled; an empty non-nil slice disables all of them. Unknown type names
// are dropped.
func CustomAlertSettings(sensitivity Sensitivity, types []string) AlertSettings {
	settings := AlertSettings{Mode: SettingsCustom, Sensitivity: sensitivity}
	if types != nil {
		settings.EnabledTypes = make(map[SignalType]bool, len(types))
		for _, t := range types {
			st := SignalType(strings.ToLower(strings.TrimSpace(t)))
			if st.Valid() {
				settings.EnabledTypes[st] = true
			}
		}
	}
	return settings
}

// Allows reports whether a signal of this type and tier should reach the user.
func (s AlertSettings) Allows(t SignalType, tier Tier) bool {
	if tier > s.Sensitivity.MaxTier() {
		return false
	}
	if s.Mode == SettingsDefault || s.EnabledTypes == nil {
		return true
	}
	return s.EnabledTypes[t]
}

// Subscriber is a user watching a ticker.
type Subscriber struct {
	UserID   string
	Settings AlertSettings
}

// CooldownKey identifies one suppression window.
type CooldownKey struct {
	UserID     string     `json:"user_id" db:"user_id"`
	Ticker     string     `json:"ticker" db:"ticker"`
	SignalType SignalType `json:"signal_type" db:"signal_type"`
}

// CooldownRecord is the stored state of a suppression window.
type CooldownRecord struct {
	CooldownKey
	FiredAt   time.Time `json:"fired_at" db:"fired_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// AlertRecord is one persisted alert for one user.
type AlertRecord struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Ticker      string          `json:"ticker" db:"ticker"`
	SignalType  SignalType      `json:"signal_type" db:"signal_type"`
	Tier        Tier            `json:"tier" db:"tier"`
	Title       string          `json:"title" db:"title"`
	Summary     string          `json:"summary" db:"summary"`
	Bias        BiasLabel       `json:"bias" db:"bias"`
	Confidence  float64         `json:"confidence" db:"confidence"`
	Price       float64         `json:"price" db:"price"`
	TargetPrice *float64        `json:"target_price,omitempty" db:"target_price"`
	StopPrice   *float64        `json:"stop_price,omitempty" db:"stop_price"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at" db:"expires_at"`
}
