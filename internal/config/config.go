package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/irfndi/tradeyodha-signals/internal/utils"
)

const (
	CooldownBackendPostgres = "postgres"
	CooldownBackendRedis    = "redis"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFile     LogFileConfig    `mapstructure:"log_file"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Signals     SignalsConfig    `mapstructure:"signals"`
	Timeline    TimelineConfig   `mapstructure:"timeline"`
	Session     SessionConfig    `mapstructure:"session"`
	Cron        CronConfig       `mapstructure:"cron"`
	Cleanup     CleanupConfig    `mapstructure:"cleanup"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketDataConfig points at the aggregated market statistics service.
type MarketDataConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	APIKey              string        `mapstructure:"api_key" json:"-" yaml:"-"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
	Benchmark           string        `mapstructure:"benchmark"`
	NewsEnabled         bool          `mapstructure:"news_enabled"`
	BreakerMaxFailures  int           `mapstructure:"breaker_max_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

type SignalsConfig struct {
	BatchSize        int             `mapstructure:"batch_size"`
	MaxTickers       int             `mapstructure:"max_tickers"`
	RunTimeout       time.Duration   `mapstructure:"run_timeout"`
	CoreTickers      []string        `mapstructure:"core_tickers"`
	CooldownBackend  string          `mapstructure:"cooldown_backend"`
	CooldownStandard time.Duration   `mapstructure:"cooldown_standard"`
	CooldownExtended time.Duration   `mapstructure:"cooldown_extended"`
	AlertTTL         time.Duration   `mapstructure:"alert_ttl"`
	StateTTL         time.Duration   `mapstructure:"state_ttl"`
	Detectors        DetectorsConfig `mapstructure:"detectors"`
}

// DetectorsConfig holds the tunable trigger thresholds of the detector bank.
type DetectorsConfig struct {
	ConfluenceMin     int     `mapstructure:"confluence_min"`
	SweepCountMin     int     `mapstructure:"sweep_count_min"`
	SweepValueMin     float64 `mapstructure:"sweep_value_min"`
	CVDChangeMin      float64 `mapstructure:"cvd_change_min"`
	LargePrintMin     float64 `mapstructure:"large_print_min"`
	NewsSentimentMin  float64 `mapstructure:"news_sentiment_min"`
	TargetFallbackPct float64 `mapstructure:"target_fallback_pct"`
	StopFallbackPct   float64 `mapstructure:"stop_fallback_pct"`
}

type TimelineConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxPoints   int           `mapstructure:"max_points"`
	TTL         time.Duration `mapstructure:"ttl"`
	ThesisMax   int           `mapstructure:"thesis_max"`
	ThesisTTL   time.Duration `mapstructure:"thesis_ttl"`
	EMAPeriod   int           `mapstructure:"ema_period"`
}

// SessionConfig describes the regular trading session used to gate runs.
type SessionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"`
	Open     string `mapstructure:"open"`
	Close    string `mapstructure:"close"`
}

type CronConfig struct {
	Secret string `mapstructure:"secret" json:"-" yaml:"-"`
}

type CleanupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	Stdout         bool    `mapstructure:"stdout"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	LogsEnabled    bool    `mapstructure:"logs_enabled"`
}

// IsProduction reports whether the normalized environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ValidateRun checks the settings a job needs before it touches any ticker.
// It returns a *utils.ConfigError listing every missing key.
func (c *Config) ValidateRun() error {
	var missing []string
	if strings.TrimSpace(c.MarketData.BaseURL) == "" {
		missing = append(missing, "market_data.base_url")
	}
	if strings.TrimSpace(c.MarketData.APIKey) == "" {
		missing = append(missing, "market_data.api_key")
	}
	if len(missing) > 0 {
		return utils.NewConfigError("market data service is not configured", missing...)
	}
	return nil
}

// CooldownWindow returns the suppression window for a signal tier.
func (s SignalsConfig) CooldownWindow(tier int) time.Duration {
	if tier >= 3 {
		return s.CooldownExtended
	}
	return s.CooldownStandard
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		"cron.secret":             "CRON_SECRET",
		"market_data.api_key":     "MARKET_DATA_API_KEY",
		"market_data.base_url":    "MARKET_DATA_URL",
		"database.database_url":   "DATABASE_URL",
		"telemetry.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Signals.CooldownBackend = strings.ToLower(config.Signals.CooldownBackend)
	for i, t := range config.Signals.CoreTickers {
		config.Signals.CoreTickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Signals.CooldownBackend {
	case CooldownBackendPostgres, CooldownBackendRedis:
	default:
		return utils.NewConfigError(fmt.Sprintf("unknown cooldown backend %q", c.Signals.CooldownBackend))
	}

	if c.Signals.BatchSize <= 0 {
		return utils.NewConfigError(fmt.Sprintf("signals.batch_size must be positive, got %d", c.Signals.BatchSize))
	}
	if c.Signals.RunTimeout <= 0 {
		return utils.NewConfigError("signals.run_timeout must be positive")
	}
	if c.Timeline.MaxPoints <= 0 || c.Timeline.ThesisMax <= 0 {
		return utils.NewConfigError("timeline caps must be positive")
	}

	if c.Session.Enabled {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			return utils.NewConfigError(fmt.Sprintf("invalid session timezone %q: %v", c.Session.Timezone, err))
		}
		for _, clock := range []string{c.Session.Open, c.Session.Close} {
			if _, err := time.Parse("15:04", clock); err != nil {
				return utils.NewConfigError(fmt.Sprintf("invalid session clock %q", clock))
			}
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("log_file.path", "")
	viper.SetDefault("log_file.max_size_mb", 100)
	viper.SetDefault("log_file.max_backups", 5)
	viper.SetDefault("log_file.max_age_days", 14)
	viper.SetDefault("log_file.compress", true)

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "tradeyodha")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("market_data.base_url", "")
	viper.SetDefault("market_data.api_key", "")
	viper.SetDefault("market_data.timeout", "8s")
	viper.SetDefault("market_data.requests_per_second", 20.0)
	viper.SetDefault("market_data.burst", 10)
	viper.SetDefault("market_data.benchmark", "SPY")
	viper.SetDefault("market_data.news_enabled", false)
	viper.SetDefault("market_data.breaker_max_failures", 5)
	viper.SetDefault("market_data.breaker_reset_timeout", "30s")

	viper.SetDefault("signals.batch_size", 5)
	viper.SetDefault("signals.max_tickers", 200)
	viper.SetDefault("signals.run_timeout", "55s")
	viper.SetDefault("signals.core_tickers", []string{"SPY", "QQQ", "IWM"})
	viper.SetDefault("signals.cooldown_backend", CooldownBackendPostgres)
	viper.SetDefault("signals.cooldown_standard", "15m")
	viper.SetDefault("signals.cooldown_extended", "30m")
	viper.SetDefault("signals.alert_ttl", "30m")
	viper.SetDefault("signals.state_ttl", "72h")

	viper.SetDefault("signals.detectors.confluence_min", 4)
	viper.SetDefault("signals.detectors.sweep_count_min", 5)
	viper.SetDefault("signals.detectors.sweep_value_min", 1_000_000.0)
	viper.SetDefault("signals.detectors.cvd_change_min", 0.3)
	viper.SetDefault("signals.detectors.large_print_min", 10_000_000.0)
	viper.SetDefault("signals.detectors.news_sentiment_min", 0.6)
	viper.SetDefault("signals.detectors.target_fallback_pct", 1.5)
	viper.SetDefault("signals.detectors.stop_fallback_pct", 1.0)

	viper.SetDefault("timeline.min_interval", "30s")
	viper.SetDefault("timeline.max_points", 500)
	viper.SetDefault("timeline.ttl", "24h")
	viper.SetDefault("timeline.thesis_max", 3000)
	viper.SetDefault("timeline.thesis_ttl", "168h")
	viper.SetDefault("timeline.ema_period", 10)

	viper.SetDefault("session.enabled", true)
	viper.SetDefault("session.timezone", "America/New_York")
	viper.SetDefault("session.open", "09:30")
	viper.SetDefault("session.close", "16:00")

	viper.SetDefault("cron.secret", "")

	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.interval", "15m")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.stdout", false)
	viper.SetDefault("telemetry.service_name", "tradeyodha-signals")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.sample_rate", 1.0)
	viper.SetDefault("telemetry.logs_enabled", false)
}
