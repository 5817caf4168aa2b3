package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the event-style logger used at process and HTTP boundaries.
// Services log through an injected *logrus.Logger instead.
type Logger interface {
	WithComponent(componentName string) *slog.Logger
	WithTicker(ticker string) *slog.Logger
	WithRunID(runID string) *slog.Logger
	WithError(err error) *slog.Logger
	LogStartup(serviceName string, version string, port int)
	LogShutdown(serviceName string, reason string)
	LogAPIRequest(method string, path string, statusCode int, duration int64)
	LogRunSummary(job string, status string, details map[string]interface{})
	Logger() *slog.Logger
}

// StandardLogger provides a standardized logging interface
type StandardLogger struct {
	logger Logger
}

// NewStandardLogger returns a JSON logger on stdout.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: getSlogLevel(logLevel),
	})
	return &StandardLogger{
		logger: &eventLogger{logger: slog.New(handler).With("environment", environment)},
	}
}

// NewStandardOTLPLogger exports records through OTLP, falling back to stdout JSON
// when the exporter cannot be built.
func NewStandardOTLPLogger(config OTLPConfig) *StandardLogger {
	otlpLogger, err := NewOTLPLogger(config)
	if err != nil {
		return NewStandardLogger(config.LogLevel, config.Environment)
	}
	return &StandardLogger{logger: &eventLogger{logger: otlpLogger.Logger(), closer: otlpLogger}}
}

// SetLogger sets the underlying logger implementation
func (l *StandardLogger) SetLogger(logger Logger) {
	l.logger = logger
}

func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.WithComponent(componentName)
}

func (l *StandardLogger) WithTicker(ticker string) *slog.Logger {
	return l.logger.WithTicker(ticker)
}

func (l *StandardLogger) WithRunID(runID string) *slog.Logger {
	return l.logger.WithRunID(runID)
}

func (l *StandardLogger) WithError(err error) *slog.Logger {
	return l.logger.WithError(err)
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.LogStartup(serviceName, version, port)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.LogShutdown(serviceName, reason)
}

// LogAPIRequest logs API requests in a standardized format
func (l *StandardLogger) LogAPIRequest(method string, path string, statusCode int, duration int64) {
	l.logger.LogAPIRequest(method, path, statusCode, duration)
}

// LogRunSummary logs the outcome of one cron job invocation.
func (l *StandardLogger) LogRunSummary(job string, status string, details map[string]interface{}) {
	l.logger.LogRunSummary(job, status, details)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger.Logger()
}

// Shutdown flushes the OTLP exporter, if any.
func (l *StandardLogger) Shutdown(ctx context.Context) error {
	if e, ok := l.logger.(*eventLogger); ok && e.closer != nil {
		return e.closer.Shutdown(ctx)
	}
	return nil
}

// getSlogLevel converts string level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// FileOptions configures rotating file output for the service logger.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogrusLogger builds the JSON logrus logger injected into services. When
// file.Path is set, output goes to stdout and a rotating file.
func NewLogrusLogger(level string, file FileOptions) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(level))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if file.Path == "" {
		logger.SetOutput(os.Stdout)
		return logger
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}))
	return logger
}

// eventLogger implements Logger over any slog handler.
type eventLogger struct {
	logger *slog.Logger
	closer *OTLPLogger
}

func (e *eventLogger) WithComponent(componentName string) *slog.Logger {
	return e.logger.With("component", componentName)
}

func (e *eventLogger) WithTicker(ticker string) *slog.Logger {
	return e.logger.With("ticker", ticker)
}

func (e *eventLogger) WithRunID(runID string) *slog.Logger {
	return e.logger.With("run_id", runID)
}

func (e *eventLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return e.logger
	}
	return e.logger.With("error", err.Error())
}

func (e *eventLogger) LogStartup(serviceName string, version string, port int) {
	e.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"port", port,
		"event", "startup",
	)
}

func (e *eventLogger) LogShutdown(serviceName string, reason string) {
	e.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

func (e *eventLogger) LogAPIRequest(method string, path string, statusCode int, duration int64) {
	e.logger.Info("API request",
		"method", method,
		"path", path,
		"status", statusCode,
		"duration_ms", duration,
		"event", "api",
	)
}

func (e *eventLogger) LogRunSummary(job string, status string, details map[string]interface{}) {
	fields := []interface{}{
		"event", "cron_run",
		"job", job,
		"status", status,
	}
	for k, v := range details {
		fields = append(fields, k, v)
	}

	level := slog.LevelInfo
	if status == "error" {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "Cron run finished", fields...)
}

func (e *eventLogger) Logger() *slog.Logger {
	return e.logger
}
