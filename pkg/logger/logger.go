package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory selects one seam of the bridge for targeted debug logging.
// The categories follow where problems actually surface when operating a
// bridge: the command state machine, mailbox traffic, the worker event
// path, and fleet reconnection.
type DebugCategory string

const (
	// DebugState traces the remote command state machine: dispatch,
	// suspend, resume, terminal.
	DebugState DebugCategory = "state"
	// DebugQueue traces mailbox posts, drains, and coalescing/eviction,
	// including frame drops.
	DebugQueue DebugCategory = "queue"
	// DebugEvents traces worker callbacks and their delivery to the
	// application.
	DebugEvents DebugCategory = "events"
	// DebugReconnect traces the supervisor's reconnect scheduling.
	DebugReconnect DebugCategory = "reconnect"
	// DebugAll enables every category.
	DebugAll DebugCategory = "all"
)

// ParseCategory converts a string to a DebugCategory.
func ParseCategory(s string) (DebugCategory, error) {
	switch DebugCategory(s) {
	case DebugState, DebugQueue, DebugEvents, DebugReconnect, DebugAll:
		return DebugCategory(s), nil
	default:
		return "", fmt.Errorf("invalid debug category: %s (must be state, queue, events, reconnect, or all)", s)
	}
}

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Global logger instance
var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger wraps slog.Logger with category-based debugging
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		OutputFile:        "",
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		Level: cfg.Level.ToSlogLevel(),
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOpts)
	case FormatText:
		handler = slog.NewTextHandler(writer, handlerOpts)
	default:
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: cfg,
		file:   file,
	}

	return logger, nil
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		c.EnabledCategories[DebugState] = true
		c.EnabledCategories[DebugQueue] = true
		c.EnabledCategories[DebugEvents] = true
		c.EnabledCategories[DebugReconnect] = true
	} else {
		c.EnabledCategories[category] = true
	}
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Category-specific logging methods

// DebugState logs command state-machine activity if state debugging is enabled
func (l *Logger) DebugState(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugState) {
		args = append([]any{"category", "state"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugQueue logs mailbox post/drain/coalescing details if queue debugging is enabled
func (l *Logger) DebugQueue(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugQueue) {
		args = append([]any{"category", "queue"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugEvents logs worker callback and event delivery details if events debugging is enabled
func (l *Logger) DebugEvents(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugEvents) {
		args = append([]any{"category", "events"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugReconnect logs reconnect scheduling details if reconnect debugging is enabled
func (l *Logger) DebugReconnect(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugReconnect) {
		args = append([]any{"category", "reconnect"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugQueueDepth logs a mailbox's depth after a post, keyed by kind
func (l *Logger) DebugQueueDepth(kind string, depth int, evicted bool) {
	if l.config.IsCategoryEnabled(DebugQueue) {
		l.Debug("queue depth",
			"category", "queue",
			"kind", kind,
			"depth", depth,
			"evicted", evicted)
	}
}

// DebugStateTransition logs a remote endpoint state transition
func (l *Logger) DebugStateTransition(from, to string, kind string) {
	if l.config.IsCategoryEnabled(DebugState) {
		l.Debug("state transition",
			"category", "state",
			"from", from,
			"to", to,
			"kind", kind)
	}
}

// WithContext returns a copy of the logger sharing its handler, config and
// file; ctx is not read and no context values are added.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: l.Logger,
		config: l.config,
		file:   l.file,
	}
}

// With returns a new Logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		cfg := NewConfig()
		logger, err := New(cfg)
		if err != nil {
			logger = &Logger{
				Logger: slog.Default(),
				config: cfg,
			}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// Package-level convenience functions

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at Info level using the default logger
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at Error level using the default logger
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
