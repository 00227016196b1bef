package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/giygas/rxwriter/config"
)

type LoggingService struct {
	Logger  *slog.Logger
	rotator *RotatingLogger
}

// Close releases the log file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}

var DefaultLoggingService *LoggingService

// Options configures the global logger
type Options struct {
	Dir            string // empty disables the file sink
	Env            config.Environment
	Level          string
	Verbose        bool // keeps info logs on the console in the test environment
	RetentionWeeks int
	MaxFileSize    int64
}

// InitLogger initializes the global logger instance with default options
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{Dir: logDir, Env: config.EnvDevelopment, Level: "info"})
}

// InitLoggerWithOptions initializes the global logger and registers it as the slog default
func InitLoggerWithOptions(opts Options) *LoggingService {
	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}

	consoleLevel := GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose)
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: consoleLevel}),
	}

	service := &LoggingService{}
	if opts.Dir != "" {
		rotator, err := openRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			slog.New(handlers[0]).Error("Failed to initialize rotating logger, logging to console only", "error", err)
		} else {
			service.rotator = rotator
			handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{
				Level: GetFileLogLevel(opts.Level),
			}))
		}
	}

	if len(handlers) == 1 {
		service.Logger = slog.New(handlers[0])
	} else {
		service.Logger = slog.New(&multiHandler{handlers: handlers})
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
	return service
}

// NewDiscardLogger returns a logger that drops everything, for tests
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLogLevel maps a LOG_LEVEL value to a slog level, defaulting to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// GetConsoleLogLevel keeps test runs quiet and production consoles at warn unless LOG_LEVEL overrides it.
// In the test environment only the verbose flag matters.
func GetConsoleLogLevel(env config.Environment, logLevel string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if logLevel != "" {
		return parseLogLevel(logLevel)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// GetFileLogLevel returns the file sink level; the file never goes below info unless debug is asked for
func GetFileLogLevel(logLevel string) slog.Level {
	level := parseLogLevel(logLevel)
	if level > slog.LevelInfo {
		return slog.LevelInfo
	}
	return level
}

// Default returns the global logger, or the slog default before InitLogger ran
func Default() *slog.Logger {
	return logger()
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.Default()
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
