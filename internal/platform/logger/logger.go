package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the configuration for the logger.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	EnableColor bool   // only applies to console
}

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT and the color switches. Production
// defaults to JSON.
func DefaultConfig(env string) Config {
	format := "console"
	if env == "production" {
		format = "json"
	}
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", format),
		EnableColor: shouldEnableColor(),
	}
}

// New builds a logger writing to stdout.
func New(cfg Config) *zap.Logger {
	return NewWithSink(cfg, zapcore.Lock(os.Stdout))
}

// NewWithSink builds a logger writing to sink.
func NewWithSink(cfg Config, sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		if cfg.EnableColor {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = NewColoredConsoleEncoder(encoderConfig)
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}
	}

	level := parseLevel(cfg.Level)
	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))

	opts := []zap.Option{zap.AddCaller()}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(core, opts...)
}

// Initialize sets the global logger once.
func Initialize(cfg Config) *zap.Logger {
	once.Do(func() {
		globalLogger = New(cfg)
		zap.ReplaceGlobals(globalLogger)
	})
	return globalLogger
}

// Get returns the global logger, initializing it from the environment if needed.
func Get() *zap.Logger {
	return Initialize(DefaultConfig(os.Getenv("SERVER_ENV")))
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.ToLower(value)
	}
	return fallback
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldEnableColor checks NO_COLOR (https://no-color.org/) then LOG_COLOR.
func shouldEnableColor() bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	if val := os.Getenv("LOG_COLOR"); val != "" {
		return val == "true" || val == "1"
	}
	return true
}
