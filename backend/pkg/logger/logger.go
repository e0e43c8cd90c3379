package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a global logger instance
var Logger *zap.Logger

// DefaultOutput keeps stdout free for the stdio transport's protocol frames
const DefaultOutput = "stderr"

// Option adjusts the logger built by Init
type Option func(*zap.Config)

// WithOutput writes log entries to path: "stderr", "stdout" or a file
func WithOutput(path string) Option {
	return func(c *zap.Config) {
		if path == "" {
			return
		}
		c.OutputPaths = []string{path}
	}
}

// WithLevel overrides the level chosen from the environment. An empty level
// keeps that default.
func WithLevel(level string) Option {
	return func(c *zap.Config) {
		if level == "" {
			return
		}
		if l, err := zapcore.ParseLevel(level); err == nil {
			c.Level = zap.NewAtomicLevelAt(l)
		}
	}
}

// Init initializes the global logger. Production logs JSON at info, anything
// else logs coloured console output at debug.
func Init(env string, opts ...Option) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{DefaultOutput}
	config.ErrorOutputPaths = []string{DefaultOutput}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	for _, opt := range opts {
		opt(&config)
	}

	built, err := config.Build()
	if err != nil {
		return err
	}
	Logger = built.Named("memory")

	return nil
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Get returns the global logger instance
func Get() *zap.Logger {
	if Logger == nil {
		// Fallback to a basic logger if not initialized
		logger, _ := zap.NewDevelopment()
		return logger
	}
	return Logger
}
