package bletemp

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnv denotes the environment variable the log level is read from
const LogLevelEnv = "BLETEMP_LOG"

// Logger denotes a generic logger interface
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewLogger instantiates a zap based console logger with the given minimum level
func NewLogger(level zapcore.Level) Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return &NullLogger{}
	}

	return logger.Sugar()
}

// LevelFromEnv returns the log level configured in the process environment, if any
func LevelFromEnv() (zapcore.Level, bool) {
	value, ok := os.LookupEnv(LogLevelEnv)
	if !ok || strings.TrimSpace(value) == "" {
		return zapcore.InfoLevel, false
	}

	level, err := zapcore.ParseLevel(strings.TrimSpace(value))
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return level, true
}

////////////////////////////////////////////////////////////////////////////////

// NullLogger discards all log output
type NullLogger struct{}

// Debugf does nothing
func (l *NullLogger) Debugf(format string, args ...interface{}) {}

// Infof does nothing
func (l *NullLogger) Infof(format string, args ...interface{}) {}

// Warnf does nothing
func (l *NullLogger) Warnf(format string, args ...interface{}) {}

// Errorf does nothing
func (l *NullLogger) Errorf(format string, args ...interface{}) {}

// Fatalf does nothing
func (l *NullLogger) Fatalf(format string, args ...interface{}) {}
