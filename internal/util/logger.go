package util

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu            sync.RWMutex
	defaultLogger = zap.NewNop()
	once          sync.Once
)

// ParseLevel parses a string log level, falling back to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewLogger builds a logger writing human-readable lines to stderr when
// console is set and, when filePath is set, JSON lines to that file.
func NewLogger(level, filePath string, console bool) *zap.Logger {
	lvl := zap.NewAtomicLevelAt(ParseLevel(level))

	var cores []zapcore.Core
	if console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl))
	}

	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err == nil {
			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				fileCfg := zap.NewProductionEncoderConfig()
				fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
				cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), lvl))
			}
		}
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...))
}

// InitLogger initializes the default logger with config. Only the first
// call has an effect.
func InitLogger(level, filePath string, console bool) {
	once.Do(func() {
		SetLogger(NewLogger(level, filePath, console))
	})
}

// SetLogger replaces the default logger.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// Logger returns the default logger for packages that take a *zap.Logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger().Sync()
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	Logger().Sugar().Debugf(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...interface{}) {
	Logger().Sugar().Infof(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	Logger().Sugar().Warnf(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...interface{}) {
	Logger().Sugar().Errorf(format, args...)
}
