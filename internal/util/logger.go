// Package util provides helper functions for logging events and managing virtual serial pairs.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"LinkTerm/internal/model"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// SetupLogger builds the process logger from cfg and installs it as the package logger.
// The terminal belongs to the operator, so the default output is the rotating file only.
func SetupLogger(cfg model.LogConfig) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := parseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.Output == "stderr" || cfg.Output == "both" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", cfg.File.Path, err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize, // MB
			MaxAge:     cfg.File.MaxAge,  // days
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileWriter), level))
	}

	built := zap.NewNop()
	if len(cores) > 0 {
		built = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	mu.Lock()
	logger = built
	mu.Unlock()
	return built, nil
}

func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger returns the package logger (a no-op logger until SetupLogger runs).
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger for one component.
func Named(component string) *zap.Logger {
	return Logger().Named(component)
}

// Info prints general system information messages.
func Info(msg string, args ...any) {
	Logger().WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(msg, args...)
}

// Error prints error messages.
func Error(msg string, args ...any) {
	Logger().WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(msg, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger().Sync()
}
