// Package dlog builds the process logger, a zap logger configured from
// the log settings.
package dlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/punchlog/punch/internal/config"
)

const (
	// LevelInfo sets the log level to info.
	LevelInfo = "info"

	// LevelDebug sets the log level to debug.
	LevelDebug = "debug"

	// LevelNone disables logging entirely.
	LevelNone = "none"
)

// New returns a zap logger for the given settings. Level "none" yields a
// no-op logger. When a file is configured, output goes to that file with
// rotation instead of stderr.
func New(settings config.LogSettings) (*zap.Logger, error) {
	level := settings.Level
	if level == "" {
		level = LevelInfo
	}
	if level == LevelNone {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	if settings.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   settings.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, sink, lvl)), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Must returns a logger for the given settings or panics.
func Must(settings config.LogSettings) *zap.Logger {
	l, err := New(settings)
	if err != nil {
		panic(err)
	}
	return l
}
