// Package observability configures the process-wide zap logger.
//
// The daemon logs to two sinks: a human-readable console core on stderr
// and a JSON file core rotated by lumberjack. Components take the logger
// by reference; Logger is only mutated by Init before anything else runs.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process logger. It defaults to a console-only logger at
// info level so packages can log before Init is called (e.g. in tests).
var Logger = newConsoleLogger(zapcore.InfoLevel)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string

	// FilePath is the rotating JSON log file. Empty disables the file sink.
	FilePath string

	// MaxSizeMB and MaxBackups bound the rotated file set.
	MaxSizeMB  int
	MaxBackups int
}

// Init replaces Logger according to cfg. Call once at startup.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)

	cores := []zapcore.Core{consoleCore(level)}
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		})
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
	}

	Logger = zap.New(zapcore.NewTee(cores...))
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	_ = Logger.Sync()
}

func consoleCore(level zapcore.Level) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	return zap.New(consoleCore(level))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
