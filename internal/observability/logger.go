// Package observability builds the simulator's zap logger and the slog view
// of it handed to the library packages.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/notnil/vcucan/internal/config"
)

// SetupLogger builds a zap.Logger from c and installs it as the global zap
// logger. Entries go to stderr unless c.File is set, so stdout stays free for
// command output such as trace dumps. The caller should defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	sink, err := openSink(c)
	if err != nil {
		return nil, fmt.Errorf("log sink: %w", err)
	}
	logger := zap.New(
		zapcore.NewCore(newEncoder(c.Format), sink, level),
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Slog returns a *slog.Logger writing through logger's core, for packages
// that log with log/slog.
func Slog(logger *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(logger.Core()))
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// openSink returns stderr, an append-only file, or a lumberjack-rotated file
// when c.Rotate.MaxSizeMB is set.
func openSink(c config.LogConfig) (zapcore.WriteSyncer, error) {
	if c.File == "" {
		return zapcore.Lock(os.Stderr), nil
	}
	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return nil, err
	}
	if c.Rotate.MaxSizeMB > 0 {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.Rotate.MaxSizeMB,
			MaxBackups: c.Rotate.MaxBackups,
			MaxAge:     c.Rotate.MaxAgeDays,
			Compress:   c.Rotate.Compress,
		}), nil
	}
	f, err := os.OpenFile(c.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.Lock(f), nil
}
