package mlog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.SugaredLogger to the Logger interface. Tracing
// spans are created directly by each component via go.opentelemetry.io/otel,
// not routed through the logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a ZapLogger. Production environments (ENV_NAME=production)
// get JSON encoding; everything else gets the human-readable console
// encoder. A non-empty logLevel overrides the config's default level (info
// for production, debug otherwise).
func NewZap(envName, logLevel string) (*ZapLogger, error) {
	var cfg zap.Config

	if envName == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if logLevel != "" {
		var lvl zapcore.Level
		if err := lvl.Set(logLevel); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", logLevel, err)
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("building zap logger: %w", err)
	}

	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)                  { l.sugar.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Fatal(args ...any)                 { l.sugar.Fatal(args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error {
	err := l.sugar.Sync()
	// Syncing os.Stdout commonly fails with ENOTTY/EINVAL under test
	// harnesses and CI; it is not an actionable error.
	if err != nil && os.Getenv("ENV_NAME") != "production" {
		return nil
	}

	return err
}
