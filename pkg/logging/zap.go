package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig selects the zap backend behind Logger
type ZapConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "console", "json"
	Output string `yaml:"output"` // "stdout", "stderr"
	Caller bool   `yaml:"caller"`
}

// ZapLogger implements Logger on top of a sugared zap logger
type ZapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

func NewZapLogger(config ZapConfig) (*ZapLogger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout":
		writeSyncer = zapcore.Lock(os.Stdout)
	default:
		writeSyncer = zapcore.Lock(os.Stderr)
	}

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller())
	}

	return NewZapLoggerFrom(zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...)), nil
}

// Frames between a logging call site and the sugared logger: ZapLogger's own
// method, plus logger.Infof, logger.logf and the forwarding closure for
// prefix loggers.
const (
	zapLoggerCallerSkip    = 1
	prefixLoggerCallerSkip = 3
)

// NewZapLoggerFrom wraps an existing zap logger, mostly for tests (zaptest/observer)
func NewZapLoggerFrom(zapLogger *zap.Logger) *ZapLogger {
	return &ZapLogger{
		logger: zapLogger,
		sugar:  zapLogger.WithOptions(zap.AddCallerSkip(zapLoggerCallerSkip)).Sugar(),
	}
}

// WithPrefix returns a prefix Logger writing straight to the zap backend, so
// callers are reported correctly when caller annotation is on
func (z *ZapLogger) WithPrefix(prefix string) Logger {
	sugar := z.logger.WithOptions(zap.AddCallerSkip(prefixLoggerCallerSkip)).Sugar()
	return NewLogger(prefix, LogFuncs{
		Debugf: func(format string, args ...interface{}) { sugar.Debugf(format, args...) },
		Infof:  func(format string, args ...interface{}) { sugar.Infof(format, args...) },
		Warnf:  func(format string, args ...interface{}) { sugar.Warnf(format, args...) },
		Errorf: func(format string, args ...interface{}) { sugar.Errorf(format, args...) },
	})
}

// ParseLevel maps a level name to a zap level; empty means info.
// zap v1.20.0 has no zapcore.ParseLevel.
func ParseLevel(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level: %q", levelStr)
	}
}

func (z *ZapLogger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case LogLevelDebug:
		z.sugar.Debugf(format, args...)
	case LogLevelWarn:
		z.sugar.Warnf(format, args...)
	case LogLevelError:
		z.sugar.Errorf(format, args...)
	default:
		z.sugar.Infof(format, args...)
	}
}

func (z *ZapLogger) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapLogger) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapLogger) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
