package logging

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	lines []string
}

func (r *recorder) record(level string) LogFunc {
	return func(format string, args ...interface{}) {
		r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
	}
}

func TestLogger_Prefix(t *testing.T) {
	rec := &recorder{}
	logger := NewLogger("service: pfd , ", LogFuncs{
		Debugf: rec.record("debug"),
		Infof:  rec.record("info"),
		Warnf:  rec.record("warn"),
		Errorf: rec.record("error"),
	})

	logger.Infof("restarted, pid: %d", 42)
	logger.Errorf("exited, code: %d", 1)

	assert.Equal(t, []string{
		"info service: pfd , restarted, pid: 42",
		"error service: pfd , exited, code: 1",
	}, rec.lines)
}

func TestLogger_WithPrefixNests(t *testing.T) {
	rec := &recorder{}
	root := NewLogger("run: 01H , ", LogFuncs{Infof: rec.record("info")})

	child := WithPrefix(root, "service: registry , ")
	child.Infof("started")
	child.Debugf("dropped, no debug func")

	assert.Equal(t, []string{"info run: 01H , service: registry , started"}, rec.lines)
}

func TestLogger_LogLevelfOverrides(t *testing.T) {
	var levels []int
	logger := NewLogger("", LogFuncs{
		LogLevelf: func(level int, format string, args ...interface{}) {
			levels = append(levels, level)
		},
	})

	logger.Debugf("a")
	logger.Warnf("b")
	logger.LogLevelf(LogLevelError, "c")

	assert.Equal(t, []int{LogLevelDebug, LogLevelWarn, LogLevelError}, levels)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Infof("nothing %s", "here")
		logger.Errorf("nothing")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zapcore.Level
		wantErr  bool
	}{
		{"", zap.InfoLevel, false},
		{"debug", zap.DebugLevel, false},
		{"warn", zap.WarnLevel, false},
		{"error", zap.ErrorLevel, false},
		{"verbose", zap.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.Debugf("tick %d", 1)
	logger.Infof("starting %s", "registry")
	logger.LogLevelf(LogLevelWarn, "slow tick")
	logger.Errorf("launch failed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "starting registry", entries[1].Message)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, zap.ErrorLevel, entries[3].Level)
}

func TestNewZapLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger(ZapConfig{Level: "loud"})
	assert.Error(t, err)

	logger, err := NewZapLogger(ZapConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestZapLogger_ReportsCallSite(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	zapLogger := NewZapLoggerFrom(zap.New(core, zap.AddCaller()))

	zapLogger.Infof("direct")
	moduleLogger := WithPrefix(zapLogger, "module: hsu-deploy , ")
	moduleLogger.Infof("one prefix")
	runLogger := WithPrefix(moduleLogger, "run: 01H , ")
	runLogger.Warnf("two prefixes")
	runLogger.LogLevelf(LogLevelError, "by level")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "module: hsu-deploy , run: 01H , two prefixes", entries[2].Message)
	for _, entry := range entries {
		require.True(t, entry.Caller.Defined, entry.Message)
		assert.Equal(t, "logging_test.go", filepath.Base(entry.Caller.File), entry.Message)
	}
}
