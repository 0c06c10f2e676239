package zapadapter

import (
	"testing"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ ratelimiter.Logger = (*ZapLogger)(nil)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debugf("debug %d", 1)
	l.Infof("info %s", "two")
	l.Errorf("error %v", 3)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "debug 1", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "info two", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "ratelimiter", entries[2].LoggerName)
}

func TestZapLogger_NilIsNop(t *testing.T) {
	assert.NotPanics(t, func() { New(nil).Infof("dropped") })
}

func TestNewConsole(t *testing.T) {
	l, err := NewConsole("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = NewConsole("loud")
	assert.Error(t, err)
}
