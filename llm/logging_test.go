package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestRequestLoggerLevels(t *testing.T) {
	request := map[string]interface{}{
		"text":    "No kids",
		"api_key": "sk-secret",
	}

	t.Run("standard hides text", func(t *testing.T) {
		logger, logs := observedLogger()
		NewRequestLogger(logger, "").LogRequest(BackendAzure, "req-1", request)

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, int64(7), fields["text_chars"])
		assert.NotContains(t, fields, "text")
		assert.Equal(t, "[REDACTED]", fields["api_key"])
	})

	t.Run("verbose keeps text", func(t *testing.T) {
		logger, logs := observedLogger()
		NewRequestLogger(logger, "verbose").LogRequest(BackendAzure, "req-1", request)

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "No kids", fields["text"])
		assert.Equal(t, "[REDACTED]", fields["api_key"])
	})

	t.Run("minimal logs only failures", func(t *testing.T) {
		logger, logs := observedLogger()
		l := NewRequestLogger(logger, "minimal")
		l.LogRequest(BackendAzure, "req-1", request)
		l.LogResponse(BackendAzure, "req-1", time.Millisecond, nil)
		assert.Equal(t, 0, logs.Len())

		l.LogResponse(BackendAzure, "req-1", time.Millisecond, errors.New("boom"))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})
}
