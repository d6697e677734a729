package llm

import (
	"time"

	"go.uber.org/zap"
)

// RequestLogger logs backend calls at the configured audit level
type RequestLogger struct {
	logger     *zap.Logger
	auditLevel string
}

// NewRequestLogger creates a new request logger
func NewRequestLogger(logger *zap.Logger, auditLevel string) *RequestLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLevel == "" {
		auditLevel = "standard"
	}
	return &RequestLogger{
		logger:     logger,
		auditLevel: auditLevel,
	}
}

// LogRequest logs request details according to audit level. Credentials are never logged.
func (l *RequestLogger) LogRequest(backend, requestID string, request map[string]interface{}) {
	if l.auditLevel == "minimal" {
		return
	}

	fields := []zap.Field{
		zap.String("backend", backend),
		zap.String("request_id", requestID),
	}
	for k, v := range request {
		if k == "api_key" || k == "auth_token" || k == "password" {
			fields = append(fields, zap.String(k, "[REDACTED]"))
			continue
		}
		if k == "text" && l.auditLevel != "verbose" {
			if s, ok := v.(string); ok {
				fields = append(fields, zap.Int("text_chars", len(s)))
				continue
			}
		}
		fields = append(fields, zap.Any(k, v))
	}

	l.logger.Debug("backend request", fields...)
}

// LogResponse logs the outcome of a call
func (l *RequestLogger) LogResponse(backend, requestID string, duration time.Duration, err error) {
	if err != nil {
		l.logger.Warn("backend call failed",
			zap.String("backend", backend),
			zap.String("request_id", requestID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	if l.auditLevel == "minimal" {
		return
	}
	l.logger.Debug("backend call completed",
		zap.String("backend", backend),
		zap.String("request_id", requestID),
		zap.Duration("duration", duration))
}
