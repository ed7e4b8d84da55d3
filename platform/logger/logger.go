// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// LeadIDKey is the context key for the lead being processed
	LeadIDKey contextKey = "lead_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("lead_id", leadID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LeadAssigned logs a successful lead assignment.
func (l *Logger) LeadAssigned(leadID, partnerID string, leadType string) {
	l.Info("lead_assigned",
		slog.String("lead_id", leadID),
		slog.String("partner_id", partnerID),
		slog.String("lead_type", leadType),
	)
}

// LeadUnmatched logs a lead that found no eligible partner.
func (l *Logger) LeadUnmatched(leadID, country, niche string) {
	l.Warn("lead_unmatched",
		slog.String("lead_id", leadID),
		slog.String("country", country),
		slog.String("niche", niche),
	)
}

// DeliveryAttempt logs the outcome of a webhook delivery attempt.
func (l *Logger) DeliveryAttempt(leadID, partnerID string, attempt int, status string, code int) {
	l.Info("delivery_attempt",
		slog.String("lead_id", leadID),
		slog.String("partner_id", partnerID),
		slog.Int("attempt", attempt),
		slog.String("status", status),
		slog.Int("response_code", code),
	)
}

// SSRFBlocked logs a rejected delivery destination. Always security relevant.
func (l *Logger) SSRFBlocked(partnerID, rawURL, reason string) {
	l.Warn("ssrf_blocked",
		slog.String("partner_id", partnerID),
		slog.String("url", rawURL),
		slog.String("reason", reason),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
