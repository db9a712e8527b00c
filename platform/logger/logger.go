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
	// TenantIDKey is the context key for the tenant (organization) ID
	TenantIDKey contextKey = "tenant_id"
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
// Supports request_id and tenant_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("tenant_id", tenantID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// MergeEvent logs the outcome of a contact merge.
func (l *Logger) MergeEvent(primaryID, duplicateID string, previousScore, newScore, messagesMoved, eventsMoved int) {
	l.Info("merge_event",
		slog.String("primary_id", primaryID),
		slog.String("duplicate_id", duplicateID),
		slog.Int("previous_score", previousScore),
		slog.Int("new_score", newScore),
		slog.Int("messages_moved", messagesMoved),
		slog.Int("events_moved", eventsMoved),
	)
}

// RoutingDecision logs the final outcome of a routing call.
func (l *Logger) RoutingDecision(leadRef, ownerID, pool, reason string) {
	l.Info("routing_decision",
		slog.String("lead", leadRef),
		slog.String("owner_id", ownerID),
		slog.String("pool", pool),
		slog.String("reason", reason),
	)
}

// StoreError logs record store errors
func (l *Logger) StoreError(operation string, err error) {
	l.Error("store_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// DedupeFallback logs a degraded deduplication path.
func (l *Logger) DedupeFallback(reason string, err error) {
	if err != nil {
		l.Warn("dedupe_fallback",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Warn("dedupe_fallback", slog.String("reason", reason))
}
