package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
}

func NewServiceLogger(logger *slog.Logger, component string) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", "grading-service", "component", component),
	}
}

// LogOperation records one service call with its outcome and duration.
// Validation and business-rule failures log at warn, missing resources at
// info; only unexpected errors log at error level.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, testID, studentID string, duration time.Duration, err error) {
	status := "success"
	level := slog.LevelInfo

	if err != nil {
		status = "error"
		level = slog.LevelError
		switch {
		case IsValidation(err) || IsBusinessRule(err):
			status = "validation_error"
			level = slog.LevelWarn
		case IsNotFound(err):
			status = "not_found"
			level = slog.LevelInfo
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("test_id", testID),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}
	if studentID != "" {
		attrs = append(attrs, slog.String("student_id", studentID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		if businessErr, ok := err.(*BusinessRuleError); ok {
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		}
	}
	if requestID, ok := ctx.Value("request_id").(string); ok {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

// TimedOperation wraps a service call with start/finish logging
func (l *ServiceLogger) TimedOperation(ctx context.Context, operation, testID, studentID string, fn func() error) error {
	start := time.Now()
	err := fn()
	l.LogOperation(ctx, operation, testID, studentID, time.Since(start), err)
	return err
}
