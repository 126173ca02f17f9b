package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoggingAnalyticsInvalidator stands in for the external analytics cache.
// It records the invalidation so operators can see the hook firing.
type LoggingAnalyticsInvalidator struct {
	logger *zap.Logger
}

// NewLoggingAnalyticsInvalidator creates the default analytics hook
func NewLoggingAnalyticsInvalidator(logger *zap.Logger) *LoggingAnalyticsInvalidator {
	return &LoggingAnalyticsInvalidator{logger: logger}
}

// InvalidateProject logs the invalidation request
func (i *LoggingAnalyticsInvalidator) InvalidateProject(_ context.Context, projectID uuid.UUID) {
	i.logger.Debug("analytics cache invalidated", zap.String("project_id", projectID.String()))
}
