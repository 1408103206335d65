package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
)

// Notifier is informed of terminal publish outcomes. The email/push
// subsystem lives outside this service and plugs in here.
type Notifier interface {
	PostPublished(ctx context.Context, post *models.ScheduledPost)
	PostFailed(ctx context.Context, post *models.ScheduledPost)
}

// LogNotifier is the default sink when no notification backend is
// wired.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PostPublished(ctx context.Context, post *models.ScheduledPost) {
	n.logger.Info("Post published",
		zap.String("post_id", post.ID),
		zap.String("user_id", post.UserID),
		zap.Int("results", len(post.PublishResults)))
}

func (n *LogNotifier) PostFailed(ctx context.Context, post *models.ScheduledPost) {
	n.logger.Warn("Post failed permanently",
		zap.String("post_id", post.ID),
		zap.String("user_id", post.UserID),
		zap.Int("retry_count", post.RetryCount))
}
