package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
)

// SchedulingService owns the user-facing post lifecycle: creation into
// draft/scheduled, updates, cancellation, explicit retry and deletion.
// The dispatcher is the only component that moves posts through
// processing.
type SchedulingService struct {
	posts  PostStore
	retry  RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewSchedulingService(posts PostStore, retry RetryPolicy, logger *zap.Logger) *SchedulingService {
	return &SchedulingService{
		posts:  posts,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// PostUpdate carries the mutable fields of a non-terminal post.
type PostUpdate struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	ContentType *string                `json:"content_type"`
	MediaFiles  []string               `json:"media_files"`
	Targets     models.PlatformTargets `json:"platforms"`
	ScheduledAt *time.Time             `json:"scheduled_at"`
	Timezone    *string                `json:"timezone"`
	MaxRetries  *int                   `json:"max_retries"`
}

// PostStats is the per-user scheduling overview.
type PostStats struct {
	Total    int64                        `json:"total"`
	ByStatus map[models.PostStatus]int64 `json:"by_status"`
}

func (s *SchedulingService) Create(ctx context.Context, userID string, post *models.ScheduledPost) error {
	post.ID = uuid.NewString()
	post.UserID = userID
	if post.Status == "" {
		post.Status = models.PostStatusScheduled
	}
	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return NewValidationError("posts are created as draft or scheduled")
	}
	if post.MaxRetries == 0 {
		post.MaxRetries = 3
	}
	post.PublishResults = models.PublishResults{}

	if err := post.Validate(s.now()); err != nil {
		return NewValidationError("%s", err.Error())
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return err
	}

	s.logger.Info("Post scheduled",
		zap.String("post_id", post.ID),
		zap.String("user_id", userID),
		zap.Time("scheduled_at", post.ScheduledAt))
	return nil
}

func (s *SchedulingService) List(ctx context.Context, userID string) ([]models.ScheduledPost, error) {
	return s.posts.ByUser(ctx, userID)
}

func (s *SchedulingService) Upcoming(ctx context.Context, userID string) ([]models.ScheduledPost, error) {
	return s.posts.Upcoming(ctx, userID, s.now())
}

func (s *SchedulingService) Stats(ctx context.Context, userID string) (*PostStats, error) {
	counts, err := s.posts.CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &PostStats{ByStatus: counts}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

// Get returns the user's post. Posts owned by other users are reported
// as not found.
func (s *SchedulingService) Get(ctx context.Context, userID, id string) (*models.ScheduledPost, error) {
	post, err := s.posts.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrNotFound
	}
	return post, nil
}

func (s *SchedulingService) Update(ctx context.Context, userID, id string, update PostUpdate) (*models.ScheduledPost, error) {
	post, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if post.Status.IsTerminal() {
		return nil, NewValidationError("cannot update a %s post", post.Status)
	}
	if post.Status == models.PostStatusProcessing {
		return nil, NewValidationError("post is being published")
	}

	if update.Title != nil {
		post.Title = *update.Title
	}
	if update.Description != nil {
		post.Description = *update.Description
	}
	if update.ContentType != nil {
		post.ContentType = *update.ContentType
	}
	if update.MediaFiles != nil {
		post.MediaFiles = models.StringArray(update.MediaFiles)
	}
	if update.Targets != nil {
		post.Targets = update.Targets
	}
	if update.ScheduledAt != nil {
		post.ScheduledAt = *update.ScheduledAt
	}
	if update.Timezone != nil {
		post.Timezone = *update.Timezone
	}
	if update.MaxRetries != nil {
		post.MaxRetries = *update.MaxRetries
	}

	if err := post.Validate(s.now()); err != nil {
		return nil, NewValidationError("%s", err.Error())
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Cancel marks a post cancelled. It only has effect before the
// dispatcher claims the post; an attempt already running completes and
// records its result.
func (s *SchedulingService) Cancel(ctx context.Context, userID, id string) (*models.ScheduledPost, error) {
	post, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusDraft {
		return nil, NewValidationError("only scheduled posts can be cancelled")
	}

	post.Status = models.PostStatusCancelled
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Retry is the explicit user retry action. The cumulative retryCount
// is re-checked against maxRetries, never reset.
func (s *SchedulingService) Retry(ctx context.Context, userID, id string) (*models.ScheduledPost, error) {
	post, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.retry.ExplicitRetry(*post)
	if err != nil {
		return nil, err
	}

	if err := s.posts.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a post. Published posts are never destroyed.
func (s *SchedulingService) Delete(ctx context.Context, userID, id string) error {
	post, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublished {
		return NewValidationError("published posts cannot be deleted")
	}
	return s.posts.Delete(ctx, post.ID)
}
