package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/beaconhq/beacon/internal/models"
)

// PostStore is the durable record of scheduled posts and their publish
// results.
type PostStore interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	ByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	ByUser(ctx context.Context, userID string) ([]models.ScheduledPost, error)
	Upcoming(ctx context.Context, userID string, now time.Time) ([]models.ScheduledPost, error)
	Update(ctx context.Context, post *models.ScheduledPost) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, userID string) (map[models.PostStatus]int64, error)

	// FindDue returns posts ready for dispatch: scheduled posts whose
	// scheduledAt has passed, plus processing posts whose claim is older
	// than the grace period (crashed-tick recovery).
	FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]models.ScheduledPost, error)

	// Claim performs the atomic scheduled→processing transition. It
	// returns false when another dispatch cycle already owns the post.
	Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error)
}

type gormPostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) PostStore {
	return &gormPostStore{db: db}
}

func (s *gormPostStore) Create(ctx context.Context, post *models.ScheduledPost) error {
	return s.db.WithContext(ctx).Create(post).Error
}

func (s *gormPostStore) ByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (s *gormPostStore) ByUser(ctx context.Context, userID string) ([]models.ScheduledPost, error) {
	var posts []models.ScheduledPost
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scheduled_at DESC").
		Find(&posts).Error
	return posts, err
}

func (s *gormPostStore) Upcoming(ctx context.Context, userID string, now time.Time) ([]models.ScheduledPost, error) {
	var posts []models.ScheduledPost
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND scheduled_at > ?", userID, models.PostStatusScheduled, now).
		Order("scheduled_at ASC").
		Find(&posts).Error
	return posts, err
}

func (s *gormPostStore) Update(ctx context.Context, post *models.ScheduledPost) error {
	return s.db.WithContext(ctx).Save(post).Error
}

func (s *gormPostStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.ScheduledPost{}, "id = ?", id).Error
}

func (s *gormPostStore) CountByStatus(ctx context.Context, userID string) (map[models.PostStatus]int64, error) {
	type row struct {
		Status models.PostStatus
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.ScheduledPost{}).
		Select("status, count(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.PostStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *gormPostStore) FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]models.ScheduledPost, error) {
	var posts []models.ScheduledPost
	staleBefore := now.Add(-grace)
	err := s.db.WithContext(ctx).
		Where("(status = ? AND scheduled_at <= ?) OR (status = ? AND processing_at < ?)",
			models.PostStatusScheduled, now, models.PostStatusProcessing, staleBefore).
		Order("scheduled_at ASC").
		Find(&posts).Error
	return posts, err
}

func (s *gormPostStore) Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	// The conditional UPDATE is the concurrency guard: only one cycle
	// can move a post into processing, and a stale processing claim can
	// only be taken over after the grace period.
	staleBefore := now.Add(-grace)
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledPost{}).
		Where("id = ? AND (status = ? OR (status = ? AND processing_at < ?))",
			id, models.PostStatusScheduled, models.PostStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":        models.PostStatusProcessing,
			"processing_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
