package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beaconhq/beacon/internal/models"
)

// Monitor receives per-attempt outcomes and error events from the
// dispatch path.
type Monitor interface {
	RecordPublishOutcome(result models.PublishResult)
	RecordError(level, source, title, message string, options ...ErrorLogOption) error
}

type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordError 记录错误日志
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// ErrorLogOption 错误日志选项
type ErrorLogOption func(*models.ErrorLog)

func WithPlatform(platform string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Platform = platform
	}
}

func WithPost(postID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PostID = postID
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordPublishOutcome 更新平台当日统计
func (m *MonitoringService) RecordPublishOutcome(result models.PublishResult) {
	today := time.Now().Truncate(24 * time.Hour)

	var stats models.PlatformStats
	res := m.db.Where("date = ? AND platform = ?", today, result.Platform).First(&stats)
	if res.Error != nil {
		stats = models.PlatformStats{Date: today, Platform: result.Platform}
	}

	now := time.Now()
	switch {
	case result.Success:
		stats.SuccessCount++
		stats.LastSuccessAt = &now
	case result.Error == ReasonRateLimited:
		stats.RateLimitCount++
	default:
		stats.FailureCount++
		stats.LastFailureAt = &now
	}

	if err := m.db.Save(&stats).Error; err != nil {
		m.logger.Error("Failed to update platform stats",
			zap.String("platform", result.Platform),
			zap.Error(err))
	}
}

// UpdateDispatchStats 更新系统统计数据
func (m *MonitoringService) UpdateDispatchStats() error {
	today := time.Now().Truncate(24 * time.Hour)

	var stats models.DispatchStats
	result := m.db.Where("date = ?", today).First(&stats)

	var totalPosts, scheduledPosts, publishedPosts, failedPosts int64
	m.db.Model(&models.ScheduledPost{}).Count(&totalPosts)
	m.db.Model(&models.ScheduledPost{}).Where("status = ?", models.PostStatusScheduled).Count(&scheduledPosts)
	m.db.Model(&models.ScheduledPost{}).Where("status = ?", models.PostStatusPublished).Count(&publishedPosts)
	m.db.Model(&models.ScheduledPost{}).Where("status = ?", models.PostStatusFailed).Count(&failedPosts)

	var totalAttempts int64
	m.db.Model(&models.PlatformStats{}).
		Select("COALESCE(SUM(success_count + failure_count + rate_limit_count), 0)").
		Where("date = ?", today).
		Scan(&totalAttempts)

	stats.Date = today
	stats.TotalPosts = int(totalPosts)
	stats.ScheduledPosts = int(scheduledPosts)
	stats.PublishedPosts = int(publishedPosts)
	stats.FailedPosts = int(failedPosts)
	stats.TotalAttempts = int(totalAttempts)

	if result.Error != nil {
		return m.db.Create(&stats).Error
	}
	return m.db.Save(&stats).Error
}

// CleanupOldData 清理过期统计与日志
func (m *MonitoringService) CleanupOldData(keepDays int) error {
	cutoff := time.Now().AddDate(0, 0, -keepDays)

	if err := m.db.Where("date < ?", cutoff).Delete(&models.DispatchStats{}).Error; err != nil {
		return err
	}
	if err := m.db.Where("date < ?", cutoff).Delete(&models.PlatformStats{}).Error; err != nil {
		return err
	}
	return m.db.Where("created_at < ?", cutoff).Delete(&models.ErrorLog{}).Error
}

// Summary returns the latest daily roll-up rows for the dashboard.
func (m *MonitoringService) Summary(days int) ([]models.DispatchStats, []models.PlatformStats, error) {
	since := time.Now().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	var dispatch []models.DispatchStats
	if err := m.db.Where("date >= ?", since).Order("date DESC").Find(&dispatch).Error; err != nil {
		return nil, nil, err
	}

	var platforms []models.PlatformStats
	if err := m.db.Where("date >= ?", since).Order("date DESC, platform ASC").Find(&platforms).Error; err != nil {
		return nil, nil, err
	}

	return dispatch, platforms, nil
}
