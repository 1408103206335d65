package models

import (
	"time"
)

// DispatchStats 按日统计 dispatch 结果
type DispatchStats struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Date           time.Time `gorm:"uniqueIndex;not null" json:"date"`
	TotalPosts     int       `gorm:"default:0" json:"total_posts"`
	ScheduledPosts int       `gorm:"default:0" json:"scheduled_posts"`
	PublishedPosts int       `gorm:"default:0" json:"published_posts"`
	FailedPosts    int       `gorm:"default:0" json:"failed_posts"`
	TotalAttempts  int       `gorm:"default:0" json:"total_attempts"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PlatformStats 平台级别统计信息
type PlatformStats struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Date           time.Time  `gorm:"index;not null" json:"date"`
	Platform       string     `gorm:"size:50;not null;index" json:"platform"`
	SuccessCount   int        `gorm:"default:0" json:"success_count"`
	FailureCount   int        `gorm:"default:0" json:"failure_count"`
	RateLimitCount int        `gorm:"default:0" json:"rate_limit_count"`
	LastSuccessAt  *time.Time `json:"last_success_at"`
	LastFailureAt  *time.Time `json:"last_failure_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog 错误日志表
type ErrorLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;not null;index" json:"level"`
	Source    string    `gorm:"size:100;not null;index" json:"source"`
	Platform  string    `gorm:"size:50;index" json:"platform"`
	PostID    string    `gorm:"size:36;index" json:"post_id"`
	Title     string    `gorm:"size:500;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Context   string    `gorm:"type:jsonb" json:"context"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
