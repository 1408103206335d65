package models

import (
	"time"
)

type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusExpired ConnectionStatus = "expired"
	ConnectionStatusRevoked ConnectionStatus = "revoked"
	ConnectionStatusError   ConnectionStatus = "error"
)

// PlatformConnection is a user's OAuth-authorized link to one social
// platform. The (user_id, platform) pair is unique; a revoked row is
// terminal and reconnecting creates a fresh one.
type PlatformConnection struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   string `gorm:"not null;uniqueIndex:idx_conn_user_platform,priority:1;size:36" json:"user_id"`
	Platform string `gorm:"not null;uniqueIndex:idx_conn_user_platform,priority:2;size:50" json:"platform"`

	// Token material is never serialized into API responses.
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time `json:"expires_at"`

	Status ConnectionStatus `gorm:"size:20;default:'active';index" json:"status"`

	// Usage counters
	TotalPublished  int        `gorm:"default:0" json:"total_published"`
	LastPublishedAt *time.Time `json:"last_published_at"`
	LastValidatedAt *time.Time `json:"last_validated_at"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Expired reports whether the token is past its expiry. A connection
// with no expiry never expires.
func (c *PlatformConnection) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// NeedsRefresh reports whether the token is within the proactive
// refresh window before expiry.
func (c *PlatformConnection) NeedsRefresh(now time.Time, window time.Duration) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Add(-window))
}
