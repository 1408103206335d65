package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusProcessing PostStatus = "processing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition may occur.
// published and cancelled posts are never mutated again.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPublished || s == PostStatusCancelled
}

// StringArray represents a PostgreSQL text[] type
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle PostgreSQL array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Fallback to string parsing
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(s))
	for i, v := range s {
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// PlatformTarget is one platform-specific destination within a post,
// with optional per-platform overrides (e.g. caption, privacy).
type PlatformTarget struct {
	Platform  string            `json:"platform"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// PlatformTargets is stored as a jsonb column.
type PlatformTargets []PlatformTarget

func (t *PlatformTargets) Scan(value interface{}) error {
	if value == nil {
		*t = PlatformTargets{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("cannot scan %T into PlatformTargets", value)
	}
}

func (t PlatformTargets) Value() (driver.Value, error) {
	if t == nil {
		t = PlatformTargets{}
	}
	return json.Marshal(t)
}

// PublishResult is one publish-attempt outcome for one platform target.
type PublishResult struct {
	Platform    string    `json:"platform"`
	Success     bool      `json:"success"`
	PostID      string    `json:"post_id,omitempty"`
	PostURL     string    `json:"post_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// PublishResults is an append-only jsonb log: entries are only ever
// appended, never rewritten, so ordering survives reload and replay.
type PublishResults []PublishResult

func (r *PublishResults) Scan(value interface{}) error {
	if value == nil {
		*r = PublishResults{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into PublishResults", value)
	}
}

func (r PublishResults) Value() (driver.Value, error) {
	if r == nil {
		r = PublishResults{}
	}
	return json.Marshal(r)
}

// Latest returns the most recent result for a platform, if any.
func (r PublishResults) Latest(platform string) (PublishResult, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Platform == platform {
			return r[i], true
		}
	}
	return PublishResult{}, false
}

type ScheduledPost struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"not null;index;size:36" json:"user_id"`
	Title          string          `gorm:"not null;size:500" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	ContentType    string          `gorm:"size:50" json:"content_type"`
	MediaFiles     StringArray     `gorm:"type:text[]" json:"media_files"`
	Targets        PlatformTargets `gorm:"type:jsonb" json:"platforms"`
	ScheduledAt    time.Time       `gorm:"not null;index" json:"scheduled_at"`
	Timezone       string          `gorm:"size:64" json:"timezone"`
	Status         PostStatus      `gorm:"size:20;default:'draft';index" json:"status"`
	PublishResults PublishResults  `gorm:"type:jsonb" json:"publish_results"`
	RetryCount     int             `gorm:"default:0" json:"retry_count"`
	MaxRetries     int             `gorm:"default:3" json:"max_retries"`
	LastRetryAt    *time.Time      `json:"last_retry_at"`
	PublishedAt    *time.Time      `json:"published_at"`
	ProcessingAt   *time.Time      `json:"processing_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// PendingTargets returns the targets whose latest publish result is
// missing or unsuccessful. Succeeded targets are never re-attempted.
func (p *ScheduledPost) PendingTargets() []PlatformTarget {
	var pending []PlatformTarget
	for _, target := range p.Targets {
		if latest, ok := p.PublishResults.Latest(target.Platform); ok && latest.Success {
			continue
		}
		pending = append(pending, target)
	}
	return pending
}

// Validate checks the creation invariants for a post entering the
// scheduled state.
func (p *ScheduledPost) Validate(now time.Time) error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	if len(p.Targets) == 0 {
		return errors.New("at least one platform is required")
	}
	if p.Status == PostStatusScheduled && !p.ScheduledAt.After(now) {
		return errors.New("scheduled_at must be in the future")
	}
	return nil
}
