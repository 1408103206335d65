package publisher

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/beaconhq/beacon/internal/models"
)

// Platform names as used in PlatformTarget and connection records.
const (
	PlatformYouTube   = "youtube"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformTwitter   = "twitter"
	PlatformFacebook  = "facebook"
)

// Content is the platform-neutral payload handed to an adapter. Media
// URLs are durable URLs produced by the media-upload collaborator.
type Content struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	ContentType string            `json:"content_type"`
	MediaURLs   []string          `json:"media_urls"`
	Overrides   map[string]string `json:"overrides,omitempty"`
}

// Caption returns the platform caption, preferring a per-target
// override over the post description.
func (c Content) Caption() string {
	if v, ok := c.Overrides["caption"]; ok && v != "" {
		return v
	}
	return c.Description
}

// Result identifies the created platform post.
type Result struct {
	PostID  string `json:"post_id"`
	PostURL string `json:"post_url"`
}

// Adapter is the per-platform publish capability. The publish-attempt
// protocol is identical across platforms; only the adapter varies.
type Adapter interface {
	Platform() string

	// Publish creates the platform post using a valid access token.
	Publish(ctx context.Context, content Content, accessToken string) (*Result, error)

	// ValidateToken performs a lightweight authenticated call to check
	// the token is accepted by the provider.
	ValidateToken(ctx context.Context, accessToken string) error

	// OAuthConfig carries the platform's authorize/token endpoints and
	// scopes for the OAuth flow and token refresh.
	OAuthConfig() *oauth2.Config
}

// FromPost builds the adapter payload for one platform target.
func FromPost(post *models.ScheduledPost, target models.PlatformTarget) Content {
	return Content{
		Title:       post.Title,
		Description: post.Description,
		ContentType: post.ContentType,
		MediaURLs:   []string(post.MediaFiles),
		Overrides:   target.Overrides,
	}
}
