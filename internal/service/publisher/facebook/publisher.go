package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	fboauth "golang.org/x/oauth2/facebook"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

const defaultAPIBase = "https://graph.facebook.com/v19.0"

// Publisher posts to the connected user's Facebook page feed via the
// Graph API.
type Publisher struct {
	cfg     config.PlatformAppConfig
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

// Graph API response structures
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type feedResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

type photoResponse struct {
	ID     string      `json:"id"`
	PostID string      `json:"post_id"`
	Error  *graphError `json:"error"`
}

type meResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

func NewPublisher(cfg config.PlatformAppConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		apiBase: defaultAPIBase,
	}
}

func (p *Publisher) Platform() string {
	return publisher.PlatformFacebook
}

func (p *Publisher) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes: []string{
			"pages_manage_posts",
			"pages_read_engagement",
			"publish_video",
		},
		Endpoint: fboauth.Endpoint,
	}
}

func (p *Publisher) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	// Photo posts go through /photos, everything else is a feed post.
	if len(content.MediaURLs) > 0 && strings.HasPrefix(content.ContentType, "image") {
		return p.publishPhoto(ctx, content, accessToken)
	}
	return p.publishFeed(ctx, content, accessToken)
}

func (p *Publisher) publishFeed(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	form := url.Values{}
	form.Set("message", content.Caption())
	form.Set("access_token", accessToken)
	if len(content.MediaURLs) > 0 {
		form.Set("link", content.MediaURLs[0])
	}

	var result feedResponse
	if err := p.postForm(ctx, "/me/feed", form, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, fmt.Errorf("facebook feed post failed: %s (code %d)", result.Error.Message, result.Error.Code)
	}

	return &publisher.Result{
		PostID:  result.ID,
		PostURL: fmt.Sprintf("https://www.facebook.com/%s", result.ID),
	}, nil
}

func (p *Publisher) publishPhoto(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	form := url.Values{}
	form.Set("url", content.MediaURLs[0])
	form.Set("caption", content.Caption())
	form.Set("access_token", accessToken)

	var result photoResponse
	if err := p.postForm(ctx, "/me/photos", form, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, fmt.Errorf("facebook photo post failed: %s (code %d)", result.Error.Message, result.Error.Code)
	}

	postID := result.PostID
	if postID == "" {
		postID = result.ID
	}

	return &publisher.Result{
		PostID:  postID,
		PostURL: fmt.Sprintf("https://www.facebook.com/%s", postID),
	}, nil
}

func (p *Publisher) ValidateToken(ctx context.Context, accessToken string) error {
	endpoint := fmt.Sprintf("%s/me?fields=id&access_token=%s", p.apiBase, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook token validation failed: %w", err)
	}
	defer resp.Body.Close()

	var result meResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("facebook token rejected: %s", result.Error.Message)
	}
	return nil
}

func (p *Publisher) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
