package instagram

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

// Publisher posts to Instagram through the Graph API content
// publishing flow: create a media container, then publish it.
type Publisher struct {
	cfg     config.PlatformAppConfig
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type containerResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

type publishResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

type permalinkResponse struct {
	Permalink string      `json:"permalink"`
	Error     *graphError `json:"error"`
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
	return publisher.PlatformInstagram
}

func (p *Publisher) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes: []string{
			"instagram_basic",
			"instagram_content_publish",
		},
		Endpoint: fboauth.Endpoint,
	}
}

func (p *Publisher) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	if len(content.MediaURLs) == 0 {
		return nil, fmt.Errorf("instagram requires a media file")
	}

	// Step 1: create the media container
	form := url.Values{}
	form.Set("caption", content.Caption())
	form.Set("access_token", accessToken)
	if strings.HasPrefix(content.ContentType, "video") {
		form.Set("media_type", "REELS")
		form.Set("video_url", content.MediaURLs[0])
	} else {
		form.Set("image_url", content.MediaURLs[0])
	}

	var container containerResponse
	if err := p.postForm(ctx, "/me/media", form, &container); err != nil {
		return nil, err
	}
	if container.Error != nil {
		return nil, fmt.Errorf("instagram container creation failed: %s (code %d)", container.Error.Message, container.Error.Code)
	}

	// Step 2: publish the container
	publishForm := url.Values{}
	publishForm.Set("creation_id", container.ID)
	publishForm.Set("access_token", accessToken)

	var published publishResponse
	if err := p.postForm(ctx, "/me/media_publish", publishForm, &published); err != nil {
		return nil, err
	}
	if published.Error != nil {
		return nil, fmt.Errorf("instagram publish failed: %s (code %d)", published.Error.Message, published.Error.Code)
	}

	result := &publisher.Result{PostID: published.ID}

	// Permalink lookup is best effort; the post exists either way.
	if permalink, err := p.fetchPermalink(ctx, published.ID, accessToken); err == nil {
		result.PostURL = permalink
	} else {
		p.logger.Warn("Failed to fetch instagram permalink",
			zap.String("media_id", published.ID),
			zap.Error(err))
	}

	return result, nil
}

func (p *Publisher) ValidateToken(ctx context.Context, accessToken string) error {
	endpoint := fmt.Sprintf("%s/me?fields=id&access_token=%s", p.apiBase, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("instagram token validation failed: %w", err)
	}
	defer resp.Body.Close()

	var result containerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("instagram token rejected: %s", result.Error.Message)
	}
	return nil
}

func (p *Publisher) fetchPermalink(ctx context.Context, mediaID, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", p.apiBase, mediaID, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result permalinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("%s", result.Error.Message)
	}
	return result.Permalink, nil
}

func (p *Publisher) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("instagram request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
