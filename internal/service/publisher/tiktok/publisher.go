package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

const defaultAPIBase = "https://open.tiktokapis.com"

// Endpoint is TikTok's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
	TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
}

// Publisher posts videos through the TikTok Content Posting API using
// the PULL_FROM_URL source, so media never transits this service.
type Publisher struct {
	cfg     config.PlatformAppConfig
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

// Content Posting API structures
type videoInitRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type sourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type videoInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error apiError `json:"error"`
}

type userInfoResponse struct {
	Data struct {
		User struct {
			OpenID string `json:"open_id"`
		} `json:"user"`
	} `json:"data"`
	Error apiError `json:"error"`
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
	return publisher.PlatformTikTok
}

func (p *Publisher) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes: []string{
			"user.info.basic",
			"video.publish",
		},
		Endpoint: Endpoint,
	}
}

func (p *Publisher) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	if len(content.MediaURLs) == 0 {
		return nil, fmt.Errorf("tiktok requires a video media file")
	}

	privacy := content.Overrides["privacy"]
	if privacy == "" {
		privacy = "PUBLIC_TO_EVERYONE"
	}

	payload := videoInitRequest{
		PostInfo: postInfo{
			Title:        content.Caption(),
			PrivacyLevel: privacy,
		},
		SourceInfo: sourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: content.MediaURLs[0],
		},
	}

	var result videoInitResponse
	if err := p.postJSON(ctx, "/v2/post/publish/video/init/", accessToken, payload, &result); err != nil {
		return nil, err
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return nil, fmt.Errorf("tiktok publish failed: %s (%s)", result.Error.Message, result.Error.Code)
	}

	p.logger.Info("TikTok publish initiated", zap.String("publish_id", result.Data.PublishID))

	// The post URL is only known once TikTok finishes the async pull;
	// the publish id is the durable reference.
	return &publisher.Result{PostID: result.Data.PublishID}, nil
}

func (p *Publisher) ValidateToken(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v2/user/info/?fields=open_id", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("tiktok token validation failed: %w", err)
	}
	defer resp.Body.Close()

	var result userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return fmt.Errorf("tiktok token rejected: %s", result.Error.Message)
	}
	return nil
}

func (p *Publisher) postJSON(ctx context.Context, path, accessToken string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("tiktok request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
