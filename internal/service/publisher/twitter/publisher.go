package twitter

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

const defaultAPIBase = "https://api.twitter.com"

// Endpoint is Twitter's OAuth 2.0 (PKCE-capable) endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

// Publisher posts tweets via the v2 API.
type Publisher struct {
	cfg     config.PlatformAppConfig
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

type usersMeResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func NewPublisher(cfg config.PlatformAppConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiBase: defaultAPIBase,
	}
}

func (p *Publisher) Platform() string {
	return publisher.PlatformTwitter
}

func (p *Publisher) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes: []string{
			"tweet.read",
			"tweet.write",
			"users.read",
			"offline.access",
		},
		Endpoint: Endpoint,
	}
}

func (p *Publisher) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	text := content.Caption()
	if text == "" {
		text = content.Title
	}
	// Media is referenced by URL; native media upload needs the v1.1
	// chunked endpoint which is out of scope for link posts.
	if len(content.MediaURLs) > 0 {
		text = fmt.Sprintf("%s %s", text, content.MediaURLs[0])
	}

	body, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	var result tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Data.ID == "" {
		return nil, fmt.Errorf("twitter post failed: %s (%s)", result.Title, result.Detail)
	}

	return &publisher.Result{
		PostID:  result.Data.ID,
		PostURL: fmt.Sprintf("https://twitter.com/i/web/status/%s", result.Data.ID),
	}, nil
}

func (p *Publisher) ValidateToken(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/2/users/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("twitter token validation failed: %w", err)
	}
	defer resp.Body.Close()

	var result usersMeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Data.ID == "" {
		return fmt.Errorf("twitter token rejected: %s", result.Detail)
	}
	return nil
}
