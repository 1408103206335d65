package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

// Publisher uploads videos to the connected user's YouTube channel.
type Publisher struct {
	cfg    config.PlatformAppConfig
	logger *zap.Logger
	client *http.Client
}

func NewPublisher(cfg config.PlatformAppConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Minute, // video downloads can be large
		},
	}
}

func (p *Publisher) Platform() string {
	return publisher.PlatformYouTube
}

func (p *Publisher) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes: []string{
			youtubeapi.YoutubeScope,
			youtubeapi.YoutubeUploadScope,
			youtubeapi.YoutubeForceSslScope,
		},
		Endpoint: google.Endpoint,
	}
}

func (p *Publisher) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	if len(content.MediaURLs) == 0 {
		return nil, fmt.Errorf("youtube requires a video media file")
	}

	svc, err := p.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	// Pull the video from the durable media URL produced by the upload
	// pipeline and stream it into the resumable upload.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, content.MediaURLs[0], nil)
	if err != nil {
		return nil, fmt.Errorf("invalid media url: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch media: status %d", resp.StatusCode)
	}

	privacy := content.Overrides["privacy"]
	if privacy == "" {
		privacy = "public"
	}

	video := &youtubeapi.Video{
		Snippet: &youtubeapi.VideoSnippet{
			Title:       content.Title,
			Description: content.Caption(),
			CategoryId:  "22",
		},
		Status: &youtubeapi.VideoStatus{
			PrivacyStatus: privacy,
		},
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(resp.Body).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload failed: %w", err)
	}

	p.logger.Info("YouTube video uploaded", zap.String("video_id", uploaded.Id))

	return &publisher.Result{
		PostID:  uploaded.Id,
		PostURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id),
	}, nil
}

func (p *Publisher) ValidateToken(ctx context.Context, accessToken string) error {
	svc, err := p.newService(ctx, accessToken)
	if err != nil {
		return err
	}

	_, err = svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("youtube token validation failed: %w", err)
	}
	return nil
}

func (p *Publisher) newService(ctx context.Context, accessToken string) (*youtubeapi.Service, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	svc, err := youtubeapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return svc, nil
}
