package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service/publisher"
	"github.com/beaconhq/beacon/pkg/util"
)

// DefaultStateTTL bounds the lifetime of an authorize handshake.
const DefaultStateTTL = 10 * time.Minute

// Exchanger swaps an authorization code for tokens at the platform's
// token endpoint.
type Exchanger func(ctx context.Context, platform, code string) (*oauth2.Token, error)

// OAuthService drives the authorize/callback/refresh/revoke flow for
// platform connections.
type OAuthService struct {
	conns    ConnectionStore
	states   StateCache
	registry *publisher.Manager
	tokens   *TokenManager
	exchange Exchanger
	logger   *zap.Logger
	stateTTL time.Duration
	now      func() time.Time
}

func NewOAuthService(
	conns ConnectionStore,
	states StateCache,
	registry *publisher.Manager,
	tokens *TokenManager,
	stateTTL time.Duration,
	logger *zap.Logger,
) *OAuthService {
	s := &OAuthService{
		conns:    conns,
		states:   states,
		registry: registry,
		tokens:   tokens,
		logger:   logger,
		stateTTL: stateTTL,
		now:      time.Now,
	}
	s.exchange = s.exchangeCode
	return s
}

func (s *OAuthService) exchangeCode(ctx context.Context, platform, code string) (*oauth2.Token, error) {
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	return adapter.OAuthConfig().Exchange(ctx, code)
}

// AuthorizeURL starts the handshake: it caches a single-use CSRF state
// and returns the provider's authorization URL embedding it.
func (s *OAuthService) AuthorizeURL(ctx context.Context, userID, platform string) (string, error) {
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return "", NewValidationError("unsupported platform: %s", platform)
	}

	state := util.RandomToken(32)
	if err := s.states.Put(ctx, state, OAuthState{
		UserID:   userID,
		Platform: platform,
		IssuedAt: s.now(),
	}, s.stateTTL); err != nil {
		return "", err
	}

	url := adapter.OAuthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	return url, nil
}

// Callback completes the handshake. The state is consumed on first
// use; a missing or expired state produces no side effects.
func (s *OAuthService) Callback(ctx context.Context, platform, code, state string) error {
	if code == "" {
		return &OAuthError{Reason: OAuthReasonNoCode}
	}

	cached, ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return &OAuthError{Reason: OAuthReasonConnectionFailed, Err: err}
	}
	if !ok || cached.Platform != platform {
		return &OAuthError{Reason: OAuthReasonInvalidState}
	}

	token, err := s.exchange(ctx, platform, code)
	if err != nil {
		s.logger.Warn("OAuth code exchange failed",
			zap.String("platform", platform),
			zap.Error(err))
		return &OAuthError{Reason: OAuthReasonConnectionFailed, Err: err}
	}

	// A revoked connection is terminal; reconnecting replaces it with a
	// fresh record rather than resurrecting the old one.
	if existing, err := s.conns.Get(ctx, cached.UserID, platform); err == nil &&
		existing.Status == models.ConnectionStatusRevoked {
		if err := s.conns.Delete(ctx, cached.UserID, platform); err != nil {
			return &OAuthError{Reason: OAuthReasonConnectionFailed, Err: err}
		}
	}

	conn := &models.PlatformConnection{
		ID:           uuid.NewString(),
		UserID:       cached.UserID,
		Platform:     platform,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Status:       models.ConnectionStatusActive,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		conn.ExpiresAt = &expiry
	}

	if err := s.conns.Upsert(ctx, conn); err != nil {
		return &OAuthError{Reason: OAuthReasonConnectionFailed, Err: err}
	}

	s.logger.Info("Platform connected",
		zap.String("user_id", cached.UserID),
		zap.String("platform", platform))
	return nil
}

// Refresh forces a token refresh outside the dispatch path.
func (s *OAuthService) Refresh(ctx context.Context, userID, platform string) (*models.PlatformConnection, error) {
	conn, err := s.conns.Get(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if conn.Status == models.ConnectionStatusRevoked {
		return nil, ErrNotConnected
	}
	return s.tokens.Refresh(ctx, conn)
}

// Revoke disconnects the platform. The provider's revocation endpoint
// is not called synchronously; clearing the token material is best
// effort.
func (s *OAuthService) Revoke(ctx context.Context, userID, platform string) error {
	conn, err := s.conns.Get(ctx, userID, platform)
	if err != nil {
		return err
	}

	conn.Status = models.ConnectionStatusRevoked
	conn.AccessToken = ""
	conn.RefreshToken = ""
	conn.ExpiresAt = nil
	if err := s.conns.Update(ctx, conn); err != nil {
		return err
	}

	s.logger.Info("Platform disconnected",
		zap.String("user_id", userID),
		zap.String("platform", platform))
	return nil
}

// Connections lists the user's platform connections. Token material is
// excluded by the model's serialization rules.
func (s *OAuthService) Connections(ctx context.Context, userID string) ([]models.PlatformConnection, error) {
	return s.conns.ListByUser(ctx, userID)
}
