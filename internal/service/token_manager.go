package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

// DefaultRefreshWindow is how long before expiry a token is refreshed
// proactively.
const DefaultRefreshWindow = 5 * time.Minute

// RefreshFunc exchanges a connection's refresh token at the platform's
// token endpoint.
type RefreshFunc func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error)

// OAuthRefreshFunc builds the production RefreshFunc from the adapter
// registry: each adapter carries its platform's oauth2 endpoint.
func OAuthRefreshFunc(registry *publisher.Manager) RefreshFunc {
	return func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		adapter, err := registry.Get(conn.Platform)
		if err != nil {
			return nil, err
		}
		stale := &oauth2.Token{
			AccessToken:  conn.AccessToken,
			RefreshToken: conn.RefreshToken,
			// Force the token source to hit the refresh endpoint
			Expiry: time.Now().Add(-time.Minute),
		}
		return adapter.OAuthConfig().TokenSource(ctx, stale).Token()
	}
}

// TokenManager ensures a connection's access token is valid before
// use. Refreshes for one connection are coalesced: concurrent callers
// share a single in-flight provider call, since provider refresh
// tokens are typically single-use.
type TokenManager struct {
	store   ConnectionStore
	refresh RefreshFunc
	group   singleflight.Group
	logger  *zap.Logger
	window  time.Duration
	now     func() time.Time
}

func NewTokenManager(store ConnectionStore, refresh RefreshFunc, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		store:   store,
		refresh: refresh,
		logger:  logger,
		window:  DefaultRefreshWindow,
		now:     time.Now,
	}
}

// EnsureValid returns a connection whose access token can be handed to
// an adapter, refreshing it when expired or inside the proactive
// window.
func (m *TokenManager) EnsureValid(ctx context.Context, conn *models.PlatformConnection) (*models.PlatformConnection, error) {
	if conn.Status == models.ConnectionStatusRevoked {
		return nil, ErrNotConnected
	}

	now := m.now()

	// No expiry recorded means the token never expires.
	if conn.ExpiresAt == nil {
		m.markValidated(ctx, conn, now)
		return conn, nil
	}

	if !conn.NeedsRefresh(now, m.window) {
		m.markValidated(ctx, conn, now)
		return conn, nil
	}

	if conn.Expired(now) {
		conn.Status = models.ConnectionStatusExpired
		if err := m.store.Update(ctx, conn); err != nil {
			m.logger.Warn("Failed to persist expired connection status",
				zap.String("connection_id", conn.ID),
				zap.Error(err))
		}
	}

	return m.Refresh(ctx, conn)
}

// Refresh performs (or joins) the single in-flight refresh for the
// connection and returns the refreshed record.
func (m *TokenManager) Refresh(ctx context.Context, conn *models.PlatformConnection) (*models.PlatformConnection, error) {
	v, err, _ := m.group.Do(conn.ID, func() (interface{}, error) {
		return m.doRefresh(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.PlatformConnection), nil
}

func (m *TokenManager) doRefresh(ctx context.Context, conn *models.PlatformConnection) (*models.PlatformConnection, error) {
	if conn.RefreshToken == "" {
		return nil, m.refreshFailed(ctx, conn, errors.New("no refresh token"))
	}

	token, err := m.refresh(ctx, conn)
	if err != nil {
		return nil, m.refreshFailed(ctx, conn, err)
	}

	now := m.now()
	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// Providers with rotating refresh tokens return a new one.
		conn.RefreshToken = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		conn.ExpiresAt = nil
	} else {
		expiry := token.Expiry
		conn.ExpiresAt = &expiry
	}
	conn.Status = models.ConnectionStatusActive
	conn.LastRefreshedAt = &now
	conn.LastError = ""

	if err := m.store.Update(ctx, conn); err != nil {
		return nil, err
	}

	m.logger.Info("Refreshed platform token",
		zap.String("connection_id", conn.ID),
		zap.String("platform", conn.Platform))
	return conn, nil
}

func (m *TokenManager) refreshFailed(ctx context.Context, conn *models.PlatformConnection, cause error) error {
	conn.Status = models.ConnectionStatusError
	conn.LastError = cause.Error()
	if err := m.store.Update(ctx, conn); err != nil {
		m.logger.Warn("Failed to persist connection error status",
			zap.String("connection_id", conn.ID),
			zap.Error(err))
	}

	m.logger.Warn("Token refresh failed, re-authorization required",
		zap.String("connection_id", conn.ID),
		zap.String("platform", conn.Platform),
		zap.Error(cause))
	return &TokenRefreshError{Platform: conn.Platform, Err: cause}
}

func (m *TokenManager) markValidated(ctx context.Context, conn *models.PlatformConnection, now time.Time) {
	conn.LastValidatedAt = &now
	if err := m.store.Update(ctx, conn); err != nil {
		m.logger.Warn("Failed to persist validation timestamp",
			zap.String("connection_id", conn.ID),
			zap.Error(err))
	}
}
