package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/beaconhq/beacon/internal/models"
)

func activeConn(expiresAt *time.Time) *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:           "conn-1",
		UserID:       "user-1",
		Platform:     "youtube",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
		Status:       models.ConnectionStatusActive,
	}
}

func newTestTokenManager(store ConnectionStore, refresh RefreshFunc) *TokenManager {
	m := NewTokenManager(store, refresh, zap.NewNop())
	m.now = fixedNow
	return m
}

func TestEnsureValidRevoked(t *testing.T) {
	store := newMemConnStore()
	manager := newTestTokenManager(store, nil)

	conn := activeConn(nil)
	conn.Status = models.ConnectionStatusRevoked

	_, err := manager.EnsureValid(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEnsureValidNoExpirySkipsRefresh(t *testing.T) {
	store := newMemConnStore()
	var refreshCalls int32
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return nil, errors.New("should not be called")
	})

	conn := activeConn(nil)
	store.put(*conn)

	got, err := manager.EnsureValid(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "access-old", got.AccessToken)
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls))
	require.NotNil(t, got.LastValidatedAt)
}

func TestEnsureValidOutsideWindowSkipsRefresh(t *testing.T) {
	store := newMemConnStore()
	var refreshCalls int32
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return nil, errors.New("should not be called")
	})

	expiry := fixedNow().Add(time.Hour)
	conn := activeConn(&expiry)
	store.put(*conn)

	_, err := manager.EnsureValid(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls))
}

func TestEnsureValidProactiveRefresh(t *testing.T) {
	store := newMemConnStore()
	newExpiry := fixedNow().Add(time.Hour)
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		return &oauth2.Token{
			AccessToken:  "access-new",
			RefreshToken: "refresh-rotated",
			Expiry:       newExpiry,
		}, nil
	})

	// Inside the 5 minute proactive window but not yet expired.
	expiry := fixedNow().Add(2 * time.Minute)
	conn := activeConn(&expiry)
	store.put(*conn)

	got, err := manager.EnsureValid(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "access-new", got.AccessToken)
	assert.Equal(t, "refresh-rotated", got.RefreshToken, "rotated refresh tokens must be persisted")
	assert.Equal(t, models.ConnectionStatusActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, newExpiry, *got.ExpiresAt)

	persisted, err := store.Get(context.Background(), "user-1", "youtube")
	require.NoError(t, err)
	assert.Equal(t, "access-new", persisted.AccessToken)
}

func TestRefreshKeepsOldRefreshToken(t *testing.T) {
	store := newMemConnStore()
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		// Provider without refresh token rotation.
		return &oauth2.Token{AccessToken: "access-new"}, nil
	})

	conn := activeConn(nil)
	store.put(*conn)

	got, err := manager.Refresh(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Nil(t, got.ExpiresAt)
}

func TestRefreshFailureMarksConnection(t *testing.T) {
	store := newMemConnStore()
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		return nil, errors.New("invalid_grant")
	})

	conn := activeConn(nil)
	store.put(*conn)

	_, err := manager.Refresh(context.Background(), conn)
	var refreshErr *TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "youtube", refreshErr.Platform)

	persisted, getErr := store.Get(context.Background(), "user-1", "youtube")
	require.NoError(t, getErr)
	assert.Equal(t, models.ConnectionStatusError, persisted.Status)
	assert.Equal(t, "invalid_grant", persisted.LastError)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	store := newMemConnStore()
	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		t.Fatal("provider must not be called without a refresh token")
		return nil, nil
	})

	conn := activeConn(nil)
	conn.RefreshToken = ""
	store.put(*conn)

	_, err := manager.Refresh(context.Background(), conn)
	var refreshErr *TokenRefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	store := newMemConnStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	var refreshCalls int32
	var once sync.Once

	manager := newTestTokenManager(store, func(ctx context.Context, conn *models.PlatformConnection) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		once.Do(func() { close(entered) })
		<-release
		return &oauth2.Token{AccessToken: "access-new", RefreshToken: "refresh-rotated"}, nil
	})

	conn := activeConn(nil)
	store.put(*conn)

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := manager.Refresh(context.Background(), conn)
		errs[0] = err
		if got != nil {
			results[0] = got.AccessToken
		}
	}()

	// Wait until the first refresh is in flight, then join it.
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		second := *conn
		got, err := manager.Refresh(context.Background(), &second)
		errs[1] = err
		if got != nil {
			results[1] = got.AccessToken
		}
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "access-new", results[0])
	assert.Equal(t, "access-new", results[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls),
		"concurrent refreshes for one connection must share a single provider call")
}
