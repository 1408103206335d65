package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

// memPostStore is an in-memory PostStore with the same claim semantics
// as the gorm implementation.
type memPostStore struct {
	mu    sync.Mutex
	posts map[string]*models.ScheduledPost
}

func newMemPostStore() *memPostStore {
	return &memPostStore{posts: make(map[string]*models.ScheduledPost)}
}

func (s *memPostStore) put(post models.ScheduledPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := post
	s.posts[post.ID] = &copied
}

func (s *memPostStore) get(id string) models.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *memPostStore) Create(ctx context.Context, post *models.ScheduledPost) error {
	s.put(*post)
	return nil
}

func (s *memPostStore) ByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *post
	return &copied, nil
}

func (s *memPostStore) ByUser(ctx context.Context, userID string) ([]models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledPost
	for _, post := range s.posts {
		if post.UserID == userID {
			out = append(out, *post)
		}
	}
	return out, nil
}

func (s *memPostStore) Upcoming(ctx context.Context, userID string, now time.Time) ([]models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledPost
	for _, post := range s.posts {
		if post.UserID == userID && post.Status == models.PostStatusScheduled && post.ScheduledAt.After(now) {
			out = append(out, *post)
		}
	}
	return out, nil
}

func (s *memPostStore) Update(ctx context.Context, post *models.ScheduledPost) error {
	s.put(*post)
	return nil
}

func (s *memPostStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

func (s *memPostStore) CountByStatus(ctx context.Context, userID string) (map[models.PostStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.PostStatus]int64)
	for _, post := range s.posts {
		if post.UserID == userID {
			counts[post.Status]++
		}
	}
	return counts, nil
}

func (s *memPostStore) FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staleBefore := now.Add(-grace)
	var due []models.ScheduledPost
	for _, post := range s.posts {
		switch {
		case post.Status == models.PostStatusScheduled && !post.ScheduledAt.After(now):
			due = append(due, *post)
		case post.Status == models.PostStatusProcessing && post.ProcessingAt != nil && post.ProcessingAt.Before(staleBefore):
			due = append(due, *post)
		}
	}
	return due, nil
}

func (s *memPostStore) Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return false, nil
	}
	staleBefore := now.Add(-grace)
	claimable := post.Status == models.PostStatusScheduled ||
		(post.Status == models.PostStatusProcessing && post.ProcessingAt != nil && post.ProcessingAt.Before(staleBefore))
	if !claimable {
		return false, nil
	}
	post.Status = models.PostStatusProcessing
	post.ProcessingAt = &now
	return true, nil
}

// memConnStore is an in-memory ConnectionStore keyed by (user, platform).
type memConnStore struct {
	mu      sync.Mutex
	conns   map[string]*models.PlatformConnection
	updates int
	deleted []string
}

func newMemConnStore() *memConnStore {
	return &memConnStore{conns: make(map[string]*models.PlatformConnection)}
}

func connKey(userID, platform string) string {
	return userID + "/" + platform
}

func (s *memConnStore) put(conn models.PlatformConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := conn
	s.conns[connKey(conn.UserID, conn.Platform)] = &copied
}

func (s *memConnStore) Get(ctx context.Context, userID, platform string) (*models.PlatformConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connKey(userID, platform)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (s *memConnStore) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	s.put(*conn)
	return nil
}

func (s *memConnStore) Update(ctx context.Context, conn *models.PlatformConnection) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	s.put(*conn)
	return nil
}

func (s *memConnStore) Delete(ctx context.Context, userID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey(userID, platform)
	delete(s.conns, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memConnStore) ListByUser(ctx context.Context, userID string) ([]models.PlatformConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlatformConnection
	for _, conn := range s.conns {
		if conn.UserID == userID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

// fakeAdapter is a scriptable platform adapter.
type fakeAdapter struct {
	platform string
	publish  func(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error)

	mu    sync.Mutex
	calls []publisher.Content
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) Publish(ctx context.Context, content publisher.Content, accessToken string) (*publisher.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, content)
	a.mu.Unlock()
	if a.publish != nil {
		return a.publish(ctx, content, accessToken)
	}
	return &publisher.Result{PostID: a.platform + "-1", PostURL: "https://" + a.platform + ".example/1"}, nil
}

func (a *fakeAdapter) ValidateToken(ctx context.Context, accessToken string) error { return nil }

func (a *fakeAdapter) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: "client-" + a.platform,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://" + a.platform + ".example/oauth/authorize",
			TokenURL: "https://" + a.platform + ".example/oauth/token",
		},
		RedirectURL: "https://beacon.example/api/v1/oauth/" + a.platform + "/callback",
	}
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// stubNotifier records terminal notifications.
type stubNotifier struct {
	mu        sync.Mutex
	published []string
	failed    []string
}

func (n *stubNotifier) PostPublished(ctx context.Context, post *models.ScheduledPost) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, post.ID)
}

func (n *stubNotifier) PostFailed(ctx context.Context, post *models.ScheduledPost) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, post.ID)
}

// stubMonitor records publish outcomes.
type stubMonitor struct {
	mu       sync.Mutex
	outcomes []models.PublishResult
	errors   int
}

func (m *stubMonitor) RecordPublishOutcome(result models.PublishResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, result)
}

func (m *stubMonitor) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	return nil
}
