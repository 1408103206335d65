package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
)

func newSchedulingFixture() (*SchedulingService, *memPostStore) {
	posts := newMemPostStore()
	svc := NewSchedulingService(posts, testPolicy(), zap.NewNop())
	svc.now = fixedNow
	return svc, posts
}

func validDraft() *models.ScheduledPost {
	return &models.ScheduledPost{
		Title:       "Launch",
		Description: "Release announcement",
		Targets:     models.PlatformTargets{{Platform: "youtube"}},
		ScheduledAt: fixedNow().Add(time.Hour),
	}
}

func TestCreateDefaultsToScheduled(t *testing.T) {
	svc, posts := newSchedulingFixture()

	post := validDraft()
	require.NoError(t, svc.Create(context.Background(), "user-1", post))

	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "user-1", post.UserID)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, 3, post.MaxRetries)
	assert.NotNil(t, post.PublishResults)

	stored := posts.get(post.ID)
	assert.Equal(t, models.PostStatusScheduled, stored.Status)
}

func TestCreateRejectsPastSchedule(t *testing.T) {
	svc, _ := newSchedulingFixture()

	post := validDraft()
	post.ScheduledAt = fixedNow().Add(-time.Minute)

	err := svc.Create(context.Background(), "user-1", post)
	assert.True(t, IsValidation(err))
}

func TestCreateRejectsMissingTargets(t *testing.T) {
	svc, _ := newSchedulingFixture()

	post := validDraft()
	post.Targets = nil

	err := svc.Create(context.Background(), "user-1", post)
	assert.True(t, IsValidation(err))
}

func TestCreateRejectsForeignStatus(t *testing.T) {
	svc, _ := newSchedulingFixture()

	post := validDraft()
	post.Status = models.PostStatusProcessing

	err := svc.Create(context.Background(), "user-1", post)
	assert.True(t, IsValidation(err))
}

func TestCreateDraftAllowsPastSchedule(t *testing.T) {
	svc, _ := newSchedulingFixture()

	post := validDraft()
	post.Status = models.PostStatusDraft
	post.ScheduledAt = fixedNow().Add(-time.Hour)

	assert.NoError(t, svc.Create(context.Background(), "user-1", post))
}

func TestGetHidesForeignPosts(t *testing.T) {
	svc, _ := newSchedulingFixture()
	ctx := context.Background()

	post := validDraft()
	require.NoError(t, svc.Create(ctx, "user-1", post))

	_, err := svc.Get(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRejectsTerminalAndProcessing(t *testing.T) {
	svc, posts := newSchedulingFixture()
	ctx := context.Background()

	post := validDraft()
	require.NoError(t, svc.Create(ctx, "user-1", post))

	for _, status := range []models.PostStatus{
		models.PostStatusPublished,
		models.PostStatusCancelled,
		models.PostStatusProcessing,
	} {
		stored := posts.get(post.ID)
		stored.Status = status
		posts.put(stored)

		title := "Updated"
		_, err := svc.Update(ctx, "user-1", post.ID, PostUpdate{Title: &title})
		assert.True(t, IsValidation(err), "status %s must reject updates", status)
	}
}

func TestUpdateAppliesPartialFields(t *testing.T) {
	svc, _ := newSchedulingFixture()
	ctx := context.Background()

	post := validDraft()
	require.NoError(t, svc.Create(ctx, "user-1", post))

	title := "Renamed"
	newAt := fixedNow().Add(2 * time.Hour)
	updated, err := svc.Update(ctx, "user-1", post.ID, PostUpdate{
		Title:       &title,
		ScheduledAt: &newAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, newAt, updated.ScheduledAt)
	assert.Equal(t, "Release announcement", updated.Description)
}

func TestCancelOnlyBeforeClaim(t *testing.T) {
	svc, posts := newSchedulingFixture()
	ctx := context.Background()

	post := validDraft()
	require.NoError(t, svc.Create(ctx, "user-1", post))

	cancelled, err := svc.Cancel(ctx, "user-1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusCancelled, cancelled.Status)

	stored := posts.get(post.ID)
	stored.Status = models.PostStatusProcessing
	posts.put(stored)
	_, err = svc.Cancel(ctx, "user-1", post.ID)
	assert.True(t, IsValidation(err))
}

func TestDeleteRejectsPublished(t *testing.T) {
	svc, posts := newSchedulingFixture()
	ctx := context.Background()

	post := validDraft()
	require.NoError(t, svc.Create(ctx, "user-1", post))

	stored := posts.get(post.ID)
	stored.Status = models.PostStatusPublished
	posts.put(stored)

	err := svc.Delete(ctx, "user-1", post.ID)
	assert.True(t, IsValidation(err))

	stored.Status = models.PostStatusFailed
	posts.put(stored)
	assert.NoError(t, svc.Delete(ctx, "user-1", post.ID))

	_, err = svc.Get(ctx, "user-1", post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsAggregatesByStatus(t *testing.T) {
	svc, posts := newSchedulingFixture()
	ctx := context.Background()

	for _, status := range []models.PostStatus{
		models.PostStatusScheduled,
		models.PostStatusScheduled,
		models.PostStatusPublished,
	} {
		post := validDraft()
		require.NoError(t, svc.Create(ctx, "user-1", post))
		stored := posts.get(post.ID)
		stored.Status = status
		posts.put(stored)
	}

	stats, err := svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[models.PostStatusScheduled])
	assert.Equal(t, int64(1), stats.ByStatus[models.PostStatusPublished])
}
