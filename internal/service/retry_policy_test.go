package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testPolicy() RetryPolicy {
	return RetryPolicy{Backoff: 5 * time.Minute, Now: fixedNow}
}

func twoTargetPost() models.ScheduledPost {
	return models.ScheduledPost{
		ID:     "post-1",
		UserID: "user-1",
		Title:  "Launch",
		Targets: models.PlatformTargets{
			{Platform: "youtube"},
			{Platform: "twitter"},
		},
		Status:     models.PostStatusProcessing,
		MaxRetries: 3,
	}
}

func TestApplyAllSucceeded(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()

	cycle := []models.PublishResult{
		{Platform: "youtube", Success: true, PostID: "yt-1", AttemptedAt: fixedNow()},
		{Platform: "twitter", Success: true, PostID: "tw-1", AttemptedAt: fixedNow()},
	}

	updated := policy.Apply(post, cycle)

	assert.Equal(t, models.PostStatusPublished, updated.Status)
	require.NotNil(t, updated.PublishedAt)
	assert.Equal(t, fixedNow(), *updated.PublishedAt)
	assert.Equal(t, 0, updated.RetryCount)
	assert.Nil(t, updated.ProcessingAt)
	require.Len(t, updated.PublishResults, 2)
	assert.Equal(t, "yt-1", updated.PublishResults[0].PostID)
}

func TestApplyHardFailureIncrementsOnce(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()

	// Two hard failures in one cycle still cost a single retry.
	cycle := []models.PublishResult{
		{Platform: "youtube", Error: "upload rejected", AttemptedAt: fixedNow()},
		{Platform: "twitter", Error: "duplicate tweet", AttemptedAt: fixedNow()},
	}

	updated := policy.Apply(post, cycle)

	assert.Equal(t, models.PostStatusScheduled, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, fixedNow().Add(5*time.Minute), updated.ScheduledAt)
	require.NotNil(t, updated.LastRetryAt)
}

func TestApplyPartialSuccessRetainsLog(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()

	cycle := []models.PublishResult{
		{Platform: "youtube", Success: true, PostID: "yt-1", AttemptedAt: fixedNow()},
		{Platform: "twitter", Error: "timeout", AttemptedAt: fixedNow()},
	}

	updated := policy.Apply(post, cycle)

	assert.Equal(t, models.PostStatusScheduled, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)

	// The succeeded target drops out of the pending set.
	pending := updated.PendingTargets()
	require.Len(t, pending, 1)
	assert.Equal(t, "twitter", pending[0].Platform)
}

func TestApplyRateLimitedOnlyKeepsBudget(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()
	post.RetryCount = 2

	cycle := []models.PublishResult{
		{Platform: "youtube", Success: true, PostID: "yt-1", AttemptedAt: fixedNow()},
		{Platform: "twitter", Error: ReasonRateLimited, AttemptedAt: fixedNow()},
	}

	updated := policy.Apply(post, cycle)

	assert.Equal(t, models.PostStatusScheduled, updated.Status)
	assert.Equal(t, 2, updated.RetryCount, "rate-limit cycles must not consume the retry budget")
	assert.Equal(t, fixedNow().Add(5*time.Minute), updated.ScheduledAt)
}

func TestApplyExhaustedBudgetFailsTerminally(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()
	post.RetryCount = 3
	post.MaxRetries = 3

	cycle := []models.PublishResult{
		{Platform: "youtube", Error: "upload rejected", AttemptedAt: fixedNow()},
		{Platform: "twitter", Error: "timeout", AttemptedAt: fixedNow()},
	}

	updated := policy.Apply(post, cycle)

	assert.Equal(t, models.PostStatusFailed, updated.Status)
	assert.Equal(t, 4, updated.RetryCount)
	assert.Nil(t, updated.PublishedAt)
}

func TestExplicitRetryRequiresFailedStatus(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()
	post.Status = models.PostStatusPublished

	_, err := policy.ExplicitRetry(post)
	assert.True(t, IsValidation(err))
}

func TestExplicitRetryExhaustedBudget(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()
	post.Status = models.PostStatusFailed
	post.RetryCount = 3
	post.MaxRetries = 3

	_, err := policy.ExplicitRetry(post)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestExplicitRetryReschedulesImmediately(t *testing.T) {
	policy := testPolicy()
	post := twoTargetPost()
	post.Status = models.PostStatusFailed
	post.RetryCount = 2

	updated, err := policy.ExplicitRetry(post)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, updated.Status)
	assert.Equal(t, fixedNow(), updated.ScheduledAt)
	assert.Equal(t, 2, updated.RetryCount, "explicit retry never resets the counter")
}
