package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArrayValueAndScan(t *testing.T) {
	arr := StringArray{"https://cdn.example/a.mp4", "https://cdn.example/b.jpg"}

	value, err := arr.Value()
	require.NoError(t, err)

	var scanned StringArray
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, arr, scanned)
}

func TestStringArrayScanEmpty(t *testing.T) {
	var scanned StringArray
	require.NoError(t, scanned.Scan("{}"))
	assert.Empty(t, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
}

func TestPlatformTargetsRoundTrip(t *testing.T) {
	targets := PlatformTargets{
		{Platform: "youtube", Overrides: map[string]string{"privacy": "unlisted"}},
		{Platform: "twitter"},
	}

	value, err := targets.Value()
	require.NoError(t, err)

	var scanned PlatformTargets
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, targets, scanned)
}

func TestPublishResultsRoundTripPreservesOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	results := PublishResults{
		{Platform: "youtube", Error: "timeout", AttemptedAt: base},
		{Platform: "youtube", Success: true, PostID: "yt-1", AttemptedAt: base.Add(5 * time.Minute)},
		{Platform: "twitter", Error: "rate_limited", AttemptedAt: base.Add(5 * time.Minute)},
	}

	value, err := results.Value()
	require.NoError(t, err)

	var scanned PublishResults
	require.NoError(t, scanned.Scan(value))
	require.Len(t, scanned, 3)
	for i := range results {
		assert.Equal(t, results[i].Platform, scanned[i].Platform)
		assert.Equal(t, results[i].Success, scanned[i].Success)
		assert.Equal(t, results[i].Error, scanned[i].Error)
		assert.True(t, results[i].AttemptedAt.Equal(scanned[i].AttemptedAt))
	}
}

func TestPublishResultsLatest(t *testing.T) {
	results := PublishResults{
		{Platform: "youtube", Error: "timeout"},
		{Platform: "youtube", Success: true, PostID: "yt-1"},
	}

	latest, ok := results.Latest("youtube")
	require.True(t, ok)
	assert.True(t, latest.Success)
	assert.Equal(t, "yt-1", latest.PostID)

	_, ok = results.Latest("twitter")
	assert.False(t, ok)
}

func TestPendingTargets(t *testing.T) {
	post := ScheduledPost{
		Targets: PlatformTargets{
			{Platform: "youtube"},
			{Platform: "twitter"},
			{Platform: "tiktok"},
		},
		PublishResults: PublishResults{
			{Platform: "youtube", Success: true},
			{Platform: "twitter", Error: "timeout"},
		},
	}

	pending := post.PendingTargets()
	require.Len(t, pending, 2)
	assert.Equal(t, "twitter", pending[0].Platform)
	assert.Equal(t, "tiktok", pending[1].Platform)
}

func TestPendingTargetsAfterLaterFailure(t *testing.T) {
	// The latest result per platform decides; an old failure followed by
	// a success means done.
	post := ScheduledPost{
		Targets: PlatformTargets{{Platform: "youtube"}},
		PublishResults: PublishResults{
			{Platform: "youtube", Error: "timeout"},
			{Platform: "youtube", Success: true},
		},
	}

	assert.Empty(t, post.PendingTargets())
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	post := ScheduledPost{
		Title:       "Launch",
		Targets:     PlatformTargets{{Platform: "youtube"}},
		ScheduledAt: now.Add(time.Hour),
		Status:      PostStatusScheduled,
	}
	assert.NoError(t, post.Validate(now))

	missingTitle := post
	missingTitle.Title = "   "
	assert.Error(t, missingTitle.Validate(now))

	noTargets := post
	noTargets.Targets = nil
	assert.Error(t, noTargets.Validate(now))

	past := post
	past.ScheduledAt = now.Add(-time.Minute)
	assert.Error(t, past.Validate(now))

	// Drafts may carry a past schedule until they are actually scheduled.
	pastDraft := past
	pastDraft.Status = PostStatusDraft
	assert.NoError(t, pastDraft.Validate(now))
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, PostStatusPublished.IsTerminal())
	assert.True(t, PostStatusCancelled.IsTerminal())
	assert.False(t, PostStatusFailed.IsTerminal())
	assert.False(t, PostStatusScheduled.IsTerminal())
	assert.False(t, PostStatusProcessing.IsTerminal())
}

func TestConnectionExpiryHelpers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	conn := PlatformConnection{}
	assert.False(t, conn.Expired(now))
	assert.False(t, conn.NeedsRefresh(now, 5*time.Minute))

	soon := now.Add(2 * time.Minute)
	conn.ExpiresAt = &soon
	assert.False(t, conn.Expired(now))
	assert.True(t, conn.NeedsRefresh(now, 5*time.Minute))

	later := now.Add(time.Hour)
	conn.ExpiresAt = &later
	assert.False(t, conn.NeedsRefresh(now, 5*time.Minute))

	past := now.Add(-time.Minute)
	conn.ExpiresAt = &past
	assert.True(t, conn.Expired(now))
	assert.True(t, conn.NeedsRefresh(now, 5*time.Minute))
}
