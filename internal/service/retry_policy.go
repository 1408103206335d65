package service

import (
	"time"

	"github.com/beaconhq/beacon/internal/models"
)

// DefaultRetryBackoff is the delay before a failed post is
// rescheduled.
const DefaultRetryBackoff = 5 * time.Minute

// RetryPolicy decides whether a post that failed during a dispatch
// cycle is retried or terminally failed. Transitions are pure: the
// policy takes the post by value and returns the next state, the
// caller persists it.
type RetryPolicy struct {
	Backoff time.Duration
	Now     func() time.Time
}

func NewRetryPolicy(backoff time.Duration) RetryPolicy {
	return RetryPolicy{Backoff: backoff, Now: time.Now}
}

// Apply appends the cycle's results to the post's log and computes the
// next status.
//
// All targets succeeded        → published.
// Only rate-limited failures   → rescheduled, retry budget untouched.
// Any hard failure             → retryCount+1 (once per cycle); over
//                                maxRetries is terminal failed, else
//                                rescheduled after the backoff.
func (p RetryPolicy) Apply(post models.ScheduledPost, cycle []models.PublishResult) models.ScheduledPost {
	now := p.Now()
	post.PublishResults = append(post.PublishResults, cycle...)
	post.ProcessingAt = nil

	if len(post.PendingTargets()) == 0 {
		post.Status = models.PostStatusPublished
		post.PublishedAt = &now
		return post
	}

	hard := false
	for _, result := range cycle {
		if !result.Success && result.Error != ReasonRateLimited {
			hard = true
			break
		}
	}

	if !hard {
		// Rate-limited targets wait out the window without penalty.
		post.Status = models.PostStatusScheduled
		post.ScheduledAt = now.Add(p.Backoff)
		return post
	}

	post.RetryCount++
	post.LastRetryAt = &now

	if post.RetryCount > post.MaxRetries {
		post.Status = models.PostStatusFailed
		return post
	}

	post.Status = models.PostStatusScheduled
	post.ScheduledAt = now.Add(p.Backoff)
	return post
}

// ExplicitRetry handles the user-invoked retry action. retryCount is a
// cumulative post-level counter and is never reset; the same bound is
// re-checked.
func (p RetryPolicy) ExplicitRetry(post models.ScheduledPost) (models.ScheduledPost, error) {
	if post.Status != models.PostStatusFailed {
		return post, NewValidationError("only failed posts can be retried")
	}
	if post.RetryCount >= post.MaxRetries {
		return post, ErrMaxRetriesExceeded
	}

	post.Status = models.PostStatusScheduled
	post.ScheduledAt = p.Now()
	return post, nil
}
