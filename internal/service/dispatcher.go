package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service/publisher"
)

// Dispatcher is the scheduling loop. Each tick it finds due posts,
// claims them, runs the publish-attempt protocol per platform target
// and applies the retry policy to the outcome.
type Dispatcher struct {
	cfg        *config.DispatcherConfig
	logger     *zap.Logger
	posts      PostStore
	conns      ConnectionStore
	tokens     *TokenManager
	limiter    *RateLimiter
	retry      RetryPolicy
	registry   *publisher.Manager
	notifier   Notifier
	monitoring Monitor

	connLocks *KeyedMutex
	grace     time.Duration
	workers   int

	ticker   *time.Ticker
	stopCh   chan struct{}
	inFlight atomic.Bool
	now      func() time.Time
}

func NewDispatcher(
	cfg *config.DispatcherConfig,
	logger *zap.Logger,
	posts PostStore,
	conns ConnectionStore,
	tokens *TokenManager,
	limiter *RateLimiter,
	registry *publisher.Manager,
	notifier Notifier,
	monitoring Monitor,
) (*Dispatcher, error) {
	grace, err := time.ParseDuration(cfg.ProcessingGrace)
	if err != nil {
		return nil, err
	}
	backoff, err := time.ParseDuration(cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:        cfg,
		logger:     logger,
		posts:      posts,
		conns:      conns,
		tokens:     tokens,
		limiter:    limiter,
		retry:      NewRetryPolicy(backoff),
		registry:   registry,
		notifier:   notifier,
		monitoring: monitoring,
		connLocks:  NewKeyedMutex(),
		grace:      grace,
		workers:    cfg.Workers,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}, nil
}

func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.cfg.Enabled {
		d.logger.Info("Dispatcher is disabled")
		return nil
	}

	interval, err := time.ParseDuration(d.cfg.TickInterval)
	if err != nil {
		d.logger.Error("Invalid tick interval", zap.String("interval", d.cfg.TickInterval), zap.Error(err))
		return err
	}

	d.logger.Info("Starting dispatcher", zap.String("tick_interval", d.cfg.TickInterval))

	d.ticker = time.NewTicker(interval)

	// Run first tick immediately to pick up posts that came due while
	// the service was down
	go func() {
		d.runTick(ctx)
	}()

	go func() {
		for {
			select {
			case <-d.ticker.C:
				d.runTick(ctx)
			case <-d.stopCh:
				d.logger.Info("Dispatcher stopped")
				return
			case <-ctx.Done():
				d.logger.Info("Dispatcher context cancelled")
				return
			}
		}
	}()

	return nil
}

func (d *Dispatcher) Stop() {
	if d.ticker != nil {
		d.ticker.Stop()
	}
	close(d.stopCh)
	d.logger.Info("Dispatcher shutdown completed")
}

// runTick executes one dispatch cycle. Ticks never overlap: a tick due
// while the previous one still runs is skipped.
func (d *Dispatcher) runTick(ctx context.Context) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.logger.Warn("Previous tick still running, skipping")
		return
	}
	defer d.inFlight.Store(false)

	start := d.now()
	due, err := d.posts.FindDue(ctx, start, d.grace)
	if err != nil {
		d.logger.Error("Failed to query due posts", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	d.logger.Info("Dispatching due posts", zap.Int("count", len(due)))

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for _, post := range due {
		post := post
		g.Go(func() error {
			d.dispatchPost(ctx, post)
			return nil
		})
	}
	g.Wait()

	d.logger.Info("Dispatch tick completed",
		zap.Int("count", len(due)),
		zap.Duration("duration", time.Since(start)))
}

func (d *Dispatcher) dispatchPost(ctx context.Context, post models.ScheduledPost) {
	claimed, err := d.posts.Claim(ctx, post.ID, d.now(), d.grace)
	if err != nil {
		d.logger.Error("Failed to claim post", zap.String("post_id", post.ID), zap.Error(err))
		return
	}
	if !claimed {
		// Another cycle owns the post
		return
	}

	post.Status = models.PostStatusProcessing
	if _, err := d.runCycle(ctx, post); err != nil {
		d.logger.Error("Dispatch cycle failed", zap.String("post_id", post.ID), zap.Error(err))
	}
}

// runCycle runs the publish-attempt protocol for every pending target
// of a claimed post, then applies the retry policy and persists the
// result. A store failure leaves the post in processing; the next
// tick's stale-claim recovery picks it up.
func (d *Dispatcher) runCycle(ctx context.Context, post models.ScheduledPost) (models.ScheduledPost, error) {
	var cycle []models.PublishResult
	for _, target := range post.PendingTargets() {
		result := d.attemptTarget(ctx, &post, target)
		cycle = append(cycle, result)
		d.monitoring.RecordPublishOutcome(result)
	}

	updated := d.retry.Apply(post, cycle)
	if err := d.posts.Update(ctx, &updated); err != nil {
		return post, err
	}

	switch updated.Status {
	case models.PostStatusPublished:
		d.logger.Info("Post published to all targets",
			zap.String("post_id", updated.ID),
			zap.Int("targets", len(updated.Targets)))
		d.notifier.PostPublished(ctx, &updated)
	case models.PostStatusFailed:
		d.monitoring.RecordError("ERROR", "dispatcher", "Post exceeded retry budget",
			"post transitioned to terminal failed state",
			WithPost(updated.ID))
		d.notifier.PostFailed(ctx, &updated)
	case models.PostStatusScheduled:
		d.logger.Info("Post rescheduled",
			zap.String("post_id", updated.ID),
			zap.Time("next_attempt", updated.ScheduledAt),
			zap.Int("retry_count", updated.RetryCount))
	}

	return updated, nil
}

// attemptTarget runs the per-target publish protocol: connection →
// token → quota → adapter. Provider errors are contained here and
// never abort the cycle for other targets.
func (d *Dispatcher) attemptTarget(ctx context.Context, post *models.ScheduledPost, target models.PlatformTarget) models.PublishResult {
	result := models.PublishResult{
		Platform:    target.Platform,
		AttemptedAt: d.now(),
	}

	conn, err := d.conns.Get(ctx, post.UserID, target.Platform)
	if err != nil || conn.Status == models.ConnectionStatusRevoked {
		result.Error = ReasonNotConnected
		return result
	}

	// All token-touching work for one connection is serialized, so
	// concurrent posts sharing it cannot race a refresh.
	d.connLocks.Lock(conn.ID)
	defer d.connLocks.Unlock(conn.ID)

	conn, err = d.tokens.EnsureValid(ctx, conn)
	if err != nil {
		var refreshErr *TokenRefreshError
		if errors.As(err, &refreshErr) {
			result.Error = ReasonTokenRefresh
		} else {
			result.Error = ReasonNotConnected
		}
		return result
	}

	if !d.limiter.Allow(conn.ID) {
		result.Error = ReasonRateLimited
		return result
	}

	adapter, err := d.registry.Get(target.Platform)
	if err != nil {
		result.Error = ReasonNotSupported
		return result
	}

	res, err := adapter.Publish(ctx, publisher.FromPost(post, target), conn.AccessToken)
	if err != nil {
		d.logger.Warn("Publish attempt failed",
			zap.String("post_id", post.ID),
			zap.String("platform", target.Platform),
			zap.Error(err))
		d.monitoring.RecordError("ERROR", "dispatcher", "Publish attempt failed", err.Error(),
			WithPlatform(target.Platform),
			WithPost(post.ID))
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.PostID = res.PostID
	result.PostURL = res.PostURL

	now := d.now()
	conn.TotalPublished++
	conn.LastPublishedAt = &now
	if err := d.conns.Update(ctx, conn); err != nil {
		d.logger.Warn("Failed to update connection counters",
			zap.String("connection_id", conn.ID),
			zap.Error(err))
	}

	return result
}

// PublishNow bypasses the schedule and runs the publish-attempt
// protocol for the post immediately.
func (d *Dispatcher) PublishNow(ctx context.Context, userID, postID string) (*models.ScheduledPost, error) {
	post, err := d.posts.ByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrForbidden
	}

	switch post.Status {
	case models.PostStatusPublished:
		return nil, NewValidationError("post is already published")
	case models.PostStatusCancelled:
		return nil, NewValidationError("post is cancelled")
	case models.PostStatusProcessing:
		return nil, NewValidationError("post is being published")
	}

	now := d.now()
	post.Status = models.PostStatusScheduled
	post.ScheduledAt = now
	if err := d.posts.Update(ctx, post); err != nil {
		return nil, err
	}

	claimed, err := d.posts.Claim(ctx, post.ID, now, d.grace)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, NewValidationError("post is being published")
	}

	post.Status = models.PostStatusProcessing
	updated, err := d.runCycle(ctx, *post)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
