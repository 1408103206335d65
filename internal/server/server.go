package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service"
	"github.com/beaconhq/beacon/internal/service/publisher"
	"github.com/beaconhq/beacon/internal/service/publisher/facebook"
	"github.com/beaconhq/beacon/internal/service/publisher/instagram"
	"github.com/beaconhq/beacon/internal/service/publisher/tiktok"
	"github.com/beaconhq/beacon/internal/service/publisher/twitter"
	"github.com/beaconhq/beacon/internal/service/publisher/youtube"
)

// SchedulingService is the post lifecycle surface exposed over HTTP.
type SchedulingService interface {
	Create(ctx context.Context, userID string, post *models.ScheduledPost) error
	List(ctx context.Context, userID string) ([]models.ScheduledPost, error)
	Upcoming(ctx context.Context, userID string) ([]models.ScheduledPost, error)
	Stats(ctx context.Context, userID string) (*service.PostStats, error)
	Get(ctx context.Context, userID, id string) (*models.ScheduledPost, error)
	Update(ctx context.Context, userID, id string, update service.PostUpdate) (*models.ScheduledPost, error)
	Cancel(ctx context.Context, userID, id string) (*models.ScheduledPost, error)
	Retry(ctx context.Context, userID, id string) (*models.ScheduledPost, error)
	Delete(ctx context.Context, userID, id string) error
}

// OAuthService is the connection flow surface exposed over HTTP.
type OAuthService interface {
	AuthorizeURL(ctx context.Context, userID, platform string) (string, error)
	Callback(ctx context.Context, platform, code, state string) error
	Refresh(ctx context.Context, userID, platform string) (*models.PlatformConnection, error)
	Revoke(ctx context.Context, userID, platform string) error
	Connections(ctx context.Context, userID string) ([]models.PlatformConnection, error)
}

// Publisher triggers an immediate synchronous publish cycle.
type Publisher interface {
	PublishNow(ctx context.Context, userID, postID string) (*models.ScheduledPost, error)
}

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Scheduling SchedulingService
	OAuth      OAuthService
	Publisher  Publisher
	Monitoring *service.MonitoringService
	Auth       *service.AuthService

	Dispatcher   *service.Dispatcher
	StatsUpdater *service.StatsUpdater
	stateSweeper *service.MemoryStateCache
	sweepEvery   time.Duration
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	backoff, err := time.ParseDuration(cfg.Dispatcher.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("invalid retry backoff: %w", err)
	}
	stateTTL, err := time.ParseDuration(cfg.OAuth.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid state TTL: %w", err)
	}
	sweepEvery, err := time.ParseDuration(cfg.OAuth.SweepInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep interval: %w", err)
	}
	statsInterval, err := time.ParseDuration(cfg.Dispatcher.StatsInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid stats interval: %w", err)
	}

	// Initialize services
	posts := service.NewPostStore(db)
	conns := service.NewConnectionStore(db)
	tokens := service.NewTokenManager(conns, service.OAuthRefreshFunc(registry), logger)
	limiter := service.NewRateLimiter(cfg.Dispatcher.RateLimitPerHour, time.Hour)
	monitoring := service.NewMonitoringService(db, logger)
	notifier := service.NewLogNotifier(logger)

	dispatcher, err := service.NewDispatcher(&cfg.Dispatcher, logger, posts, conns,
		tokens, limiter, registry, notifier, monitoring)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       gin.New(),
		Logger:       logger,
		Publisher:    dispatcher,
		Monitoring:   monitoring,
		Auth:         service.NewAuthService(logger, cfg.Dashboard.TOTPSecret),
		Dispatcher:   dispatcher,
		StatsUpdater: service.NewStatsUpdater(monitoring, logger, statsInterval),
		sweepEvery:   sweepEvery,
	}

	var states service.StateCache
	if cfg.Redis.Enabled {
		states = service.NewRedisStateCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		memory := service.NewMemoryStateCache(logger)
		srv.stateSweeper = memory
		states = memory
	}

	srv.Scheduling = service.NewSchedulingService(posts, service.NewRetryPolicy(backoff), logger)
	srv.OAuth = service.NewOAuthService(conns, states, registry, tokens, stateTTL, logger)

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*publisher.Manager, error) {
	registry := publisher.NewManager(logger)

	adapters := []struct {
		cfg     config.PlatformAppConfig
		adapter publisher.Adapter
	}{
		{cfg.Platforms.YouTube, youtube.NewPublisher(cfg.Platforms.YouTube, logger)},
		{cfg.Platforms.Instagram, instagram.NewPublisher(cfg.Platforms.Instagram, logger)},
		{cfg.Platforms.TikTok, tiktok.NewPublisher(cfg.Platforms.TikTok, logger)},
		{cfg.Platforms.Twitter, twitter.NewPublisher(cfg.Platforms.Twitter, logger)},
		{cfg.Platforms.Facebook, facebook.NewPublisher(cfg.Platforms.Facebook, logger)},
	}

	for _, entry := range adapters {
		if !entry.cfg.Enabled {
			continue
		}
		if err := registry.Register(entry.adapter); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		scheduling := api.Group("/scheduling", s.requireUser())
		{
			scheduling.POST("", s.handleCreatePost)
			scheduling.GET("", s.handleListPosts)
			scheduling.GET("/upcoming", s.handleUpcomingPosts)
			scheduling.GET("/stats", s.handlePostStats)
			scheduling.GET("/:id", s.handleGetPost)
			scheduling.PUT("/:id", s.handleUpdatePost)
			scheduling.DELETE("/:id", s.handleDeletePost)
			scheduling.POST("/:id/cancel", s.handleCancelPost)
			scheduling.POST("/:id/retry", s.handleRetryPost)
			scheduling.POST("/:id/publish-now", s.handlePublishNow)
		}

		oauth := api.Group("/oauth")
		{
			oauth.GET("/connections", s.requireUser(), s.handleListConnections)
			oauth.GET("/:platform/authorize", s.requireUser(), s.handleAuthorize)
			oauth.GET("/:platform/callback", s.handleCallback)
			oauth.POST("/:platform/refresh", s.requireUser(), s.handleRefreshConnection)
			oauth.DELETE("/:platform/revoke", s.requireUser(), s.handleRevokeConnection)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", s.handleAdminLogin)
			admin.GET("/stats", s.Auth.AdminMiddleware(), s.handleAdminStats)
		}
	}
}

// requireUser resolves the tenant from the gateway-provided header.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func (s *Server) userID(c *gin.Context) string {
	return c.GetString("userID")
}

func (s *Server) Start(ctx context.Context) error {
	// Start dispatcher
	if err := s.Dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	s.StatsUpdater.Start(ctx)
	if s.stateSweeper != nil {
		s.stateSweeper.StartSweeper(ctx, s.sweepEvery)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background loops first
	s.Dispatcher.Stop()
	s.StatsUpdater.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
