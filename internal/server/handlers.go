package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/service"
)

type createPostRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	ContentType string                 `json:"content_type"`
	MediaFiles  []string               `json:"media_files"`
	Platforms   models.PlatformTargets `json:"platforms" binding:"required"`
	ScheduledAt time.Time              `json:"scheduled_at" binding:"required"`
	Timezone    string                 `json:"timezone"`
	Status      string                 `json:"status"`
	MaxRetries  int                    `json:"max_retries"`
}

func (s *Server) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post := &models.ScheduledPost{
		Title:       req.Title,
		Description: req.Description,
		ContentType: req.ContentType,
		MediaFiles:  models.StringArray(req.MediaFiles),
		Targets:     req.Platforms,
		ScheduledAt: req.ScheduledAt,
		Timezone:    req.Timezone,
		Status:      models.PostStatus(req.Status),
		MaxRetries:  req.MaxRetries,
	}

	if err := s.Scheduling.Create(c.Request.Context(), s.userID(c), post); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, post)
}

func (s *Server) handleListPosts(c *gin.Context) {
	posts, err := s.Scheduling.List(c.Request.Context(), s.userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) handleUpcomingPosts(c *gin.Context) {
	posts, err := s.Scheduling.Upcoming(c.Request.Context(), s.userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) handlePostStats(c *gin.Context) {
	stats, err := s.Scheduling.Stats(c.Request.Context(), s.userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetPost(c *gin.Context) {
	post, err := s.Scheduling.Get(c.Request.Context(), s.userID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	var update service.PostUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := s.Scheduling.Update(c.Request.Context(), s.userID(c), c.Param("id"), update)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleDeletePost(c *gin.Context) {
	if err := s.Scheduling.Delete(c.Request.Context(), s.userID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (s *Server) handleCancelPost(c *gin.Context) {
	post, err := s.Scheduling.Cancel(c.Request.Context(), s.userID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleRetryPost(c *gin.Context) {
	post, err := s.Scheduling.Retry(c.Request.Context(), s.userID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handlePublishNow(c *gin.Context) {
	post, err := s.Publisher.PublishNow(c.Request.Context(), s.userID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleListConnections(c *gin.Context) {
	conns, err := s.OAuth.Connections(c.Request.Context(), s.userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

func (s *Server) handleAuthorize(c *gin.Context) {
	authURL, err := s.OAuth.AuthorizeURL(c.Request.Context(), s.userID(c), c.Param("platform"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorize_url": authURL})
}

// handleCallback lands the provider redirect. The browser is sent back
// to the dashboard with either ?success=<platform> or ?error=<reason>.
func (s *Server) handleCallback(c *gin.Context) {
	platform := c.Param("platform")

	err := s.OAuth.Callback(c.Request.Context(), platform, c.Query("code"), c.Query("state"))
	if err != nil {
		reason := service.OAuthReasonConnectionFailed
		var oauthErr *service.OAuthError
		if errors.As(err, &oauthErr) {
			reason = oauthErr.Reason
		}
		s.Logger.Warn("OAuth callback failed",
			zap.String("platform", platform),
			zap.String("reason", reason),
			zap.Error(err))
		c.Redirect(http.StatusFound, s.dashboardRedirect("error", reason))
		return
	}

	c.Redirect(http.StatusFound, s.dashboardRedirect("success", platform))
}

func (s *Server) dashboardRedirect(key, value string) string {
	return s.Config.OAuth.DashboardURL + "?" + key + "=" + url.QueryEscape(value)
}

func (s *Server) handleRefreshConnection(c *gin.Context) {
	conn, err := s.OAuth.Refresh(c.Request.Context(), s.userID(c), c.Param("platform"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (s *Server) handleRevokeConnection(c *gin.Context) {
	if err := s.OAuth.Revoke(c.Request.Context(), s.userID(c), c.Param("platform")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Platform disconnected"})
}

type adminLoginRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleAdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, ok := s.Auth.Login(req.Code)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid code"})
		return
	}

	c.SetCookie("auth_token", session, int((12 * time.Hour).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

func (s *Server) handleAdminStats(c *gin.Context) {
	days := 7
	dispatch, platforms, err := s.Monitoring.Summary(days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dispatch":  dispatch,
		"platforms": platforms,
	})
}

// respondError maps service errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var tokenErr *service.TokenRefreshError

	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMaxRetriesExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrMaxRetriesExceeded.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, service.ErrNotConnected):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrNotConnected.Error()})
	case errors.As(err, &tokenErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
