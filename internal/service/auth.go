package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/pkg/util"
)

const sessionTTL = 12 * time.Hour

// AuthService gates the operator dashboard (admin stats) behind TOTP.
// Tenant identity for the API itself arrives from the gateway via the
// X-User-ID header.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string

	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewAuthService(logger *zap.Logger, totpSecret string) *AuthService {
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
		sessions:   make(map[string]time.Time),
		now:        time.Now,
	}
}

func (a *AuthService) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Beacon Dashboard",
		AccountName: "admin",
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key.Secret(), nil
}

// Login validates the TOTP code and creates a dashboard session.
func (a *AuthService) Login(code string) (string, bool) {
	if !totp.Validate(code, a.totpSecret) {
		a.logger.Warn("TOTP validation failed")
		return "", false
	}

	session := util.RandomToken(32)
	a.mu.Lock()
	a.sessions[session] = a.now().Add(sessionTTL)
	a.mu.Unlock()

	a.logger.Info("Dashboard login successful")
	return session, true
}

func (a *AuthService) ValidSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.sessions[token]
	if !ok {
		return false
	}
	if a.now().After(expiry) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// AdminMiddleware guards dashboard routes with the session cookie.
func (a *AuthService) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie("auth_token")
		if err != nil || !a.ValidSession(token) {
			c.JSON(401, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
