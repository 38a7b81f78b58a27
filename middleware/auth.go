package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

const (
	tenantIDKey = "tenant_id"
	userIDKey   = "user_id"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService *services.AuthService
}

func NewAuthMiddleware(baseLog *logger.Logger, authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: baseLog.With("middleware", "AuthMiddleware"), authService: authService}
}

// RequireTenant rejects requests without a valid token and stores the tenant
// claim for the handlers. Clients never pass the tenant in the body.
func (am *AuthMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}
		claims, err := am.authService.ValidateToken(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "code": "unauthorized"})
			return
		}
		c.Set(tenantIDKey, claims.TenantID)
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// TenantID returns the tenant set by RequireTenant, or 0.
func TenantID(c *gin.Context) int64 {
	return c.GetInt64(tenantIDKey)
}

func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// extractToken prefers the Authorization header and falls back to the token query
// parameter, which browsers need for WebSocket upgrades.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}
