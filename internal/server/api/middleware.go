package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const (
	ctxKeyUser        = "authUser"
	ctxKeyAccessToken = "accessToken"
)

// authRequired resolves the bearer token to a user and stores both in the
// request context. The raw token is kept for logout, which revokes the
// session it belongs to.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		user, err := s.sessions.GetUserByAccessToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid or expired token"})
			return
		}

		c.Set(ctxKeyUser, user)
		c.Set(ctxKeyAccessToken, token)
		c.Next()
	}
}

// adminRequired allows only users with the admin role; run after
// authRequired.
func (s *Server) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "admin role required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxKeyUser).(*models.User)
}

func currentAccessToken(c *gin.Context) string {
	return c.MustGet(ctxKeyAccessToken).(string)
}
