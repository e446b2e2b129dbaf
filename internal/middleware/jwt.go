package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/problem-bridge/internal/response"
	"github.com/stemsi/problem-bridge/internal/service"
)

// ContextKeyClaims holds the *service.Claims of an authenticated request.
const ContextKeyClaims = "claims"

// RequireJWT authenticates the request with the course backend's token.
// Browsers cannot set headers on WebSocket and EventSource requests, so the
// ?token= query is accepted as well.
func RequireJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := requestToken(c)
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims returns the claims set by RequireJWT, or nil.
func GetClaims(c *gin.Context) *service.Claims {
	claims, _ := c.Value(ContextKeyClaims).(*service.Claims)
	return claims
}

func requestToken(c *gin.Context) string {
	if scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}
