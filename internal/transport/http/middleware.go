package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
)

// Keys under which AuthMiddleware stores the caller's identity.
const (
	ContextKeyBuddyID = "buddy_id"
	ContextKeyNick    = "nick"
	ContextKeyIsGuest = "is_guest"
)

var (
	errNoAuthHeader  = errors.New("missing authorization header")
	errBadAuthHeader = errors.New("invalid authorization header format")
)

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errBadAuthHeader
	}
	return token, nil
}

// AuthMiddleware rejects requests without a valid buddy token and stores the
// buddy identity in the gin context.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyBuddyID, claims.BuddyID)
		c.Set(ContextKeyNick, claims.Nick)
		c.Set(ContextKeyIsGuest, claims.IsGuest)
		c.Next()
	}
}

// LoggerMiddleware logs each request once it is served. Health probes log at
// debug level.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Info()
		if c.Request.URL.Path == "/health" {
			ev = logger.Debug()
		}
		if nick := c.GetString(ContextKeyNick); nick != "" {
			ev = ev.Str("nick", nick)
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
