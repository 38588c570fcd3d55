package server

import (
	"context"
	"strings"
	"time"

	"auction-live/internal/biddingerrors"
	"auction-live/internal/models"
	"auction-live/services/bidding/helpers"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if userID, ok := helpers.CurrentUserID(c); ok {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

// TokenAuthenticator resolves a bearer token to a user
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller's id on the context for the handlers.
func AuthMiddleware(auth TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			helpers.HandleServiceError(c, "AuthMiddleware", biddingerrors.ErrUnauthenticated, map[string]any{"path": c.Request.URL.Path})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			helpers.HandleServiceError(c, "AuthMiddleware", err, map[string]any{"path": c.Request.URL.Path})
			return
		}

		c.Set(helpers.UserIDKey, user.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
