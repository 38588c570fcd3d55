package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-live/internal/biddingerrors"
	"auction-live/internal/repository"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// HandleServiceError maps err to a response and logs it at a level that
// matches its severity.
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no winning bid found"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction has ended"
	case errors.Is(err, biddingerrors.ErrAuctionHasBids):
		return http.StatusConflict, "auction already has bids"
	case errors.Is(err, biddingerrors.ErrUsernameTaken):
		return http.StatusConflict, "username already taken"
	case errors.Is(err, biddingerrors.ErrNotOwner):
		return http.StatusForbidden, "not authorized to modify this auction"
	case errors.Is(err, biddingerrors.ErrUnauthenticated),
		errors.Is(err, biddingerrors.ErrInvalidCredentials),
		errors.Is(err, biddingerrors.ErrInvalidToken):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrInvalidUser):
		return http.StatusBadRequest, "invalid user details"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// CurrentUserID returns the id the auth middleware stored on the context
func CurrentUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// Page converts query parameters to a repository page
func (q PageQuery) Page() repository.Page {
	return repository.Page{Skip: q.Skip, Limit: q.Limit}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
