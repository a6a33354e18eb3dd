package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminChecker reports whether a user currently holds the admin flag
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RequireAdmin lets the request through only when the stored profile of the
// caller is an admin. The role claim in the token is not trusted, so a
// revoked flag takes effect before the token expires.
func RequireAdmin(checker AdminChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				logger.Warn("User not found in context")
				RespondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), userID)
			if err != nil {
				logger.Error("Failed to check admin flag",
					zap.Error(err),
					zap.String("user_id", userID.String()),
				)
				RespondWithError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			if !isAdmin {
				logger.Warn("Non-admin user attempted to access admin endpoint",
					zap.String("user_id", userID.String()),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
