package transport

import (
	"errors"
	"net/http"

	"perfume-store/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// decode reads and validates a JSON body, answering 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	logger.Debug("Request validation failed", zap.Error(err), zap.String("path", r.URL.Path))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}
	if errors.Is(err, middleware.ErrMalformedBody) {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request")
	return false
}

// currentUser returns the authenticated caller, answering 401 when there is none
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	return userID, true
}

// optionalUser returns the caller or uuid.Nil for anonymous requests
func optionalUser(r *http.Request) uuid.UUID {
	userID, _ := middleware.GetUserID(r.Context())
	return userID
}

// idParam parses a UUID route parameter, answering 400 when it is malformed
func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
