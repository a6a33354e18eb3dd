package transport

import (
	"errors"
	"net/http"

	"perfume-store/internal/middleware"
	"perfume-store/internal/repository"
	"perfume-store/internal/service"

	"go.uber.org/zap"
)

// statusFor maps a service or repository error onto an HTTP status and a
// message safe to show the client. Unknown errors are 500s.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid refresh token"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "refresh token expired"

	case errors.Is(err, repository.ErrPerfumeNotFound),
		errors.Is(err, repository.ErrProfileNotFound),
		errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrReviewNotFound):
		return http.StatusNotFound, rootMessage(err)

	case errors.Is(err, repository.ErrProfileAlreadyExists),
		errors.Is(err, service.ErrPerfumeUnavailable),
		errors.Is(err, service.ErrConfirmationRequired):
		return http.StatusConflict, rootMessage(err)

	case errors.Is(err, service.ErrQuantityBelowMinimum),
		errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, repository.ErrInvalidQuantity),
		errors.Is(err, repository.ErrInvalidPerfume):
		return http.StatusUnprocessableEntity, rootMessage(err)
	}
	return http.StatusInternalServerError, "internal server error"
}

// rootMessage is the text of the innermost wrapped error
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// respondError writes the error response for err. Validation failures carry
// their field details; 5xx responses hide the cause and log it.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, msg string) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		middleware.RespondWithValidationErrors(w, middleware.FieldErrors(verr.Fields))
		return
	}

	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		message = msg
	} else {
		logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	middleware.RespondWithError(w, status, message)
}
