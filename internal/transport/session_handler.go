package transport

import (
	"net/http"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/middleware"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SignUpRequest represents the sign-up request payload
type SignUpRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6"`
	FullName *string `json:"full_name" validate:"omitempty,max=120"`
}

// SignInRequest represents the sign-in request payload
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh token for refresh and sign-out
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SessionResponse is returned by sign-up and sign-in
type SessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Profile      ProfileResponse `json:"profile"`
}

// RefreshResponse represents the token refresh response
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// ProfileResponse is the public view of a profile
type ProfileResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	FullName    *string `json:"full_name"`
	DisplayName string  `json:"display_name"`
	IsAdmin     bool    `json:"is_admin"`
	CreatedAt   string  `json:"created_at"`
}

func newProfileResponse(p *domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:          p.ID.String(),
		Email:       p.Email,
		FullName:    p.FullName,
		DisplayName: p.DisplayName(),
		IsAdmin:     p.IsAdmin,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newSessionResponse(s *service.Session) SessionResponse {
	return SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		Profile:      newProfileResponse(s.Profile),
	}
}

// SessionHandler handles sign-up, sign-in, refresh and sign-out
type SessionHandler struct {
	sessions service.SessionService
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers the identity routes. limiter guards every route
// of the group against credential stuffing.
func (h *SessionHandler) RegisterRoutes(r chi.Router, authMiddleware, limiter func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(limiter)

		r.Post("/sign-up", h.SignUp)
		r.Post("/sign-in", h.SignIn)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/sign-out", h.SignOut)
		})
	})
}

// SignUp handles account creation and opens a session
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	session, err := h.sessions.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		respondError(w, h.logger, err, "failed to sign up")
		return
	}

	h.logger.Info("User signed up", zap.String("user_id", session.Profile.ID.String()))
	middleware.RespondWithJSON(w, http.StatusCreated, newSessionResponse(session))
}

// SignIn handles password authentication
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	session, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, h.logger, err, "failed to sign in")
		return
	}

	h.logger.Info("User signed in", zap.String("user_id", session.Profile.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, newSessionResponse(session))
}

// Refresh exchanges a refresh token for a new access token
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	accessToken, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, h.logger, err, "failed to refresh token")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{AccessToken: accessToken})
}

// SignOut revokes the refresh token and closes the caller's live feeds
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	if err := h.sessions.SignOut(r.Context(), req.RefreshToken); err != nil {
		respondError(w, h.logger, err, "failed to sign out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
