package transport

import (
	"net/http"

	"perfume-store/internal/middleware"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UpdateProfileRequest sets the display name; an empty name clears it
type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=120"`
}

// ProfileHandler serves the caller's own profile and the store contact links
type ProfileHandler struct {
	sessions service.SessionService
	links    service.CheckoutLinks
	logger   *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(sessions service.SessionService, links service.CheckoutLinks, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		sessions: sessions,
		links:    links,
		logger:   logger,
	}
}

func (h *ProfileHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/api/contact", h.Contact)

	r.Route("/api/profile", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetProfile)
		r.Put("/", h.UpdateProfile)
	})
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.sessions.CurrentProfile(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to get profile")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newProfileResponse(profile))
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	profile, err := h.sessions.UpdateProfile(r.Context(), userID, req.FullName)
	if err != nil {
		respondError(w, h.logger, err, "failed to update profile")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newProfileResponse(profile))
}

// Contact returns the static WhatsApp and Instagram links
func (h *ProfileHandler) Contact(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.links.Contact())
}
