package transport

import (
	"errors"
	"net/http"
	"strings"

	"perfume-store/internal/domain"
	"perfume-store/internal/middleware"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConfirmationParam carries the deletion confirmation token
const ConfirmationParam = "confirmation"

// formSlack is the room an editor form needs on top of the image itself
const formSlack = 64 << 10

// AdminHandler serves catalog administration and admin flags
type AdminHandler struct {
	admin   service.AdminService
	maxForm int64
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. Editor forms larger than
// imageMaxBytes plus the text fields are refused before they are parsed.
func NewAdminHandler(admin service.AdminService, imageMaxBytes int64, logger *zap.Logger) *AdminHandler {
	if imageMaxBytes <= 0 {
		imageMaxBytes = service.DefaultImageMaxBytes
	}
	return &AdminHandler{
		admin:   admin,
		maxForm: imageMaxBytes + formSlack,
		logger:  logger,
	}
}

// RegisterRoutes registers the admin routes behind authentication and the
// stored admin flag
func (h *AdminHandler) RegisterRoutes(r chi.Router, authMiddleware, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(requireAdmin)

		r.Get("/perfumes", h.ListPerfumes)
		r.Post("/perfumes", h.CreatePerfume)
		r.Put("/perfumes/{id}", h.UpdatePerfume)
		r.Post("/perfumes/{id}/delete-requests", h.RequestDeletion)
		r.Delete("/perfumes/{id}", h.DeletePerfume)

		r.Get("/profiles", h.ListProfiles)
		r.Post("/profiles/{id}/toggle-admin", h.ToggleAdmin)
	})
}

func (h *AdminHandler) ListPerfumes(w http.ResponseWriter, r *http.Request) {
	perfumes, err := h.admin.ListPerfumes(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to list perfumes")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, perfumes)
}

// CreatePerfume handles the multipart editor form. The image is required.
func (h *AdminHandler) CreatePerfume(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	input, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	perfume, err := h.admin.CreatePerfume(r.Context(), adminID, input)
	if err != nil {
		respondError(w, h.logger, err, "failed to create perfume")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, perfume)
}

// UpdatePerfume handles the editor form for an existing perfume. Without an
// image file the current image is kept.
func (h *AdminHandler) UpdatePerfume(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	input, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	perfume, err := h.admin.UpdatePerfume(r.Context(), adminID, id, input)
	if err != nil {
		respondError(w, h.logger, err, "failed to update perfume")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, perfume)
}

// RequestDeletion issues the confirmation token the delete call must echo
func (h *AdminHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	req, err := h.admin.RequestDeletion(r.Context(), adminID, id)
	if err != nil {
		respondError(w, h.logger, err, "failed to request deletion")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, req)
}

// DeletePerfume deletes a perfume given a live confirmation token
func (h *AdminHandler) DeletePerfume(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	token := r.URL.Query().Get(ConfirmationParam)
	if err := h.admin.ConfirmDeletion(r.Context(), adminID, id, token); err != nil {
		respondError(w, h.logger, err, "failed to delete perfume")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.admin.ListProfiles(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to list profiles")
		return
	}

	resp := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, newProfileResponse(p))
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	profile, err := h.admin.ToggleAdmin(r.Context(), adminID, id)
	if err != nil {
		respondError(w, h.logger, err, "failed to toggle admin")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newProfileResponse(profile))
}

// parseForm reads the multipart editor form into a PerfumeInput. cleanup
// releases the uploaded file and any temporary storage.
func (h *AdminHandler) parseForm(w http.ResponseWriter, r *http.Request) (service.PerfumeInput, func(), bool) {
	noop := func() {}

	// The whole form fits in memory, so nothing is spooled to disk
	r.Body = http.MaxBytesReader(w, r.Body, h.maxForm)
	if err := r.ParseMultipartForm(h.maxForm); err != nil {
		h.logger.Debug("Failed to parse editor form", zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "editor form is too large")
			return service.PerfumeInput{}, noop, false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return service.PerfumeInput{}, noop, false
	}

	input := service.PerfumeInput{
		Name:           r.FormValue("name"),
		Brand:          r.FormValue("brand"),
		Price:          r.FormValue("price"),
		PromotionPrice: r.FormValue("promotion_price"),
		Status:         domain.PerfumeStatus(strings.TrimSpace(r.FormValue("status"))),
	}
	if description, ok := r.MultipartForm.Value["description"]; ok && len(description) > 0 {
		input.Description = &description[0]
	}

	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Debug("Failed to remove form files", zap.Error(err))
		}
	}

	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		input.Image = file
		return input, func() {
			_ = file.Close()
			cleanup()
		}, true
	case errors.Is(err, http.ErrMissingFile):
		return input, cleanup, true
	default:
		cleanup()
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid image upload")
		return service.PerfumeInput{}, noop, false
	}
}
