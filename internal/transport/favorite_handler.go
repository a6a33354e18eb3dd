package transport

import (
	"net/http"

	"perfume-store/internal/middleware"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ToggleFavoriteResponse reports membership after a toggle
type ToggleFavoriteResponse struct {
	PerfumeID  string `json:"perfume_id"`
	IsFavorite bool   `json:"is_favorite"`
}

// FavoriteHandler serves the caller's favorites
type FavoriteHandler struct {
	favorites service.FavoritesLedger
	logger    *zap.Logger
}

// NewFavoriteHandler creates a new FavoriteHandler
func NewFavoriteHandler(favorites service.FavoritesLedger, logger *zap.Logger) *FavoriteHandler {
	return &FavoriteHandler{
		favorites: favorites,
		logger:    logger,
	}
}

func (h *FavoriteHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/favorites", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/{perfumeID}/toggle", h.Toggle)
	})
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	favorites, err := h.favorites.List(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to list favorites")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, favorites)
}

func (h *FavoriteHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	perfumeID, ok := idParam(w, r, "perfumeID")
	if !ok {
		return
	}

	isFavorite, err := h.favorites.Toggle(r.Context(), userID, perfumeID)
	if err != nil {
		respondError(w, h.logger, err, "failed to toggle favorite")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ToggleFavoriteResponse{
		PerfumeID:  perfumeID.String(),
		IsFavorite: isFavorite,
	})
}
