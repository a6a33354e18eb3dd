package transport

import (
	"net/http"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/middleware"
	"perfume-store/internal/repository"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SubmitReviewRequest represents a star rating with an optional comment
type SubmitReviewRequest struct {
	Rating  int     `json:"rating" validate:"required,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// ReviewResponse is a review as the detail view lists it
type ReviewResponse struct {
	ID        string  `json:"id"`
	PerfumeID string  `json:"perfume_id"`
	UserID    string  `json:"user_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment"`
	Author    string  `json:"author"`
	CreatedAt string  `json:"created_at"`
}

func newReviewResponse(r *domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:        r.ID.String(),
		PerfumeID: r.PerfumeID.String(),
		UserID:    r.UserID.String(),
		Rating:    r.Rating,
		Comment:   r.Comment,
		Author:    r.Author(),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ReviewDetailResponse is the perfume detail view
type ReviewDetailResponse struct {
	Perfume   *domain.Perfume    `json:"perfume"`
	Reviews   []ReviewResponse   `json:"reviews"`
	Stats     domain.ReviewStats `json:"stats"`
	OwnReview *ReviewResponse    `json:"own_review"`
}

// CatalogHandler serves browsing, perfume detail and reviews
type CatalogHandler struct {
	catalog service.CatalogService
	reviews service.ReviewService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, reviews service.ReviewService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		reviews: reviews,
		logger:  logger,
	}
}

// RegisterRoutes registers the catalog routes. Reads are public and use the
// caller only to mark favorites and the own review.
func (h *CatalogHandler) RegisterRoutes(r chi.Router, optionalAuth, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/catalog", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/", h.Browse)
			r.Get("/{id}", h.GetPerfume)
			r.Get("/{id}/reviews", h.GetReviews)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Put("/{id}/reviews", h.SubmitReview)
		})
	})
}

// Browse lists the catalog with favorites, ratings and the brand list
func (h *CatalogHandler) Browse(w http.ResponseWriter, r *http.Request) {
	filter := repository.PerfumeFilter{
		Search: r.URL.Query().Get("search"),
		Brand:  r.URL.Query().Get("brand"),
	}

	page, err := h.catalog.Browse(r.Context(), optionalUser(r), filter)
	if err != nil {
		respondError(w, h.logger, err, "failed to browse catalog")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, page)
}

func (h *CatalogHandler) GetPerfume(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	perfume, err := h.catalog.GetPerfume(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "failed to get perfume")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, perfume)
}

// GetReviews returns the perfume with its reviews and rating statistics
func (h *CatalogHandler) GetReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.reviews.Detail(r.Context(), optionalUser(r), id)
	if err != nil {
		respondError(w, h.logger, err, "failed to load reviews")
		return
	}

	resp := ReviewDetailResponse{
		Perfume: detail.Perfume,
		Reviews: make([]ReviewResponse, 0, len(detail.Reviews)),
		Stats:   domain.ReviewStats{AverageRating: detail.Stats.Rounded(), ReviewCount: detail.Stats.ReviewCount},
	}
	for _, review := range detail.Reviews {
		resp.Reviews = append(resp.Reviews, newReviewResponse(review))
	}
	if detail.Own != nil {
		own := newReviewResponse(detail.Own)
		resp.OwnReview = &own
	}

	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// SubmitReview stores the caller's review, replacing an earlier one
func (h *CatalogHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req SubmitReviewRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	review, err := h.reviews.Submit(r.Context(), userID, id, req.Rating, req.Comment)
	if err != nil {
		respondError(w, h.logger, err, "failed to submit review")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newReviewResponse(review))
}
