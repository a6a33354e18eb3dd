package transport

import (
	"net/http"

	"perfume-store/internal/domain"
	"perfume-store/internal/middleware"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddCartItemRequest adds one unit of a perfume
type AddCartItemRequest struct {
	PerfumeID string `json:"perfume_id" validate:"required,uuid"`
}

// SetQuantityRequest replaces the quantity of a line. Zero and negative
// values pass validation so the service can answer with its floor error.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// CartResponse is the cart with its derived totals
type CartResponse struct {
	Items []*domain.CartItem `json:"items"`
	Count int                `json:"count"`
	Total decimal.Decimal    `json:"total"`
}

// CountResponse is the number of units in the cart
type CountResponse struct {
	Count int `json:"count"`
}

func newCartResponse(lines []*domain.CartItem) CartResponse {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return CartResponse{
		Items: lines,
		Count: count,
		Total: service.CartTotal(lines),
	}
}

// CartHandler serves the caller's cart and checkout
type CartHandler struct {
	cart   service.CartLedger
	stream http.Handler
	logger *zap.Logger
}

// NewCartHandler creates a new CartHandler. stream serves the live count.
func NewCartHandler(cart service.CartLedger, stream http.Handler, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:   cart,
		stream: stream,
		logger: logger,
	}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetCart)
		r.Delete("/", h.Clear)
		r.Get("/count", h.Count)
		r.Get("/checkout", h.Checkout)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{id}", h.SetQuantity)
		r.Delete("/items/{id}", h.RemoveItem)
		if h.stream != nil {
			r.Handle("/stream", h.stream)
		}
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r, userID, http.StatusOK)
}

// AddItem puts one more unit of the perfume in the cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if !decode(w, r, &req, h.logger) {
		return
	}
	perfumeID, err := uuid.Parse(req.PerfumeID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid perfume_id")
		return
	}

	if _, err := h.cart.AddOne(r.Context(), userID, perfumeID); err != nil {
		respondError(w, h.logger, err, "failed to add to cart")
		return
	}

	h.respondCart(w, r, userID, http.StatusOK)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req SetQuantityRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	if _, err := h.cart.SetQuantity(r.Context(), userID, itemID, *req.Quantity); err != nil {
		respondError(w, h.logger, err, "failed to update quantity")
		return
	}

	h.respondCart(w, r, userID, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.cart.Remove(r.Context(), userID, itemID); err != nil {
		respondError(w, h.logger, err, "failed to remove item")
		return
	}

	h.respondCart(w, r, userID, http.StatusOK)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.cart.Clear(r.Context(), userID); err != nil {
		respondError(w, h.logger, err, "failed to clear cart")
		return
	}

	h.respondCart(w, r, userID, http.StatusOK)
}

func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.cart.Count(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to count cart")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CountResponse{Count: count})
}

// Checkout returns the order summary and the chat links to send it through
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	checkout, err := h.cart.Checkout(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to build checkout")
		return
	}
	if len(checkout.Lines) == 0 {
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, "cart is empty")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, checkout)
}

// respondCart re-reads the cart after a mutation so the client always
// renders committed state
func (h *CartHandler) respondCart(w http.ResponseWriter, r *http.Request, userID uuid.UUID, status int) {
	lines, err := h.cart.Lines(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to load cart")
		return
	}
	middleware.RespondWithJSON(w, status, newCartResponse(lines))
}
