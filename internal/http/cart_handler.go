package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/api"
	"github.com/alferdousrana/Lifesheba/internal/cart"
	"github.com/alferdousrana/Lifesheba/internal/checkout"
	"github.com/alferdousrana/Lifesheba/internal/domain"
	"github.com/alferdousrana/Lifesheba/internal/pricing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type CartHandler struct {
	carts    *cart.Registry
	checkout *checkout.Service
	logger   *zap.Logger
	maxBody  int64
}

func NewCartHandler(carts *cart.Registry, checkoutService *checkout.Service, logger *zap.Logger, maxBody int64) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &CartHandler{
		carts:    carts,
		checkout: checkoutService,
		logger:   logger,
		maxBody:  maxBody,
	}
}

type AddItemRequestDTO struct {
	Product  domain.Product `json:"product"`
	Quantity *int           `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Direction string `json:"direction"`
}

type CartResponse struct {
	Items      []domain.LineItem `json:"items"`
	TotalCount int               `json:"total_count"`
	Quote      *pricing.Quote    `json:"quote,omitempty"`
}

type CountResponse struct {
	TotalCount int `json:"total_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store := h.view(r)
	h.respondJSON(w, http.StatusOK, h.cartResponse(store, r.URL.Query().Get("address")))
}

func (h *CartHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	store := h.view(r)
	h.respondJSON(w, http.StatusOK, CountResponse{TotalCount: store.TotalCount()})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	store := h.store(r)
	err := store.AddItem(r.Context(), req.Product, quantity)
	switch {
	case errors.Is(err, cart.ErrMissingProductID):
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product.id is required")
		return
	case errors.Is(err, cart.ErrInvalidQuantity):
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	case errors.Is(err, cart.ErrQuantityTooLarge):
		h.respondError(w, http.StatusBadRequest, "quantity_too_large",
			fmt.Sprintf("quantity of one product may not exceed %d", cart.MaxQuantity))
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, h.cartResponse(store, ""))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := domain.ParseProductID(chi.URLParam(r, "product_id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_direction", "direction must be increase or decrease")
		return
	}

	store := h.store(r)
	if err := store.UpdateQuantity(r.Context(), productID, direction); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_direction", err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, h.cartResponse(store, ""))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := domain.ParseProductID(chi.URLParam(r, "product_id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	store := h.store(r)
	store.RemoveItem(r.Context(), productID)

	h.respondJSON(w, http.StatusOK, h.cartResponse(store, ""))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store := h.store(r)
	store.Clear(r.Context())

	h.respondJSON(w, http.StatusOK, h.cartResponse(store, ""))
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req checkout.Request
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), h.store(r), token, req)
	if err != nil {
		h.handleCheckoutError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

// Events streams cart snapshots as server-sent events, starting with the
// current state.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	store := h.store(r)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates := store.Updates(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, store.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				h.logger.Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *CartHandler) store(r *http.Request) *cart.Store {
	return h.carts.Get(r.Context(), getSessionID(r.Context()))
}

// view is store for handlers that only read: a session that is not in
// memory yet is served from storage without being registered.
func (h *CartHandler) view(r *http.Request) *cart.Store {
	return h.carts.Peek(r.Context(), getSessionID(r.Context()))
}

func (h *CartHandler) cartResponse(store *cart.Store, address string) CartResponse {
	snap := store.Snapshot()
	resp := CartResponse{Items: snap.Items, TotalCount: snap.TotalCount}
	if h.checkout == nil {
		return resp
	}
	quote, err := h.checkout.Quote(store, address)
	if err != nil {
		h.logger.Warn("failed to price cart", zap.Error(err))
		return resp
	}
	resp.Quote = &quote
	return resp
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeEvent(w http.ResponseWriter, snap cart.Snapshot) error {
	data, err := json.Marshal(CartResponse{Items: snap.Items, TotalCount: snap.TotalCount})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cart\nid: %d\ndata: %s\n\n", snap.Version, data)
	return err
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (h *CartHandler) handleCheckoutError(w http.ResponseWriter, err error) {
	var statusErr *api.StatusError

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		h.respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, checkout.ErrMissingFields):
		h.respondError(w, http.StatusBadRequest, "missing_fields", err.Error())
	case errors.Is(err, api.ErrUnauthorized):
		h.respondError(w, http.StatusUnauthorized, "unauthenticated", "remote api rejected credentials")
	case errors.Is(err, api.ErrUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError:
		h.respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "order rejected",
			Code:    "order_rejected",
			Details: statusErr.Body,
		})
	default:
		h.respondError(w, http.StatusBadGateway, "checkout_failed", err.Error())
	}
}
