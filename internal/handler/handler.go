// Package handler exposes the POS and scanner HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/cart"
	"github.com/floorkit/scanpos/internal/domain/consignor"
	"github.com/floorkit/scanpos/internal/domain/coupon"
	"github.com/floorkit/scanpos/internal/domain/customer"
	"github.com/floorkit/scanpos/internal/domain/order"
	"github.com/floorkit/scanpos/internal/domain/product"
	"github.com/floorkit/scanpos/internal/lookup"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler bundles the domain services behind the HTTP API.
type Handler struct {
	cfg        Config
	lookup     *lookup.Cache
	products   product.Repository
	sessions   *cart.SessionStore
	consignors consignor.Repository
	customers  customer.Repository
	coupons    coupon.Validator
	assembler  *order.Assembler
	orders     order.Repository
	finalizer  *order.Finalizer
	auditLog   *audit.Logger
	audits     audit.Store
	linker     *audit.Linker
	lg         *zap.Logger
}

// New constructs a Handler with its domain dependencies.
func New(
	cfg Config,
	lookupCache *lookup.Cache,
	products product.Repository,
	sessions *cart.SessionStore,
	consignors consignor.Repository,
	customers customer.Repository,
	coupons coupon.Validator,
	assembler *order.Assembler,
	orders order.Repository,
	finalizer *order.Finalizer,
	auditLog *audit.Logger,
	audits audit.Store,
	linker *audit.Linker,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		cfg:        cfg,
		lookup:     lookupCache,
		products:   products,
		sessions:   sessions,
		consignors: consignors,
		customers:  customers,
		coupons:    coupons,
		assembler:  assembler,
		orders:     orders,
		finalizer:  finalizer,
		auditLog:   auditLog,
		audits:     audits,
		linker:     linker,
		lg:         lg,
	}
}

// Routes mounts the API under the given router. All routes require an
// authenticated operator.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth)

	r.Post("/scan", h.scan)

	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/", h.getProduct)
		r.Patch("/", h.updateProduct)
		r.Post("/verify", h.verifyProduct)
		r.Get("/latest-order", h.latestOrderForProduct)
	})

	r.Route("/pos/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Post("/items", h.addItem)
			r.Post("/custom-items", h.addCustomItem)
			r.Post("/backlog-items", h.addBacklogItem)
			r.Delete("/items/{lineID}", h.removeItem)
			r.Put("/items/{lineID}/quantity", h.setItemQuantity)
			r.Post("/coupon", h.applyCoupon)
			r.Delete("/coupon", h.removeCoupon)
			r.Post("/checkout", h.checkout)
		})
	})

	r.Get("/customers", h.searchCustomers)
	r.Post("/coupons/validate", h.validateCoupon)

	r.Route("/scan-audits", func(r chi.Router) {
		r.Get("/", h.listScanAudits)
		r.Post("/relink", h.relinkOrders)
	})

	return r
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.lg.Error(op, zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
