package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/floorkit/scanpos/internal/domain/product"
)

type productResponse struct {
	ID             int64    `json:"id"`
	SKU            string   `json:"sku"`
	LegacySKU      string   `json:"legacy_sku,omitempty"`
	Name           string   `json:"name"`
	RegularPrice   string   `json:"regular_price"`
	SalePrice      string   `json:"sale_price,omitempty"`
	EffectivePrice string   `json:"effective_price"`
	StockStatus    string   `json:"stock_status"`
	StockQuantity  int      `json:"stock_quantity"`
	CategoryIDs    []int64  `json:"category_ids"`
	Status         string   `json:"status"`
	ImageURL       string   `json:"image_url,omitempty"`
	Verified       string   `json:"verified"`
}

func (h *Handler) productToResponse(p *product.Product) productResponse {
	resp := productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		LegacySKU:      p.LegacySKU,
		Name:           p.Name,
		RegularPrice:   p.RegularPrice.StringFixed(2),
		EffectivePrice: p.EffectivePrice().StringFixed(2),
		StockStatus:    string(p.StockStatus),
		StockQuantity:  p.StockQuantity,
		CategoryIDs:    p.CategoryIDs,
		Status:         p.Status,
		ImageURL:       p.ImageURL,
		Verified:       p.Verified,
	}
	if p.SalePrice != nil {
		resp.SalePrice = p.SalePrice.StringFixed(2)
	}
	if resp.ImageURL != "" && h.cfg.ImageBaseURL != "" && !strings.HasPrefix(resp.ImageURL, "http") {
		resp.ImageURL = strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(resp.ImageURL, "/")
	}
	return resp
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.lookup.GetProjection(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "get product", err)
		return
	}
	respondJSON(w, http.StatusOK, h.productToResponse(p))
}

type updateProductRequest struct {
	Name          *string `json:"name"`
	RegularPrice  *string `json:"regular_price"`
	SalePrice     *string `json:"sale_price"`
	ClearSale     bool    `json:"clear_sale"`
	StockStatus   *string `json:"stock_status"`
	StockQuantity *int    `json:"stock_quantity"`
	ManageStock   *bool   `json:"manage_stock"`
	CategoryIDs   []int64 `json:"category_ids"`
	Status        *string `json:"status"`
}

// updateProduct applies a partial edit from the scanner's quick-edit screen
// and invalidates the lookup cache so the next scan sees the change.
func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req updateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fields := product.FieldUpdate{
		Name:          req.Name,
		ClearSale:     req.ClearSale,
		StockQuantity: req.StockQuantity,
		ManageStock:   req.ManageStock,
		CategoryIDs:   req.CategoryIDs,
		Status:        req.Status,
	}
	if req.RegularPrice != nil {
		price, err := decimal.NewFromString(*req.RegularPrice)
		if err != nil || price.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid regular price")
			return
		}
		fields.RegularPrice = &price
	}
	if req.SalePrice != nil {
		price, err := decimal.NewFromString(*req.SalePrice)
		if err != nil || price.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid sale price")
			return
		}
		fields.SalePrice = &price
	}
	if req.StockStatus != nil {
		status := product.StockStatus(*req.StockStatus)
		switch status {
		case product.StockInStock, product.StockOutOfStock, product.StockOnBackorder:
			fields.StockStatus = &status
		default:
			respondError(w, http.StatusBadRequest, "invalid stock status")
			return
		}
	}

	if err := h.products.Update(r.Context(), id, fields); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "update product", err)
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.internalError(w, "reload product", err)
		return
	}
	h.lookup.Invalidate(r.Context(), id, p.SKU, p.LegacySKU)
	respondJSON(w, http.StatusOK, h.productToResponse(p))
}

// verifyProduct marks a product as physically present on the sales floor.
// Only in-stock products can be verified.
func (h *Handler) verifyProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "get product for verification", err)
		return
	}
	if p.StockStatus != product.StockInStock {
		respondError(w, http.StatusConflict, "only in-stock products can be verified on the floor")
		return
	}

	if err := h.products.SetVerified(r.Context(), id, product.VerifiedOnFloor); err != nil {
		h.internalError(w, "set product verified", err)
		return
	}
	h.lookup.Invalidate(r.Context(), id, p.SKU, p.LegacySKU)

	respondJSON(w, http.StatusOK, map[string]string{"verified": product.VerifiedOnFloor})
}

type orderSummaryResponse struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	Status       string    `json:"status"`
	CustomerName string    `json:"customer_name,omitempty"`
	BillingEmail string    `json:"billing_email,omitempty"`
	ItemCount    int       `json:"item_count"`
	Total        string    `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

// latestOrderForProduct tells the operator when and to whom the scanned
// product was last sold. 204 means it was never sold.
func (h *Handler) latestOrderForProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	s, err := h.orders.LatestForProduct(r.Context(), id)
	if err != nil {
		h.internalError(w, "latest order for product", err)
		return
	}
	if s == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, orderSummaryResponse{
		ID:           s.ID,
		Number:       s.Number,
		Status:       string(s.Status),
		CustomerName: s.CustomerName,
		BillingEmail: s.BillingEmail,
		ItemCount:    s.ItemCount,
		Total:        s.Total.StringFixed(2),
		CreatedAt:    s.CreatedAt,
	})
}
