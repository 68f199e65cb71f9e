package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/cart"
	"github.com/floorkit/scanpos/internal/domain/consignor"
	"github.com/floorkit/scanpos/internal/domain/order"
	"github.com/floorkit/scanpos/internal/domain/product"
)

type cartLineResponse struct {
	LocalID          int64   `json:"local_id"`
	Kind             string  `json:"kind"`
	ProductID        int64   `json:"product_id,omitempty"`
	SKU              string  `json:"sku,omitempty"`
	Name             string  `json:"name"`
	UnitPrice        string  `json:"unit_price"`
	Quantity         int     `json:"quantity"`
	LineTotal        string  `json:"line_total"`
	ImageURL         string  `json:"image_url,omitempty"`
	DiscountEligible bool    `json:"discount_eligible"`
	ConsignorID      int64   `json:"consignor_id,omitempty"`
}

type cartResponse struct {
	Items            []cartLineResponse `json:"items"`
	CouponCode       string             `json:"coupon_code,omitempty"`
	Subtotal         string             `json:"subtotal"`
	EligibleSubtotal string             `json:"eligible_subtotal"`
	Discount         string             `json:"discount"`
	Total            string             `json:"total"`
}

func cartToResponse(c *cart.Cart) cartResponse {
	totals := c.Totals()
	resp := cartResponse{
		Items:            make([]cartLineResponse, 0, c.Len()),
		Subtotal:         totals.Subtotal.StringFixed(2),
		EligibleSubtotal: totals.EligibleSubtotal.StringFixed(2),
		Discount:         totals.Discount.StringFixed(2),
		Total:            totals.Total.StringFixed(2),
	}
	if cp := c.Coupon(); cp != nil {
		resp.CouponCode = cp.Code
	}
	for _, it := range c.Items() {
		qty := decimal.NewFromInt(int64(it.Quantity))
		resp.Items = append(resp.Items, cartLineResponse{
			LocalID:          it.LocalID,
			Kind:             string(it.Kind),
			ProductID:        it.ProductID,
			SKU:              it.SKU,
			Name:             it.Name,
			UnitPrice:        it.UnitPrice.StringFixed(2),
			Quantity:         it.Quantity,
			LineTotal:        it.UnitPrice.Mul(qty).Round(2).StringFixed(2),
			ImageURL:         it.ImageURL,
			DiscountEligible: it.DiscountEligible,
			ConsignorID:      it.ConsignorID,
		})
	}
	return resp
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	id := h.sessions.Create()
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(c *cart.Cart) error { return nil })
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// withCart runs fn against the session cart and, on success, responds with
// the updated cart view including recomputed totals.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, fn func(*cart.Cart) error) {
	var resp cartResponse
	err := h.sessions.With(chi.URLParam(r, "sessionID"), func(c *cart.Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		resp = cartToResponse(c)
		return nil
	})
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, cart.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "cart session not found")
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(w, http.StatusNotFound, "cart line not found")
	default:
		h.internalError(w, "cart operation", err)
	}
}

type addItemRequest struct {
	Term string `json:"term"`
}

// addItem resolves a scanned identifier and puts the product in the cart.
// A repeat scan of a product already present bumps its quantity and moves
// the line to the front. The scan is recorded in the audit trail with the
// POS context either way.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	if req.Term == "" {
		respondError(w, http.StatusBadRequest, "scan term is required")
		return
	}

	op, _ := OperatorFrom(r.Context())

	p, err := h.lookup.FindByIdentifier(r.Context(), req.Term)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.auditLog.Log(audit.Record{
				UserID:          op.OperatorID,
				UserDisplayName: op.DisplayName,
				ScanContext:     audit.ContextPOS,
				SearchTerm:      req.Term,
				Success:         false,
			})
			respondError(w, http.StatusNotFound, "no product matches the scanned identifier")
			return
		}
		h.internalError(w, "pos scan lookup", err)
		return
	}

	// Written synchronously so the scan row already exists when checkout
	// links recent scans to the order.
	if _, err := h.auditLog.LogSync(r.Context(), audit.Record{
		UserID:          op.OperatorID,
		UserDisplayName: op.DisplayName,
		ProductID:       p.ID,
		ProductSKU:      p.SKU,
		ProductName:     p.Name,
		ScanContext:     audit.ContextPOS,
		SearchTerm:      req.Term,
		Success:         true,
	}); err != nil {
		h.lg.Warn("pos scan audit write failed", zap.String("term", req.Term), zap.Error(err))
	}

	h.withCart(w, r, func(c *cart.Cart) error {
		c.Add(cart.ProductData{
			ID:          p.ID,
			SKU:         p.SKU,
			Name:        p.Name,
			UnitPrice:   p.EffectivePrice(),
			CategoryIDs: p.CategoryIDs,
			ImageURL:    p.ImageURL,
		})
		return nil
	})
}

type addCustomItemRequest struct {
	Name             string `json:"name"`
	Amount           string `json:"amount"`
	DiscountEligible bool   `json:"discount_eligible"`
}

func (h *Handler) addCustomItem(w http.ResponseWriter, r *http.Request) {
	var req addCustomItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "item name is required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	h.withCart(w, r, func(c *cart.Cart) error {
		c.AddCustom(strings.TrimSpace(req.Name), amount, req.DiscountEligible)
		return nil
	})
}

type addBacklogItemRequest struct {
	ConsignorNumber string `json:"consignor_number"`
	Name            string `json:"name"`
	Amount          string `json:"amount"`
}

// addBacklogItem records a sale of uncatalogued consignor inventory. The
// consignor number must resolve so the sale can be attributed.
func (h *Handler) addBacklogItem(w http.ResponseWriter, r *http.Request) {
	var req addBacklogItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	cons, err := h.consignors.FindByNumber(r.Context(), req.ConsignorNumber)
	if err != nil {
		if errors.Is(err, consignor.ErrNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "unknown consignor number")
			return
		}
		h.internalError(w, "resolve consignor", err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Backlog item (" + cons.Number + ")"
	}

	h.withCart(w, r, func(c *cart.Cart) error {
		c.AddBacklog(cons.ID, name, amount)
		return nil
	})
}

func lineIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid line id")
		return 0, false
	}
	return id, true
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(w, r)
	if !ok {
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		return c.Remove(id)
	})
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		return c.SetQuantity(id, req.Quantity)
	})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cp, err := h.coupons.Validate(r.Context(), req.Code)
	if err != nil {
		status, msg := couponErrorResponse(err)
		if status == 0 {
			h.internalError(w, "validate coupon", err)
			return
		}
		respondError(w, status, msg)
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		c.ApplyCoupon(cp)
		return nil
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(c *cart.Cart) error {
		c.ApplyCoupon(nil)
		return nil
	})
}

type checkoutRequest struct {
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	Notes         string `json:"notes"`
	TargetStatus  string `json:"target_status"`
}

type checkoutResponse struct {
	OrderID     int64    `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	Status      string   `json:"status"`
	Discount    string   `json:"discount"`
	Total       string   `json:"total"`
	OmittedSKUs []string `json:"omitted_skus,omitempty"`
	ScansLinked int      `json:"scans_linked"`
}

// checkout persists the cart as an order. The order lands in pending status;
// the finalizer moves it to the target status out of band. Recent scans of
// the ordered products are linked to the order, and the session is discarded
// on success.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	target := order.StatusProcessing
	switch order.Status(req.TargetStatus) {
	case "":
	case order.StatusProcessing, order.StatusCompleted:
		target = order.Status(req.TargetStatus)
	default:
		respondError(w, http.StatusBadRequest, "invalid target status")
		return
	}

	// Snapshot the cart under the session lock, then assemble outside it so
	// a slow checkout does not block other sessions.
	var (
		lines      []cart.LineItem
		couponCode string
	)
	sessionID := chi.URLParam(r, "sessionID")
	err := h.sessions.With(sessionID, func(c *cart.Cart) error {
		lines = append(lines, c.Items()...)
		if cp := c.Coupon(); cp != nil {
			couponCode = cp.Code
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusNotFound, "cart session not found")
		return
	}

	result, err := h.assembler.Assemble(r.Context(), order.AssembleRequest{
		Lines:         lines,
		CouponCode:    couponCode,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Notes:         req.Notes,
		TargetStatus:  target,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrEmptyCart):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, order.ErrNoResolvableItems):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			if status, msg := couponErrorResponse(err); status != 0 {
				respondError(w, status, msg)
				return
			}
			h.internalError(w, "assemble order", err)
		}
		return
	}

	op, _ := OperatorFrom(r.Context())
	stats, err := h.linker.LinkScansToOrder(r.Context(), result.Order.ID, result.RegularProductIDs, op.OperatorID)
	if err != nil {
		// The order exists; linking is best effort.
		h.lg.Warn("scan linking failed", zap.Int64("order_id", result.Order.ID), zap.Error(err))
	}

	if err := h.finalizer.Schedule(r.Context(), result.Order.ID, target); err != nil {
		h.lg.Error("schedule order finalization",
			zap.Int64("order_id", result.Order.ID),
			zap.Error(err),
		)
	}

	h.sessions.Delete(sessionID)

	respondJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number,
		Status:      string(result.Order.Status),
		Discount:    result.Order.DiscountTotal.StringFixed(2),
		Total:       result.Order.Total.StringFixed(2),
		OmittedSKUs: result.OmittedSKUs,
		ScansLinked: stats.ScansLinked,
	})
}
