package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/floorkit/scanpos/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code string `json:"code"`
}

type couponResponse struct {
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
}

// validateCoupon checks a code without attaching it to a cart, so the POS can
// surface a precise rejection reason before the operator commits.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cp, err := h.coupons.Validate(r.Context(), req.Code)
	if err != nil {
		if status, msg := couponErrorResponse(err); status != 0 {
			respondError(w, status, msg)
			return
		}
		h.internalError(w, "validate coupon", err)
		return
	}
	respondJSON(w, http.StatusOK, couponResponse{
		Code:         cp.Code,
		DiscountType: string(cp.DiscountType),
		Amount:       cp.Amount.StringFixed(2),
		Description:  cp.Description,
	})
}

// couponErrorResponse maps coupon validation failures to HTTP responses with
// distinct messages per failure mode. Returns status 0 for unknown errors.
func couponErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusUnprocessableEntity, coupon.ErrNotFound.Error()
	case errors.Is(err, coupon.ErrExpired):
		return http.StatusUnprocessableEntity, coupon.ErrExpired.Error()
	case errors.Is(err, coupon.ErrUsageLimitReached):
		return http.StatusUnprocessableEntity, coupon.ErrUsageLimitReached.Error()
	}
	return 0, ""
}
