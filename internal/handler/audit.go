package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/floorkit/scanpos/internal/domain/audit"
)

const (
	auditListDefaultLimit = 50
	auditListMaxLimit     = 500
)

type scanAuditResponse struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	UserDisplayName string    `json:"user_display_name"`
	ProductID       int64     `json:"product_id,omitempty"`
	ProductSKU      string    `json:"product_sku,omitempty"`
	ProductName     string    `json:"product_name,omitempty"`
	ScanContext     string    `json:"scan_context"`
	SearchTerm      string    `json:"search_term"`
	Success         bool      `json:"success"`
	CreatedAt       time.Time `json:"created_at"`
}

type scanAuditListResponse struct {
	Records []scanAuditResponse `json:"records"`
	Total   int                 `json:"total"`
}

// listScanAudits returns the scan trail, newest first, filtered by the query
// parameters from, to (RFC 3339), user_id, context, search, limit, offset.
func (h *Handler) listScanAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		ScanContext: audit.Context(q.Get("context")),
		Search:      q.Get("search"),
		Limit:       auditListDefaultLimit,
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		f.To = t
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		f.UserID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > auditListMaxLimit {
			n = auditListMaxLimit
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	records, err := h.audits.List(r.Context(), f)
	if err != nil {
		h.internalError(w, "list scan audits", err)
		return
	}
	total, err := h.audits.Count(r.Context(), f)
	if err != nil {
		h.internalError(w, "count scan audits", err)
		return
	}

	resp := scanAuditListResponse{
		Records: make([]scanAuditResponse, len(records)),
		Total:   total,
	}
	for i, rec := range records {
		resp.Records[i] = scanAuditResponse{
			ID:              rec.ID,
			UserID:          rec.UserID,
			UserDisplayName: rec.UserDisplayName,
			ProductID:       rec.ProductID,
			ProductSKU:      rec.ProductSKU,
			ProductName:     rec.ProductName,
			ScanContext:     string(rec.ScanContext),
			SearchTerm:      rec.SearchTerm,
			Success:         rec.Success,
			CreatedAt:       rec.CreatedAt,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

type relinkRequest struct {
	DaysBack int `json:"days_back"`
}

// relinkOrders runs the retroactive scan-to-order linking pass. DaysBack
// defaults to 7 and is capped at the audit retention period.
func (h *Handler) relinkOrders(w http.ResponseWriter, r *http.Request) {
	var req relinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DaysBack <= 0 {
		req.DaysBack = 7
	}
	if req.DaysBack > audit.RetentionDays {
		req.DaysBack = audit.RetentionDays
	}

	stats, err := h.linker.RelinkHistoricalOrders(r.Context(), req.DaysBack)
	if err != nil {
		h.internalError(w, "relink orders", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
