package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/product"
)

type scanRequest struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

type scanResponse struct {
	Found   bool             `json:"found"`
	Product *productResponse `json:"product,omitempty"`
}

var validScanContexts = map[audit.Context]bool{
	audit.ContextMainScanner:  true,
	audit.ContextPOS:          true,
	audit.ContextVerification: true,
	audit.ContextCreateOrder:  true,
}

// scan resolves a scanned identifier and records the attempt in the audit
// trail. Failed lookups are recorded too; the scanned term is preserved
// either way.
func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	if req.Term == "" {
		respondError(w, http.StatusBadRequest, "scan term is required")
		return
	}
	scanCtx := audit.Context(req.Context)
	if !validScanContexts[scanCtx] {
		scanCtx = audit.ContextMainScanner
	}

	op, _ := OperatorFrom(r.Context())

	p, err := h.lookup.FindByIdentifier(r.Context(), req.Term)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.auditLog.Log(audit.Record{
				UserID:          op.OperatorID,
				UserDisplayName: op.DisplayName,
				ScanContext:     scanCtx,
				SearchTerm:      req.Term,
				Success:         false,
			})
			respondJSON(w, http.StatusNotFound, scanResponse{Found: false})
			return
		}
		h.internalError(w, "scan lookup", err)
		return
	}

	h.auditLog.Log(audit.Record{
		UserID:          op.OperatorID,
		UserDisplayName: op.DisplayName,
		ProductID:       p.ID,
		ProductSKU:      p.SKU,
		ProductName:     p.Name,
		ScanContext:     scanCtx,
		SearchTerm:      req.Term,
		Success:         true,
	})

	resp := h.productToResponse(p)
	respondJSON(w, http.StatusOK, scanResponse{Found: true, Product: &resp})
}
