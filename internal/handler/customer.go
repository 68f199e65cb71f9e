package handler

import (
	"net/http"
	"strings"
)

const (
	customerSearchMinLen = 3
	customerSearchLimit  = 10
)

type customerResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// searchCustomers matches the customer directory by email fragment. Fragments
// shorter than three characters return an empty result rather than an error,
// matching the POS autocomplete behaviour.
func (h *Handler) searchCustomers(w http.ResponseWriter, r *http.Request) {
	fragment := strings.TrimSpace(r.URL.Query().Get("search"))
	if len(fragment) < customerSearchMinLen {
		respondJSON(w, http.StatusOK, []customerResponse{})
		return
	}

	found, err := h.customers.Search(r.Context(), fragment, customerSearchLimit)
	if err != nil {
		h.internalError(w, "search customers", err)
		return
	}

	resp := make([]customerResponse, len(found))
	for i := range found {
		resp[i] = customerResponse{
			ID:          found[i].ID,
			Email:       found[i].Email,
			DisplayName: found[i].DisplayName(),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
