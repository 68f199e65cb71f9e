//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func createSession(t *testing.T) string {
	t.Helper()

	resp := doPost(t, "/api/pos/sessions", nil)
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusCreated)

	body := decodeJSON[map[string]string](t, resp)
	id := body["session_id"]
	if id == "" {
		t.Fatal("empty session id")
	}
	return id
}

func sessionPath(id, suffix string) string {
	return "/api/pos/sessions/" + id + suffix
}

func TestPOS_UnknownSession(t *testing.T) {
	resp := doGet(t, "/api/pos/sessions/no-such-session")
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusNotFound)
}

func TestPOS_RepeatScanMergesLine(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0001"})
	resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	resp = doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0001"})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 2 {
		t.Errorf("quantity: got %d, want 2", cart.Items[0].Quantity)
	}
	if cart.Subtotal != "178.00" {
		t.Errorf("subtotal: got %q, want 178.00", cart.Subtotal)
	}
}

func TestPOS_CustomAndBacklogItems(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/custom-items"), map[string]any{
		"name":              "Delivery fee",
		"amount":            "25.00",
		"discount_eligible": false,
	})
	resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	resp = doPost(t, sessionPath(sid, "/backlog-items"), map[string]string{
		"consignor_number": "C-1001",
		"amount":           "15.00",
	})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart.Items))
	}
	// Newest first: the backlog line leads.
	backlog := cart.Items[0]
	if backlog.Kind != "backlog" {
		t.Errorf("kind: got %q, want backlog", backlog.Kind)
	}
	if !backlog.DiscountEligible {
		t.Error("backlog lines are always discount eligible")
	}
	if backlog.ConsignorID == 0 {
		t.Error("backlog line should carry the consignor id")
	}
	if cart.Items[1].DiscountEligible {
		t.Error("custom line was flagged ineligible")
	}
}

func TestPOS_BacklogUnknownConsignor(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/backlog-items"), map[string]string{
		"consignor_number": "C-9999",
		"amount":           "10.00",
	})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestPOS_QuantityAndRemoval(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0002"})
	wantStatus(t, resp, http.StatusOK)
	cart := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	lineID := cart.Items[0].LocalID

	resp = doPut(t, sessionPath(sid, fmt.Sprintf("/items/%d/quantity", lineID)), map[string]int{"quantity": 3})
	wantStatus(t, resp, http.StatusOK)
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("quantity: got %d, want 3", cart.Items[0].Quantity)
	}
	// Sale price 95.00 x 3.
	if cart.Items[0].LineTotal != "285.00" {
		t.Errorf("line total: got %q, want 285.00", cart.Items[0].LineTotal)
	}

	resp = doDelete(t, sessionPath(sid, fmt.Sprintf("/items/%d", lineID)))
	wantStatus(t, resp, http.StatusOK)
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Items))
	}
}

func TestPOS_CouponTotals(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0001"})
	resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	resp = doPost(t, sessionPath(sid, "/coupon"), map[string]string{"code": "welcome10"})
	wantStatus(t, resp, http.StatusOK)
	cart := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if cart.CouponCode != "welcome10" {
		t.Errorf("coupon code: got %q", cart.CouponCode)
	}
	if cart.Discount != "8.90" {
		t.Errorf("discount: got %q, want 8.90", cart.Discount)
	}
	if cart.Total != "80.10" {
		t.Errorf("total: got %q, want 80.10", cart.Total)
	}

	resp = doDelete(t, sessionPath(sid, "/coupon"))
	wantStatus(t, resp, http.StatusOK)
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if cart.Discount != "0.00" {
		t.Errorf("discount after removal: got %q, want 0.00", cart.Discount)
	}
}

func TestPOS_UnknownCoupon(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0001"})
	resp.Body.Close()

	resp = doPost(t, sessionPath(sid, "/coupon"), map[string]string{"code": "nope"})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestPOS_CheckoutEmptyCart(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/checkout"), map[string]string{})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusBadRequest)
}

func TestPOS_CheckoutFlow(t *testing.T) {
	sid := createSession(t)

	// Scan through the POS so a linkable audit record exists.
	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0001"})
	resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	resp = doPost(t, sessionPath(sid, "/checkout"), map[string]string{
		"customer_email": "pat.doyle@example.com",
	})
	wantStatus(t, resp, http.StatusCreated)
	out := decodeJSON[checkoutResponse](t, resp)
	resp.Body.Close()

	if out.OrderID == 0 {
		t.Fatal("missing order id")
	}
	if !strings.HasPrefix(out.OrderNumber, "POS-") {
		t.Errorf("order number: got %q", out.OrderNumber)
	}
	if out.Status != "pending" {
		t.Errorf("status: got %q, want pending", out.Status)
	}
	if out.Total != "89.00" {
		t.Errorf("total: got %q, want 89.00", out.Total)
	}

	// The session is gone after checkout.
	resp = doGet(t, "/api/pos/sessions/"+sid)
	resp.Body.Close()
	wantStatus(t, resp, http.StatusNotFound)

	// The finalizer promotes the order to processing out of band.
	for range 20 {
		resp := doGet(t, "/api/products/1/latest-order")
		if resp.StatusCode == http.StatusOK {
			summary := decodeJSON[orderSummaryResponse](t, resp)
			resp.Body.Close()
			if summary.ID == out.OrderID && summary.Status == "processing" {
				if summary.CustomerName != "Pat Doyle" {
					t.Errorf("customer: got %q, want Pat Doyle", summary.CustomerName)
				}
				return
			}
		} else {
			resp.Body.Close()
		}
		sleep(t)
	}
	t.Fatal("order never reached processing status")
}

func TestPOS_CheckoutLinksRecentScans(t *testing.T) {
	sid := createSession(t)

	resp := doPost(t, sessionPath(sid, "/items"), map[string]string{"term": "FLR-0002"})
	resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)

	resp = doPost(t, sessionPath(sid, "/checkout"), map[string]string{})
	wantStatus(t, resp, http.StatusCreated)
	out := decodeJSON[checkoutResponse](t, resp)
	resp.Body.Close()

	if out.ScansLinked < 1 {
		t.Errorf("scans linked: got %d, want >= 1", out.ScansLinked)
	}
}
