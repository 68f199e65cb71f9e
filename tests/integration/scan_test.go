//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type scanRequest struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

func TestScan_NoAuth(t *testing.T) {
	resp := doPostNoAuth(t, "/api/scan", scanRequest{Term: "FLR-0001"})
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusUnauthorized)
}

func TestScan_InvalidKey(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/api/scan", scanRequest{Term: "FLR-0001"}, "wrong-key")
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusUnauthorized)
}

func TestScan_PrimarySKU(t *testing.T) {
	resp := doPost(t, "/api/scan", scanRequest{Term: "FLR-0001", Context: "main_scanner"})
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusOK)
	body := decodeJSON[scanResponse](t, resp)
	if !body.Found {
		t.Fatal("expected found=true")
	}
	if body.Product.SKU != "FLR-0001" {
		t.Errorf("sku: got %q, want FLR-0001", body.Product.SKU)
	}
	if body.Product.Name != "Oak Side Table" {
		t.Errorf("name: got %q", body.Product.Name)
	}
	if body.Product.EffectivePrice != "89.00" {
		t.Errorf("effective price: got %q, want 89.00", body.Product.EffectivePrice)
	}
}

func TestScan_LegacySKUFallback(t *testing.T) {
	resp := doPost(t, "/api/scan", scanRequest{Term: "10001"})
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusOK)
	body := decodeJSON[scanResponse](t, resp)
	if !body.Found {
		t.Fatal("expected found=true")
	}
	if body.Product.SKU != "FLR-0001" {
		t.Errorf("legacy sku 10001 should resolve to FLR-0001, got %q", body.Product.SKU)
	}
}

func TestScan_SalePriceWins(t *testing.T) {
	resp := doPost(t, "/api/scan", scanRequest{Term: "FLR-0002"})
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusOK)
	body := decodeJSON[scanResponse](t, resp)
	if body.Product.EffectivePrice != "95.00" {
		t.Errorf("effective price: got %q, want sale price 95.00", body.Product.EffectivePrice)
	}
}

func TestScan_Unknown(t *testing.T) {
	resp := doPost(t, "/api/scan", scanRequest{Term: "NO-SUCH-SKU"})
	defer resp.Body.Close()

	wantStatus(t, resp, http.StatusNotFound)
	if body := decodeJSON[scanResponse](t, resp); body.Found {
		t.Fatal("expected found=false")
	}
}

func TestScan_FailuresAreAudited(t *testing.T) {
	resp := doPost(t, "/api/scan", scanRequest{Term: "AUDIT-MISS-MARKER"})
	resp.Body.Close()

	// The audit log is written by a batching worker; poll briefly.
	deadline := 20
	for range deadline {
		resp := doGet(t, "/api/scan-audits?search=AUDIT-MISS-MARKER")
		body := decodeJSON[scanAuditListResponse](t, resp)
		resp.Body.Close()
		if body.Total >= 1 {
			rec := body.Records[0]
			if rec.Success {
				t.Fatal("expected a failed scan record")
			}
			if rec.SearchTerm != "AUDIT-MISS-MARKER" {
				t.Fatalf("search term: got %q", rec.SearchTerm)
			}
			return
		}
		sleep(t)
	}
	t.Fatal("scan audit record never appeared")
}
