package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPGatewayAuthorize(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/holds" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hold_ref": "hold_abc",
			"status":   StatusRequiresCapture,
		})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "sk_test", 50, zap.NewNop())
	result, err := gw.Authorize(context.Background(), AuthorizeInput{
		CustomerRef: "cus_123",
		AmountMinor: 1000,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	if result.HoldRef != "hold_abc" {
		t.Fatalf("expected hold_abc, got %q", result.HoldRef)
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["customer_ref"] != "cus_123" || gotBody["amount_minor"] != float64(1000) {
		t.Fatalf("unexpected payload: %+v", gotBody)
	}
}

func TestHTTPGatewayAuthorizeRejectsNonCaptureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": StatusFailed,
			"error":  "card declined",
		})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "sk_test", 50, zap.NewNop())
	_, err := gw.Authorize(context.Background(), AuthorizeInput{CustomerRef: "cus_123", AmountMinor: 1000, Currency: "USD"})
	if err == nil {
		t.Fatal("expected error for failed hold")
	}
}

func TestHTTPGatewayCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/holds/hold_abc/capture" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"charge_ref":            "ch_1",
			"captured_amount_minor": 400,
			"status":                StatusSucceeded,
		})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "sk_test", 50, zap.NewNop())
	result, err := gw.Capture(context.Background(), "hold_abc", 400)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.ChargeRef != "ch_1" || result.CapturedMinor != 400 {
		t.Fatalf("unexpected capture result: %+v", result)
	}
}

func TestHTTPGatewayRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/holds/hold_abc/release" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": StatusCanceled})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "sk_test", 50, zap.NewNop())
	if err := gw.Release(context.Background(), "hold_abc"); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestHTTPGatewaySurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "sk_test", 50, zap.NewNop())
	if err := gw.Release(context.Background(), "hold_abc"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHTTPGatewayMinimumCharge(t *testing.T) {
	gw := NewHTTPGateway("http://localhost", "sk_test", 50, zap.NewNop())
	if got := gw.MinimumChargeMinor("USD"); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
