package remotev1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
)

func TestRequestOTPParsesHeaderMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept header = %q, want application/json", r.Header.Get("Accept"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"X-Apple-I-MD":   "otp-value",
			"X-Apple-I-MD-M": "machine-id-value",
		})
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	result, err := backend.RequestOTP(context.Background(), nil, anisette.DSID)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if result.OTP != "otp-value" {
		t.Errorf("OTP = %q, want otp-value", result.OTP)
	}
	if result.MachineID != "machine-id-value" {
		t.Errorf("MachineID = %q, want machine-id-value", result.MachineID)
	}
}

func TestRequestOTPRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	if _, err := backend.RequestOTP(context.Background(), nil, anisette.DSID); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestRequestOTPRejectsMissingOTPField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"X-Apple-I-MD-M": "machine-id-value"})
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	if _, err := backend.RequestOTP(context.Background(), nil, anisette.DSID); err == nil {
		t.Fatal("expected an error when X-Apple-I-MD is missing from the response")
	}
}

func TestProvisionIsANoOp(t *testing.T) {
	backend := New("https://example.invalid", nil)
	if err := backend.Provision(context.Background(), nil); err != nil {
		t.Fatalf("Provision: %v", err)
	}
}

func TestIsProvisionedAlwaysTrue(t *testing.T) {
	backend := New("https://example.invalid", nil)
	if !backend.IsProvisioned(nil, anisette.DSID) {
		t.Fatal("expected IsProvisioned to always report true for v1")
	}
}

func TestNewDefaultsHTTPClientWhenNil(t *testing.T) {
	backend := New("https://example.invalid", nil)
	if backend.Client == nil {
		t.Fatal("expected New to default a non-nil HTTP client")
	}
}
