package remotev3

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
)

func newTestState(t *testing.T) *anisette.State {
	t.Helper()
	st, err := anisette.LoadOrInit(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	return st
}

func TestIsProvisionedReflectsStateBlob(t *testing.T) {
	backend := New("https://example.invalid", nil)
	state := newTestState(t)

	if backend.IsProvisioned(state, anisette.DSID) {
		t.Fatal("fresh state should not be provisioned")
	}
	if err := state.SetProvisioning([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("SetProvisioning: %v", err)
	}
	if !backend.IsProvisioned(state, anisette.DSID) {
		t.Fatal("expected IsProvisioned to report true once a blob is set")
	}
}

func TestRequestOTPRejectsUnprovisionedState(t *testing.T) {
	var clientInfoHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientInfoHits++
		_ = json.NewEncoder(w).Encode(map[string]string{"client_info": "<info/>", "user_agent": "agent/1"})
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	state := newTestState(t)

	_, err := backend.RequestOTP(context.Background(), state, anisette.DSID)
	if _, ok := err.(*anisette.ErrNotProvisioned); !ok {
		t.Fatalf("RequestOTP error = %v (%T), want *anisette.ErrNotProvisioned", err, err)
	}
}

func TestRequestOTPParsesHeadersResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/client_info":
			_ = json.NewEncoder(w).Encode(map[string]string{"client_info": "<info/>", "user_agent": "agent/1"})
		case "/v3/get_headers":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["adi_pb"] == "" {
				t.Errorf("expected adi_pb in get_headers request body")
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"result":             "GetHeadersSuccess",
				"X-Apple-I-MD":       "otp-value",
				"X-Apple-I-MD-M":     "machine-id-value",
				"X-Apple-I-MD-RINFO": "17106176",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	state := newTestState(t)
	if err := state.SetProvisioning([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("SetProvisioning: %v", err)
	}

	result, err := backend.RequestOTP(context.Background(), state, anisette.DSID)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if result.OTP != "otp-value" || result.MachineID != "machine-id-value" {
		t.Errorf("result = %+v, want OTP=otp-value MachineID=machine-id-value", result)
	}
}

func TestRequestOTPSurfacesNotProvisionedOnDash45061(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/client_info":
			_ = json.NewEncoder(w).Encode(map[string]string{"client_info": "<info/>", "user_agent": "agent/1"})
		case "/v3/get_headers":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"result":  "GetHeadersError",
				"message": "error -45061: invalidated",
			})
		}
	}))
	defer server.Close()

	backend := New(server.URL, nil)
	state := newTestState(t)
	if err := state.SetProvisioning([]byte{0xAA}); err != nil {
		t.Fatalf("SetProvisioning: %v", err)
	}

	_, err := backend.RequestOTP(context.Background(), state, anisette.DSID)
	if _, ok := err.(*anisette.ErrNotProvisioned); !ok {
		t.Fatalf("RequestOTP error = %v (%T), want *anisette.ErrNotProvisioned", err, err)
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	backend := New("https://example.invalid/", nil)
	if backend.BaseURL != "https://example.invalid" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", backend.BaseURL)
	}
}
