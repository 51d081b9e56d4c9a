// Package remotev1 implements the RemoteADIv1 backend: a plain HTTPS GET
// against a community helper server that returns a flat JSON object whose
// keys are already the Anisette header names.
package remotev1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
)

// Backend is the RemoteADIv1 ADIBackend implementation.
type Backend struct {
	BaseURL string
	Client  *http.Client
}

// New constructs a v1 backend against baseURL, defaulting to a 15s-timeout
// client when none is supplied.
func New(baseURL string, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Backend{BaseURL: baseURL, Client: client}
}

// Provision is a no-op for v1: the helper server provisions implicitly on
// first OTP fetch and does not expose a separate handshake.
func (b *Backend) Provision(ctx context.Context, state *anisette.State) error {
	return nil
}

// IsProvisioned always reports true for v1 since there is no local
// provisioning state to track; the helper owns that concern.
func (b *Backend) IsProvisioned(state *anisette.State, dsID int) bool {
	return true
}

// RequestOTP fetches the flat JSON header map from the helper server.
func (b *Backend) RequestOTP(ctx context.Context, state *anisette.State, dsID int) (anisette.OTPResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL, nil)
	if err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: helper returned status %d", resp.StatusCode)
	}

	var headers map[string]string
	if err := json.Unmarshal(body, &headers); err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: decode response: %w", err)
	}

	otp, ok := headers["X-Apple-I-MD"]
	if !ok {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: response missing X-Apple-I-MD")
	}
	mid, ok := headers["X-Apple-I-MD-M"]
	if !ok {
		return anisette.OTPResult{}, fmt.Errorf("remotev1: response missing X-Apple-I-MD-M")
	}

	return anisette.OTPResult{OTP: otp, MachineID: mid}, nil
}
