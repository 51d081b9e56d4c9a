package anisette

import "context"

// OTPResult is the raw output of a backend's OTP request: a one-time
// password and a per-device machine identifier, before header assembly.
type OTPResult struct {
	OTP       string
	MachineID string
}

// Backend is the contract every ADI implementation (local, remote v1, remote
// v3) satisfies identically, so AnisetteProvider can wrap any of them.
type Backend interface {
	// Provision performs the two-step handshake with Apple that yields a
	// provisioning blob, storing it on state. Returns ErrNotProvisioned for
	// a recoverable failure, ErrServer for a fatal one.
	Provision(ctx context.Context, state *State) error

	// RequestOTP returns the current OTP/machine-id pair for dsID. Returns
	// ErrNotProvisioned if the blob was invalidated server-side.
	RequestOTP(ctx context.Context, state *State, dsID int) (OTPResult, error)

	// IsProvisioned is a pure predicate over state for dsID.
	IsProvisioned(state *State, dsID int) bool
}
