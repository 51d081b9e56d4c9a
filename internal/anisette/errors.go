package anisette

import "fmt"

// ErrNotProvisioned signals a recoverable condition: the caller should clear
// the provisioning blob and reprovision once, then retry the request.
type ErrNotProvisioned struct {
	Reason string
}

func (e *ErrNotProvisioned) Error() string {
	if e.Reason == "" {
		return "anisette: device not provisioned"
	}
	return fmt.Sprintf("anisette: device not provisioned: %s", e.Reason)
}

// ErrMissingLibraries signals that LocalADI could not find the native
// library on disk at Path. No directory is created when this is returned.
type ErrMissingLibraries struct {
	Path string
}

func (e *ErrMissingLibraries) Error() string {
	return fmt.Sprintf("anisette: native library not found at %s", e.Path)
}

// ErrInvalidLibraryFormat signals a required obfuscated symbol could not be
// resolved from the loaded ELF image.
type ErrInvalidLibraryFormat struct {
	Symbol string
}

func (e *ErrInvalidLibraryFormat) Error() string {
	return fmt.Sprintf("anisette: invalid library format: symbol %q not found", e.Symbol)
}

// ErrServer is a fatal error reported by Apple's provisioning endpoints.
type ErrServer struct {
	Code        int
	Description string
}

func (e *ErrServer) Error() string {
	return fmt.Sprintf("anisette: server error %d: %s", e.Code, e.Description)
}

// ErrInvalidHeaderValue signals an attempt to reuse an OTP header set past
// its freshness window.
type ErrInvalidHeaderValue struct {
	Reason string
}

func (e *ErrInvalidHeaderValue) Error() string {
	return fmt.Sprintf("anisette: invalid header value: %s", e.Reason)
}
