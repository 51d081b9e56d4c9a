package errfmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/gsa"
)

// ClassifiedError is an error message paired with an actionable hint for the
// terminal.
type ClassifiedError struct {
	Message string
	Hint    string
}

// Classify maps an error from the login/anisette stack to a hint a CLI user
// can act on. Unrecognized errors pass through with no hint.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	var badCode *gsa.ErrBad2FACode
	if errors.As(err, &badCode) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "Double check the six-digit code and try again; codes expire quickly.",
		}
	}

	var extraStep *gsa.ErrExtraStep
	if errors.As(err, &extraStep) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Apple requested the %q verification path, which this client does not automate.", extraStep.Step),
		}
	}

	var authMsg *gsa.ErrAuthSRPWithMessage
	if errors.As(err, &authMsg) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "Check the username and password; Apple rejected the login attempt.",
		}
	}

	var missingLib *anisette.ErrMissingLibraries
	if errors.As(err, &missingLib) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "Place libstoreservicescore.so under the configured library directory, or configure a remote anisette helper URL instead.",
		}
	}

	var invalidLib *anisette.ErrInvalidLibraryFormat
	if errors.As(err, &invalidLib) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "The native library build doesn't match what this client expects; try a remote anisette backend instead.",
		}
	}

	var notProvisioned *anisette.ErrNotProvisioned
	if errors.As(err, &notProvisioned) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "Provisioning could not complete; check network connectivity to the configured anisette backend.",
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassifiedError{
			Message: err.Error(),
			Hint:    "Increase the request timeout (e.g. set ASAUTH_TIMEOUT=60s).",
		}
	}

	return ClassifiedError{Message: err.Error()}
}

// FormatStderr renders a classified error the way the CLI writes to stderr.
func FormatStderr(err error) string {
	ce := Classify(err)
	if ce.Message == "" {
		return ""
	}
	if ce.Hint == "" {
		return fmt.Sprintf("Error: %s\n", ce.Message)
	}
	return fmt.Sprintf("Error: %s\nHint: %s\n", ce.Message, ce.Hint)
}
