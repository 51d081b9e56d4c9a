// Package account implements AppleAccount: the public façade composing an
// AnisetteProvider and a GSAClient into a single login/2FA/app-token API
// driven by caller-supplied credential and code callbacks.
package account

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/gsa"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

// CredentialPrompt returns the username/password to authenticate with,
// called once at the start of a login attempt; the same credentials are
// reused when a successful 2FA verification re-drives INIT.
type CredentialPrompt func(ctx context.Context) (username, password string, err error)

// CodePrompt returns the 2FA code the user read off a device or received by
// SMS.
type CodePrompt func(ctx context.Context) (code string, err error)

// AppleAccount is the authenticated session: an anisette provider plus the
// decrypted SPD from a successful SRP challenge.
type AppleAccount struct {
	anisette *anisette.Provider
	gsa      *gsa.Client
}

// Login drives the GSA state machine to a terminal state, invoking
// promptCredentials at the start and promptCode whenever a 2FA state is
// reached, re-driving INIT after each successful verification. It returns an
// authenticated AppleAccount or the terminal error.
func Login(ctx context.Context, anisetteProvider *anisette.Provider, rootCAPEM []byte, promptCredentials CredentialPrompt, promptCode CodePrompt) (*AppleAccount, error) {
	client, err := gsa.NewClient(rootCAPEM)
	if err != nil {
		return nil, err
	}

	username, password, err := promptCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: credential prompt: %w", err)
	}

	for {
		headers, err := anisetteProvider.Headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("account: anisette headers: %w", err)
		}

		state, loginErr := client.Login(ctx, username, password, headers)
		switch state {
		case gsa.StateAuthenticated:
			return &AppleAccount{anisette: anisetteProvider, gsa: client}, nil

		case gsa.StateNeedsDeviceTwoFactor:
			if err := client.SendDeviceTwoFactor(ctx, headers); err != nil {
				return nil, err
			}
			code, err := promptCode(ctx)
			if err != nil {
				return nil, fmt.Errorf("account: code prompt: %w", err)
			}
			if err := client.VerifyDeviceTwoFactor(ctx, code, headers); err != nil {
				return nil, err
			}
			continue

		case gsa.StateNeedsSMSTwoFactor:
			const primaryPhoneID = 1
			if err := client.SendSMSTwoFactor(ctx, primaryPhoneID, headers); err != nil {
				return nil, err
			}
			code, err := promptCode(ctx)
			if err != nil {
				return nil, fmt.Errorf("account: code prompt: %w", err)
			}
			if err := client.VerifySMSTwoFactor(ctx, primaryPhoneID, code, headers); err != nil {
				return nil, err
			}
			continue

		case gsa.StateNeedsExtraStep:
			return nil, loginErr

		default:
			return nil, loginErr
		}
	}
}

// GetPET returns the primary encryption token extracted from the account's
// SPD, along with its expiry when Apple included one.
func (a *AppleAccount) GetPET() (token string, expiresAt *time.Time, ok bool) {
	return a.gsa.PET()
}

// GetAppToken requests a single app-scoped token. Concurrent calls on the
// same account are safe: each computes its own checksum over the shared
// session key.
func (a *AppleAccount) GetAppToken(ctx context.Context, appName string) (gsa.AppToken, error) {
	headers, err := a.anisette.Headers(ctx)
	if err != nil {
		return gsa.AppToken{}, err
	}
	tokens, _, err := a.gsa.AppTokens(ctx, []string{appName}, headers)
	if err != nil {
		return gsa.AppToken{}, err
	}
	for _, t := range tokens {
		if t.AppName == appName {
			return t, nil
		}
	}
	return gsa.AppToken{}, fmt.Errorf("account: app token for %q not present in response", appName)
}

// SPD returns the decrypted secure payload dictionary for callers that need
// fields this package does not surface directly (e.g. authExtras).
func (a *AppleAccount) SPD() plist.Dict { return a.gsa.SPD() }

// ADSID returns the authenticated user's numeric Apple ID.
func (a *AppleAccount) ADSID() string { return a.gsa.ADSID() }

// ListTrustedPhoneNumbers fetches the account's registered 2FA phone
// numbers via the same auth surface used to drive SMS 2FA. Apple returns
// this as part of the /auth overview page rather than a dedicated JSON
// endpoint; this client issues the same GET a browser-based flow would and
// leaves parsing to the caller via the raw response, since the shape is
// HTML/BuddyML and not a documented JSON contract.
func (a *AppleAccount) ListTrustedPhoneNumbers(ctx context.Context, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://gsa.apple.com/auth", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-buddyml, application/viewer-html+xml")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account: list trusted phones: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
