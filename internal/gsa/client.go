// Package gsa implements the GrandSlam Authentication SRP-6a login state
// machine: INIT/CHALLENGE rounds, SPD decryption, 2FA, and app-token
// issuance.
package gsa

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

const (
	gsaServiceURL  = "https://gsa.apple.com/grandslam/GsService2"
	authVerifyBase = "https://gsa.apple.com/auth/verify"

	loginUserAgent = "akd/1.0 CFNetwork/978.0.7 Darwin/18.7.0"
	twoFAUserAgent = "Xcode"
)

// State is the terminal or intermediate outcome of a login round.
type State int

const (
	StateInit State = iota
	StateChallenge
	StateAuthenticated
	StateNeedsDeviceTwoFactor
	StateNeedsSMSTwoFactor
	StateNeedsExtraStep
	StateFailed
)

// Client drives the GSA SRP-6a state machine for one username across the
// lifetime of a login attempt plus any follow-on 2FA/app-token calls.
type Client struct {
	HTTPClient *http.Client

	username string
	srp      *srpSession
	session  string // continuation token `c`

	spd         plist.Dict
	adsid       string
	identityTok string // base64(adsid + ":" + GsIdmsToken)

	extraStep string
}

// NewClient constructs a Client. rootCAPEM, when non-empty, pins the HTTP
// transport to exactly that certificate authority; an empty value falls
// back to the host's trust store (acceptable for community helper
// deployments that do not ship Apple's bundled root).
func NewClient(rootCAPEM []byte) (*Client, error) {
	transport := &http.Transport{}
	if len(rootCAPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(rootCAPEM) {
			return nil, fmt.Errorf("gsa: failed to parse pinned root certificate")
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}, nil
}

// Login drives INIT then CHALLENGE for username/password, returning the
// terminal or 2FA-required state. Call SendDeviceTwoFactor/
// VerifyDeviceTwoFactor (or the SMS equivalents) when a 2FA state is
// returned, then call Login again with the same credentials to re-drive
// from INIT.
func (c *Client) Login(ctx context.Context, username, password string, cpd anisette.Headers) (State, error) {
	c.username = strings.TrimSpace(username)

	session, err := newSRPSession()
	if err != nil {
		return StateFailed, err
	}
	c.srp = session

	initResp, err := c.initRound(ctx, cpd)
	if err != nil {
		return StateFailed, err
	}

	salt, err := base64.StdEncoding.DecodeString(initResp.salt)
	if err != nil {
		return StateFailed, &ErrParse{Reason: "invalid salt encoding"}
	}
	serverB, err := base64.StdEncoding.DecodeString(initResp.serverB)
	if err != nil {
		return StateFailed, &ErrParse{Reason: "invalid server B encoding"}
	}
	c.srp.salt = salt
	c.srp.serverB = serverB

	preparedPassword, err := preparePassword(password, initResp.protocol)
	if err != nil {
		return StateFailed, err
	}
	derivedPassword := pbkdf2Key(preparedPassword, salt, initResp.iterations, srpDerivedPasswordLen)

	m1, m2, err := c.srp.proof(c.username, derivedPassword)
	if err != nil {
		return StateFailed, err
	}

	return c.challengeRound(ctx, m1, m2, initResp.continuation, cpd)
}

type initResponse struct {
	salt         string
	serverB      string
	iterations   int
	protocol     string
	continuation string
}

func (c *Client) initRound(ctx context.Context, cpd anisette.Headers) (initResponse, error) {
	body := plist.Dict{
		"A2k": c.srp.A.Bytes(),
		"cpd": cpd.CPD(),
		"o":   "init",
		"ps":  []string{"s2k", "s2k_fo"},
		"u":   c.username,
	}
	resp, status, err := c.post(ctx, body, cpd, loginUserAgent, nil)
	if err != nil {
		return initResponse{}, err
	}
	if status.EC != 0 {
		return initResponse{}, &ErrAuthSRPWithMessage{EC: status.EC, EM: status.EM}
	}

	salt, ok := resp.String("s")
	if !ok {
		return initResponse{}, &ErrParse{Reason: "init response missing s"}
	}
	serverB, ok := resp.String("B")
	if !ok {
		return initResponse{}, &ErrParse{Reason: "init response missing B"}
	}
	iters, ok := resp.Int("i")
	if !ok {
		return initResponse{}, &ErrParse{Reason: "init response missing i"}
	}
	continuation, _ := resp.String("c")
	protocol, ok := resp.String("sp")
	if !ok {
		protocol = "s2k"
	}

	return initResponse{salt: salt, serverB: serverB, iterations: int(iters), protocol: protocol, continuation: continuation}, nil
}

func (c *Client) challengeRound(ctx context.Context, m1, m2, continuation string, cpd anisette.Headers) (State, error) {
	m1Bytes, err := hex.DecodeString(m1)
	if err != nil {
		return StateFailed, &ErrParse{Reason: "invalid m1 encoding"}
	}

	body := plist.Dict{
		"M1":  m1Bytes,
		"c":   continuation,
		"cpd": cpd.CPD(),
		"o":   "complete",
		"u":   c.username,
	}
	resp, status, err := c.post(ctx, body, cpd, loginUserAgent, nil)
	if err != nil {
		return StateFailed, err
	}
	if status.EC != 0 {
		return StateFailed, &ErrAuthSRPWithMessage{EC: status.EC, EM: status.EM}
	}

	serverM2Bytes, ok := resp.Data("M2")
	if !ok {
		return StateFailed, &ErrParse{Reason: "challenge response missing M2"}
	}
	if hex.EncodeToString(serverM2Bytes) != m2 {
		return StateFailed, &ErrAuthSRP{Reason: "server proof M2 mismatch"}
	}

	spdBlob, ok := resp.Data("spd")
	if !ok {
		return StateFailed, &ErrParse{Reason: "challenge response missing spd"}
	}
	k, err := c.srp.sharedKey()
	if err != nil {
		return StateFailed, err
	}
	spd, err := decryptSPD(spdBlob, k)
	if err != nil {
		return StateFailed, err
	}
	c.spd = spd
	c.session = continuation

	if adsid, ok := spd.String("adsid"); ok {
		c.adsid = adsid
	}
	if token, ok := spd.String("GsIdmsToken"); ok && c.adsid != "" {
		c.identityTok = base64.StdEncoding.EncodeToString([]byte(c.adsid + ":" + token))
	}

	switch status.AU {
	case "":
		return StateAuthenticated, nil
	case "trustedDeviceSecondaryAuth":
		return StateNeedsDeviceTwoFactor, nil
	case "secondaryAuth":
		return StateNeedsSMSTwoFactor, nil
	default:
		c.extraStep = status.AU
		return StateNeedsExtraStep, &ErrExtraStep{Step: status.AU}
	}
}

// ExtraStep returns the raw `au` tag when Login returned StateNeedsExtraStep.
func (c *Client) ExtraStep() string { return c.extraStep }

// SPD returns the decrypted secure payload dictionary after a successful
// login; nil before authentication completes.
func (c *Client) SPD() plist.Dict { return c.spd }

// ADSID returns the authenticated user's numeric Apple ID once known.
func (c *Client) ADSID() string { return c.adsid }

// PET returns the primary encryption token extracted from the SPD, along
// with its expiry when present (the source leaves this field unchecked, so
// absence is not an error).
func (c *Client) PET() (token string, expiresAt *time.Time, ok bool) {
	if c.spd == nil {
		return "", nil, false
	}
	t, ok := c.spd.Dict("t")
	if !ok {
		return "", nil, false
	}
	pet, ok := t.Dict("com.apple.gs.idms.pet")
	if !ok {
		return "", nil, false
	}
	token, ok = pet.String("token")
	if !ok {
		return "", nil, false
	}
	if exp, ok := pet.Int("expires_at"); ok {
		t := time.Unix(exp, 0).UTC()
		return token, &t, true
	}
	return token, nil, true
}

func (c *Client) post(ctx context.Context, request plist.Dict, cpd anisette.Headers, userAgent string, extraHeaders map[string]string) (plist.Dict, plist.GSAStatus, error) {
	body, err := plist.Encode(map[string]any{
		"Header":  plist.Dict{"Version": "1.0.1"},
		"Request": request,
	})
	if err != nil {
		return nil, plist.GSAStatus{}, err
	}

	req, err := newPlistRequest(ctx, http.MethodPost, gsaServiceURL, body)
	if err != nil {
		return nil, plist.GSAStatus{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range cpd.Normalize() {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if c.identityTok != "" {
		req.Header.Set("X-Apple-Identity-Token", c.identityTok)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, plist.GSAStatus{}, fmt.Errorf("gsa: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readAll(resp.Body)
	if err != nil {
		return nil, plist.GSAStatus{}, err
	}

	return plist.GSAResponse(respBody)
}
