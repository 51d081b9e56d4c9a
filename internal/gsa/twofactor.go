package gsa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
)

const (
	trustedDeviceSendURL   = authVerifyBase + "/trusteddevice"
	trustedDeviceVerifyURL = "https://gsa.apple.com/grandslam/GsService2/validate"
	phoneSendURL           = authVerifyBase + "/phone/"
	phoneVerifyURL         = authVerifyBase + "/phone/securitycode"
)

// SendDeviceTwoFactor asks Apple to push the login prompt to the account's
// trusted devices. Must follow a Login call that returned
// StateNeedsDeviceTwoFactor.
func (c *Client) SendDeviceTwoFactor(ctx context.Context, cpd anisette.Headers) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trustedDeviceSendURL, nil)
	if err != nil {
		return err
	}
	c.decorate2FARequest(req, cpd)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gsa: send device 2fa: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrBad2FACode{}
	}
	return nil
}

// VerifyDeviceTwoFactor submits the code the user read off a trusted
// device. On success the caller should call Login again to re-drive INIT.
func (c *Client) VerifyDeviceTwoFactor(ctx context.Context, code string, cpd anisette.Headers) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trustedDeviceVerifyURL, nil)
	if err != nil {
		return err
	}
	c.decorate2FARequest(req, cpd)
	req.Header.Set("security-code", code)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gsa: verify device 2fa: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrBad2FACode{}
	}
	return nil
}

type phoneNumberRef struct {
	ID int `json:"id"`
}

type sendPhoneCodeRequest struct {
	PhoneNumber phoneNumberRef `json:"phoneNumber"`
	Mode        string         `json:"mode"`
}

type verifyPhoneCodeRequest struct {
	PhoneNumber  phoneNumberRef `json:"phoneNumber"`
	Mode         string         `json:"mode"`
	SecurityCode struct {
		Code string `json:"code"`
	} `json:"securityCode"`
}

// SendSMSTwoFactor requests a one-time code by SMS to the trusted phone
// number identified by phoneID (1 for the account's primary number absent
// other information).
func (c *Client) SendSMSTwoFactor(ctx context.Context, phoneID int, cpd anisette.Headers) error {
	payload, err := json.Marshal(sendPhoneCodeRequest{PhoneNumber: phoneNumberRef{ID: phoneID}, Mode: "sms"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, phoneSendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.decorate2FARequest(req, cpd)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gsa: send sms 2fa: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrBad2FACode{}
	}
	return nil
}

// VerifySMSTwoFactor submits the SMS code. On success the caller should
// call Login again to re-drive INIT.
func (c *Client) VerifySMSTwoFactor(ctx context.Context, phoneID int, code string, cpd anisette.Headers) error {
	body := verifyPhoneCodeRequest{PhoneNumber: phoneNumberRef{ID: phoneID}, Mode: "sms"}
	body.SecurityCode.Code = code
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, phoneVerifyURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.decorate2FARequest(req, cpd)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gsa: verify sms 2fa: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrBad2FACode{}
	}
	return nil
}

func (c *Client) decorate2FARequest(req *http.Request, cpd anisette.Headers) {
	req.Header.Set("User-Agent", twoFAUserAgent)
	req.Header.Set("Accept", "application/x-buddyml, application/viewer-html+xml")
	req.Header.Set("Loc", "en_US")
	for k, v := range cpd.Normalize() {
		req.Header.Set(k, v)
	}
	if c.identityTok != "" {
		req.Header.Set("X-Apple-Identity-Token", c.identityTok)
	}
}
