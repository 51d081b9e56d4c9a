// Package remotev3 implements the RemoteADIv3 backend: Apple's provisioning
// endpoints are reached from this process, but the stateful ADI library
// calls are delegated to a remote helper over a WebSocket split-trust
// protocol.
package remotev3

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

const (
	lookupURL = "https://gsa.apple.com/grandslam/GsService2/lookup"
)

// Backend is the RemoteADIv3 ADIBackend implementation.
type Backend struct {
	BaseURL string
	Client  *http.Client

	clientInfo string
	userAgent  string
}

// New constructs a v3 backend against baseURL (e.g. "https://ani.f1sh.me").
func New(baseURL string, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: client}
}

func (b *Backend) fetchClientInfo(ctx context.Context) error {
	if b.clientInfo != "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/v3/client_info", nil)
	if err != nil {
		return err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("remotev3: client_info: %w", err)
	}
	defer resp.Body.Close()

	var info struct {
		ClientInfo string `json:"client_info"`
		UserAgent  string `json:"user_agent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("remotev3: decode client_info: %w", err)
	}
	b.clientInfo = info.ClientInfo
	b.userAgent = info.UserAgent
	return nil
}

func (b *Backend) buildAppleRequest(ctx context.Context, method, url string, body []byte, state *anisette.State) (*http.Request, error) {
	identity, err := state.Derive(anisette.DefaultSerialNumber)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Mme-Client-Info", b.clientInfo)
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Content-Type", "text/x-xml-plist")
	req.Header.Set("X-Apple-I-MD-LU", identity.LocalUserUUID)
	req.Header.Set("X-Mme-Device-Id", identity.DeviceIdentifier)
	return req, nil
}

// Provision runs the split-trust provisioning handshake: Apple's lookup and
// start/end provisioning POSTs happen here, while the stateful library calls
// are relayed to the helper over a WebSocket.
func (b *Backend) Provision(ctx context.Context, state *anisette.State) error {
	if err := b.fetchClientInfo(ctx); err != nil {
		return err
	}

	lookupReq, err := b.buildAppleRequest(ctx, http.MethodGet, lookupURL, nil, state)
	if err != nil {
		return err
	}
	lookupResp, err := b.Client.Do(lookupReq)
	if err != nil {
		return fmt.Errorf("remotev3: lookup: %w", err)
	}
	lookupBody, err := io.ReadAll(lookupResp.Body)
	lookupResp.Body.Close()
	if err != nil {
		return fmt.Errorf("remotev3: read lookup response: %w", err)
	}

	lookup, err := plist.Decode(lookupBody)
	if err != nil {
		return fmt.Errorf("remotev3: parse lookup response: %w", err)
	}
	urls, ok := lookup.Dict("urls")
	if !ok {
		return fmt.Errorf("remotev3: lookup response missing urls")
	}
	startURL, ok := urls.String("midStartProvisioning")
	if !ok {
		return fmt.Errorf("remotev3: lookup response missing midStartProvisioning")
	}
	endURL, ok := urls.String("midFinishProvisioning")
	if !ok {
		return fmt.Errorf("remotev3: lookup response missing midFinishProvisioning")
	}

	wsURL := strings.Replace(b.BaseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/v3/provisioning_session"

	ws, err := dialWebSocket(wsURL)
	if err != nil {
		return fmt.Errorf("remotev3: connect provisioning session: %w", err)
	}
	defer ws.Close()

	for {
		msg, err := ws.readMessage()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("remotev3: provisioning session closed unexpectedly")
			}
			return fmt.Errorf("remotev3: read provisioning message: %w", err)
		}

		var tagged struct {
			Result string `json:"result"`
			CPIM   string `json:"cpim"`
			ADIPB  string `json:"adi_pb"`
		}
		if err := json.Unmarshal(msg, &tagged); err != nil {
			return fmt.Errorf("remotev3: decode provisioning message: %w", err)
		}

		switch tagged.Result {
		case "GiveIdentifier":
			reply, _ := json.Marshal(map[string]string{
				"identifier": base64.StdEncoding.EncodeToString(state.Identifier),
			})
			if err := ws.writeText(reply); err != nil {
				return err
			}

		case "GiveStartProvisioningData":
			body, err := plist.Encode(map[string]any{
				"Header":  plist.Dict{},
				"Request": plist.Dict{},
			})
			if err != nil {
				return err
			}
			req, err := b.buildAppleRequest(ctx, http.MethodPost, startURL, body, state)
			if err != nil {
				return err
			}
			resp, err := b.Client.Do(req)
			if err != nil {
				return fmt.Errorf("remotev3: start provisioning: %w", err)
			}
			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return err
			}
			inner, _, err := plist.GSAResponse(respBody)
			if err != nil {
				return fmt.Errorf("remotev3: parse start provisioning response: %w", err)
			}
			spim, ok := inner.String("spim")
			if !ok {
				return fmt.Errorf("remotev3: start provisioning response missing spim")
			}
			reply, _ := json.Marshal(map[string]string{"spim": spim})
			if err := ws.writeText(reply); err != nil {
				return err
			}

		case "GiveEndProvisioningData":
			body, err := plist.Encode(map[string]any{
				"Header":  plist.Dict{},
				"Request": plist.Dict{"cpim": tagged.CPIM},
			})
			if err != nil {
				return err
			}
			req, err := b.buildAppleRequest(ctx, http.MethodPost, endURL, body, state)
			if err != nil {
				return err
			}
			resp, err := b.Client.Do(req)
			if err != nil {
				return fmt.Errorf("remotev3: end provisioning: %w", err)
			}
			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return err
			}
			inner, _, err := plist.GSAResponse(respBody)
			if err != nil {
				return fmt.Errorf("remotev3: parse end provisioning response: %w", err)
			}
			ptm, ok := inner.String("ptm")
			if !ok {
				return fmt.Errorf("remotev3: end provisioning response missing ptm")
			}
			tk, ok := inner.String("tk")
			if !ok {
				return fmt.Errorf("remotev3: end provisioning response missing tk")
			}
			reply, _ := json.Marshal(map[string]string{"ptm": ptm, "tk": tk})
			if err := ws.writeText(reply); err != nil {
				return err
			}

		case "ProvisioningSuccess":
			blob, err := base64.StdEncoding.DecodeString(tagged.ADIPB)
			if err != nil {
				return fmt.Errorf("remotev3: decode adi_pb: %w", err)
			}
			return state.SetProvisioning(blob)

		default:
			return fmt.Errorf("remotev3: unexpected provisioning message %q", tagged.Result)
		}
	}
}

// IsProvisioned reports whether a provisioning blob is present in state.
func (b *Backend) IsProvisioned(state *anisette.State, dsID int) bool {
	return state.IsProvisioned()
}

// RequestOTP fetches a fresh OTP set via POST /v3/get_headers.
func (b *Backend) RequestOTP(ctx context.Context, state *anisette.State, dsID int) (anisette.OTPResult, error) {
	if err := b.fetchClientInfo(ctx); err != nil {
		return anisette.OTPResult{}, err
	}
	if !state.IsProvisioned() {
		return anisette.OTPResult{}, &anisette.ErrNotProvisioned{Reason: "no adi_pb"}
	}

	body, err := json.Marshal(map[string]string{
		"identifier": base64.StdEncoding.EncodeToString(state.Identifier),
		"adi_pb":     base64.StdEncoding.EncodeToString(state.ADIPB),
	})
	if err != nil {
		return anisette.OTPResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/v3/get_headers", strings.NewReader(string(body)))
	if err != nil {
		return anisette.OTPResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev3: get_headers: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return anisette.OTPResult{}, err
	}

	var tagged struct {
		Result      string `json:"result"`
		Message     string `json:"message"`
		MachineID   string `json:"X-Apple-I-MD-M"`
		OTP         string `json:"X-Apple-I-MD"`
		RoutingInfo string `json:"X-Apple-I-MD-RINFO"`
	}
	if err := json.Unmarshal(respBody, &tagged); err != nil {
		return anisette.OTPResult{}, fmt.Errorf("remotev3: decode get_headers response: %w", err)
	}

	if tagged.Result == "GetHeadersError" {
		if strings.Contains(tagged.Message, "-45061") {
			return anisette.OTPResult{}, &anisette.ErrNotProvisioned{Reason: tagged.Message}
		}
		return anisette.OTPResult{}, fmt.Errorf("remotev3: get_headers error: %s", tagged.Message)
	}

	return anisette.OTPResult{OTP: tagged.OTP, MachineID: tagged.MachineID}, nil
}
