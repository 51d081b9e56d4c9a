package gsa

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/1Password/srp"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

// redirectTransport rewrites every outgoing request's scheme/host to target,
// so a Client built against the hardcoded gsa.apple.com URL can be driven
// against an httptest.Server instead.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testHeaders() anisette.Headers {
	return anisette.Headers{
		"X-Apple-I-MD":       "fake-otp",
		"X-Apple-I-MD-M":     "fake-machine-id",
		"X-Apple-I-MD-RINFO": "17106176",
		"X-Apple-I-MD-LU":    "fake-local-user",
		"X-Apple-I-SRL-NO":   "0",
		"X-Mme-Client-Info":  anisette.ClientInfo,
		"X-Mme-Device-Id":    "fake-device-id",
	}
}

// srpServerFixture plays the server half of an SRP-6a exchange for a known
// username/password pair, so Client.Login can be exercised end to end
// against an httptest.Server without a live GSA endpoint.
type srpServerFixture struct {
	n, g *big.Int

	username   string
	salt       []byte
	iterations int
	v          *big.Int

	b *big.Int
	B *big.Int
}

func newSRPServerFixture(t *testing.T, username, password string) *srpServerFixture {
	t.Helper()
	group := srp.KnownGroups[srp.RFC5054Group2048]
	n := group.N()
	g := group.Generator()

	salt := []byte("0123456789abcdef")
	iterations := 1000

	preparedPassword, err := preparePassword(password, "s2k")
	if err != nil {
		t.Fatalf("preparePassword: %v", err)
	}
	derivedPassword := pbkdf2Key(preparedPassword, salt, iterations, srpDerivedPasswordLen)
	x, err := calcXHex(hex.EncodeToString(derivedPassword), hex.EncodeToString(salt))
	if err != nil {
		t.Fatalf("calcXHex: %v", err)
	}
	v := new(big.Int).Exp(g, x, n)

	b := new(big.Int).SetInt64(0x1234567890abcdef)
	k, err := calcK(n, g)
	if err != nil {
		t.Fatalf("calcK: %v", err)
	}
	gb := new(big.Int).Exp(g, b, n)
	kv := new(big.Int).Mul(k, v)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, n)

	return &srpServerFixture{
		n: n, g: g,
		username: username, salt: salt, iterations: iterations, v: v,
		b: b, B: B,
	}
}

// sharedKeyHex computes K the same way the server side of SRP-6a would,
// given the client's public value A.
func (f *srpServerFixture) sharedKeyHex(A *big.Int) (string, error) {
	aHex := numToHex(A)
	bHex := numToHex(f.B)
	u, err := calcU(f.n, aHex, bHex)
	if err != nil {
		return "", err
	}
	vu := new(big.Int).Exp(f.v, u, f.n)
	avu := new(big.Int).Mul(A, vu)
	avu.Mod(avu, f.n)
	S := new(big.Int).Exp(avu, f.b, f.n)
	return shaHex(numToHex(S))
}

func writePlistResponse(t *testing.T, w http.ResponseWriter, body plist.Dict) {
	t.Helper()
	encoded, err := plist.Encode(map[string]any(body))
	if err != nil {
		t.Fatalf("encode response plist: %v", err)
	}
	w.Header().Set("Content-Type", "text/x-xml-plist")
	w.Write(encoded)
}

func newRedirectedClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	client.HTTPClient = &http.Client{Transport: redirectTransport{target: serverURL}}
	return client
}

// TestClientLoginAuthenticated drives a full INIT/CHALLENGE round trip
// against a mock GSA server playing the SRP-6a server role for a known
// username/password, the same cross-check the srp_test.go shared-key test
// performs but exercised through Client.Login's actual HTTP/plist wiring.
func TestClientLoginAuthenticated(t *testing.T) {
	const username = "user@example.com"
	const password = "correct horse battery staple"

	fixture := newSRPServerFixture(t, username, password)

	spdPlaintext := plist.Dict{
		"adsid":       "1234567890",
		"GsIdmsToken": "idms-token-abc",
		"t": plist.Dict{
			"com.apple.gs.idms.pet": plist.Dict{
				"token": "pet-token-xyz",
			},
		},
	}

	var capturedA *big.Int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readAll(r.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		root, err := plist.Decode(body)
		if err != nil {
			t.Fatalf("decode request plist: %v", err)
		}
		reqDict, ok := root.Dict("Request")
		if !ok {
			t.Fatalf("request missing Request dict")
		}

		op, _ := reqDict.String("o")
		switch op {
		case "init":
			aBytes, ok := reqDict.Data("A2k")
			if !ok {
				t.Fatalf("init request missing A2k")
			}
			capturedA = new(big.Int).SetBytes(aBytes)

			writePlistResponse(t, w, plist.Dict{
				"Header": plist.Dict{"Version": "1.0.1"},
				"Response": plist.Dict{
					"Status": plist.Dict{"ec": int64(0), "em": "", "au": ""},
					"s":      base64.StdEncoding.EncodeToString(fixture.salt),
					"B":      base64.StdEncoding.EncodeToString(fixture.B.Bytes()),
					"i":      int64(fixture.iterations),
					"sp":     "s2k",
					"c":      "continuation-token",
				},
			})

		case "complete":
			if capturedA == nil {
				t.Fatalf("complete received before init")
			}
			kHex, err := fixture.sharedKeyHex(capturedA)
			if err != nil {
				t.Fatalf("server sharedKeyHex: %v", err)
			}
			aHex := numToHex(capturedA)
			bHex := numToHex(fixture.B)
			m1Hex, err := calcM(fixture.n, fixture.g, username, hex.EncodeToString(fixture.salt), aHex, bHex, kHex)
			if err != nil {
				t.Fatalf("server calcM: %v", err)
			}
			m2Hex, err := calcHAMK(aHex, m1Hex, kHex)
			if err != nil {
				t.Fatalf("server calcHAMK: %v", err)
			}

			receivedM1, ok := reqDict.Data("M1")
			if !ok {
				t.Fatalf("complete request missing M1")
			}
			if hex.EncodeToString(receivedM1) != m1Hex {
				t.Fatalf("client M1 = %x, want %s", receivedM1, m1Hex)
			}

			kBytes, err := hex.DecodeString(kHex)
			if err != nil {
				t.Fatalf("decode server K: %v", err)
			}
			spdEncoded, err := plist.Encode(map[string]any(spdPlaintext))
			if err != nil {
				t.Fatalf("encode spd plaintext: %v", err)
			}
			spdBlob, err := encryptSPD(spdEncoded, kBytes)
			if err != nil {
				t.Fatalf("encryptSPD: %v", err)
			}
			m2Bytes, err := hex.DecodeString(m2Hex)
			if err != nil {
				t.Fatalf("decode m2: %v", err)
			}

			writePlistResponse(t, w, plist.Dict{
				"Header": plist.Dict{"Version": "1.0.1"},
				"Response": plist.Dict{
					"Status": plist.Dict{"ec": int64(0), "em": "", "au": ""},
					"M2":     m2Bytes,
					"spd":    spdBlob,
				},
			})

		default:
			t.Fatalf("unexpected operation %q", op)
		}
	}))
	defer server.Close()

	client := newRedirectedClient(t, server)

	state, err := client.Login(context.Background(), username, password, testHeaders())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if state != StateAuthenticated {
		t.Fatalf("Login state = %v, want StateAuthenticated", state)
	}

	if client.ADSID() != "1234567890" {
		t.Errorf("ADSID() = %q, want %q", client.ADSID(), "1234567890")
	}
	token, _, ok := client.PET()
	if !ok || token != "pet-token-xyz" {
		t.Errorf("PET() = (%q, ok=%v), want (%q, true)", token, ok, "pet-token-xyz")
	}
}

// TestClientLoginAppleError verifies an ec != 0 init response surfaces as
// ErrAuthSRPWithMessage rather than a generic parse failure.
func TestClientLoginAppleError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePlistResponse(t, w, plist.Dict{
			"Header": plist.Dict{"Version": "1.0.1"},
			"Response": plist.Dict{
				"Status": plist.Dict{"ec": int64(-20101), "em": "Invalid username or password", "au": ""},
			},
		})
	}))
	defer server.Close()

	client := newRedirectedClient(t, server)

	_, err := client.Login(context.Background(), "user@example.com", "wrong-password", testHeaders())
	var authErr *ErrAuthSRPWithMessage
	if !errors.As(err, &authErr) {
		t.Fatalf("Login error = %v, want *ErrAuthSRPWithMessage", err)
	}
	if authErr.EC != -20101 {
		t.Errorf("EC = %d, want -20101", authErr.EC)
	}
}
