package gsa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

// AppToken is a signed, app-scoped credential returned by the apptokens
// operation.
type AppToken struct {
	AppName string
	Token   string
	Expiry  string // verbatim Apple value; format varies by app and is not validated here.
}

// AppTokens requests app-scoped tokens for the given app names. It returns
// both the typed tokens it could parse and the raw response dictionary,
// since Apple's apptokens response shape varies by app and the source this
// was distilled from never finished parsing it.
func (c *Client) AppTokens(ctx context.Context, appNames []string, cpd anisette.Headers) ([]AppToken, plist.Dict, error) {
	if c.adsid == "" {
		return nil, nil, fmt.Errorf("gsa: app tokens requested before authentication")
	}
	sk, ok := c.spd.Data("sk")
	if !ok {
		return nil, nil, fmt.Errorf("gsa: session key (sk) missing from spd")
	}
	idmsToken, ok := c.spd.String("GsIdmsToken")
	if !ok {
		return nil, nil, fmt.Errorf("gsa: GsIdmsToken missing from spd")
	}

	apps := make([]any, len(appNames))
	for i, name := range appNames {
		apps[i] = name
	}

	body := plist.Dict{
		"app":      apps,
		"c":        c.session,
		"cpd":      cpd.CPD(),
		"o":        "apptokens",
		"t":        idmsToken,
		"u":        c.adsid,
		"checksum": appTokenChecksum(sk, c.adsid, appNames),
	}

	resp, status, err := c.post(ctx, body, cpd, loginUserAgent, nil)
	if err != nil {
		return nil, nil, err
	}
	if status.EC != 0 {
		return nil, resp, &ErrAuthSRPWithMessage{EC: status.EC, EM: status.EM}
	}

	tokens, ok := resp.Dict("t")
	if !ok {
		return nil, resp, nil
	}
	var out []AppToken
	for _, name := range appNames {
		entry, ok := tokens.Dict(name)
		if !ok {
			continue
		}
		token, _ := entry.String("token")
		expiry, _ := entry.String("expiry")
		out = append(out, AppToken{AppName: name, Token: token, Expiry: expiry})
	}
	return out, resp, nil
}

// appTokenChecksum computes HMAC-SHA256(sk, "apptokens" || adsid ||
// app_name) concatenated in wire order for each requested app.
func appTokenChecksum(sk []byte, adsid string, appNames []string) []byte {
	mac := hmac.New(sha256.New, sk)
	mac.Write([]byte("apptokens"))
	mac.Write([]byte(adsid))
	for _, name := range appNames {
		mac.Write([]byte(name))
	}
	return mac.Sum(nil)
}
