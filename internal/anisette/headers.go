package anisette

import (
	"strings"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/plist"
)

// DSID is the machine sentinel used for provisioning and OTP requests; it is
// never a real user identifier.
const DSID = -2

// ClientInfo is the fixed string emulating a real Mac running Xcode's
// AuthKit, sent as X-Mme-Client-Info on every Apple-bound request.
const ClientInfo = `<MacBookPro13,2> <macOS;13.1;22C65> <com.apple.AuthKit/1 (com.apple.dt.Xcode/3594.4.19)>`

// UserAgent is the fixed akd user agent string used for provisioning and OTP
// requests against gsa.apple.com.
const UserAgent = "akd/1.0 CFNetwork/808.1.4"

const (
	headerMD       = "X-Apple-I-MD"
	headerMDM      = "X-Apple-I-MD-M"
	headerMDRINFO  = "X-Apple-I-MD-RINFO"
	headerMDLU     = "X-Apple-I-MD-LU"
	headerSRLNO    = "X-Apple-I-SRL-NO"
	headerClientBad = "X-MMe-Client-Info"
	headerClient    = "X-Mme-Client-Info"
	headerDeviceID  = "X-Mme-Device-Id"
	headerTime      = "X-Apple-I-Client-Time"
	headerTimeZone  = "X-Apple-I-TimeZone"
	headerLocale    = "X-Apple-Locale"

	mdRINFOConstant = "17106176"
	defaultLocale   = "en_US"
)

// Headers is the normalized Anisette header set, stable except for the two
// one-time values (X-Apple-I-MD, X-Apple-I-MD-M).
type Headers map[string]string

// Normalize returns a copy of h with any X-MMe-Client-Info casing variant
// renamed to the canonical X-Mme-Client-Info key. Normalize is idempotent.
func (h Headers) Normalize() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		if strings.EqualFold(k, headerClientBad) {
			out[headerClient] = v
			continue
		}
		out[k] = v
	}
	return out
}

// Build assembles the full Anisette header set from OTP output, derived
// device identity, and the current time.
func Build(identity DeviceIdentity, otp, machineID string, now time.Time) Headers {
	h := Headers{
		headerMD:      otp,
		headerMDM:     machineID,
		headerMDRINFO: mdRINFOConstant,
		headerMDLU:    identity.LocalUserUUID,
		headerSRLNO:   identity.SerialNumber,
		headerClient:  ClientInfo,
		headerDeviceID: identity.DeviceIdentifier,
		headerTime:     now.UTC().Format("2006-01-02T15:04:05Z"),
		headerTimeZone: "UTC",
		headerLocale:   defaultLocale,
	}
	return h.Normalize()
}

// CPD renders the header set plus bootstrap flags as the "client protocol
// data" dictionary embedded in SRP request bodies. X-Apple-I-MD-RINFO is
// emitted as an integer there, unlike in the HTTP header form.
func (h Headers) CPD() plist.Dict {
	norm := h.Normalize()
	cpd := plist.Dict{
		"bootstrap": true,
		"icscrec":   true,
		"loc":       "en_GB",
		"pbe":       false,
		"prkgen":    true,
		"svct":      "iCloud",
	}
	for k, v := range norm {
		if k == headerMDRINFO {
			cpd[k] = int64(17106176)
			continue
		}
		cpd[k] = v
	}
	return cpd
}

// defaultStaleAfter and defaultFreshnessWindow are the documented freshness
// thresholds: an OTP set generated at T is fetched fresh again once it is
// older than defaultStaleAfter, and must never be used past
// defaultFreshnessWindow.
const (
	defaultStaleAfter     = 60 * time.Second
	defaultFreshnessWindow = 90 * time.Second
)
