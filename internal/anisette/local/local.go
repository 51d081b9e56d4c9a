// Package local implements the LocalADI backend: it loads an ELF copy of
// Apple's libstoreservicescore.so (built for Android/ARM, called here via
// the SysV64 ABI regardless of host ABI), hooks the POSIX symbols it
// imports, and drives Apple's provisioning/OTP protocol through it.
package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/plist"
)

func newBytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

const lookupURL = "https://gsa.apple.com/grandslam/GsService2/lookup"

// Backend is the LocalADI ADIBackend implementation.
type Backend struct {
	LibraryDir string // directory containing lib/<arch>/libstoreservicescore.so
	Client     *http.Client

	mu         sync.Mutex // the foreign library is not re-entrant
	img        *image
	hooks      *hooks
	stubRegion []byte
}

// New constructs a LocalADI backend rooted at configurationPath.
func New(configurationPath string, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{LibraryDir: configurationPath, Client: client}
}

func (b *Backend) ensureLoaded() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img != nil {
		return nil
	}

	path := anisette.LibraryPath(b.LibraryDir)
	img, err := loadImage(path)
	if err != nil {
		return err
	}

	h := newHooks()
	addrs, region, err := buildStubs(hookNames)
	if err != nil {
		img.close()
		return err
	}
	h.install()

	if err := bindImports(img, addrs); err != nil {
		img.close()
		return err
	}

	bootstrapFn, _ := img.symbol(symLoadLibraryWithPath)
	libDir := filepath.Dir(path)
	pathBuf := make([]byte, len(libDir)+1)
	copy(pathBuf, libDir)
	rc := callSysV6(bootstrapFn, addrOf(pathBuf), 0, 0, 0, 0, 0)
	if int64(rc) != 0 {
		img.close()
		return fmt.Errorf("local: bootstrap failed: code %d", int64(rc))
	}

	b.img = img
	b.hooks = h
	b.stubRegion = region
	return nil
}

// Provision performs the two-step HTTPS handshake with
// gsa.apple.com/grandslam/GsService2, feeding the intermediate blobs to the
// foreign library's start_provisioning/end_provisioning entry points.
func (b *Backend) Provision(ctx context.Context, state *anisette.State) error {
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	urls, err := b.fetchProvisioningURLs(ctx, state)
	if err != nil {
		return err
	}

	startFn, _ := b.img.symbol(symStartProvisioning)
	spimBuf, err := b.postEmptyPlist(ctx, urls.start, state)
	if err != nil {
		return err
	}
	spim, _, err := plist.GSAResponse(spimBuf)
	if err != nil {
		return fmt.Errorf("local: parse start-provisioning response: %w", err)
	}
	spimStr, ok := spim.String("spim")
	if !ok {
		return fmt.Errorf("local: start-provisioning response missing spim")
	}
	spimBytes, err := base64.StdEncoding.DecodeString(spimStr)
	if err != nil {
		return fmt.Errorf("local: decode spim: %w", err)
	}

	var cpimOut, sessionOut uintptr
	rc := callSysV6(startFn, uintptr(anisette.DSID), addrOf(spimBytes), addrOf2(&cpimOut), addrOf2(&sessionOut), 0, 0)
	if int64(rc) != 0 {
		return fmt.Errorf("local: start_provisioning failed: code %d", int64(rc))
	}
	cpim := readCString(readUintptr(addrOf2(&cpimOut)))
	b.dispose(cpimOut)

	finishBuf, err := b.postPlistWithCPIM(ctx, urls.finish, cpim, state)
	if err != nil {
		return err
	}
	finish, _, err := plist.GSAResponse(finishBuf)
	if err != nil {
		return fmt.Errorf("local: parse finish-provisioning response: %w", err)
	}
	ptm, ok := finish.String("ptm")
	if !ok {
		return fmt.Errorf("local: finish-provisioning response missing ptm")
	}
	tk, ok := finish.String("tk")
	if !ok {
		return fmt.Errorf("local: finish-provisioning response missing tk")
	}

	endFn, _ := b.img.symbol(symEndProvisioning)
	ptmBytes := []byte(ptm)
	tkBytes := []byte(tk)
	rc = callSysV6(endFn, sessionOut, addrOf(ptmBytes), addrOf(tkBytes), 0, 0, 0)
	if int64(rc) != 0 {
		return fmt.Errorf("local: end_provisioning failed: code %d", int64(rc))
	}

	// The foreign library persists adi.pb itself under the provisioning
	// path; the state blob we track is a marker that provisioning
	// succeeded so AnisetteState.IsProvisioned reflects it.
	return state.SetProvisioning([]byte("local-adi-provisioned"))
}

// IsProvisioned calls the foreign library's pure predicate.
func (b *Backend) IsProvisioned(state *anisette.State, dsID int) bool {
	if b.ensureLoaded() != nil {
		return false
	}
	fn, ok := b.img.symbol(symIsMachineProvisioned)
	if !ok {
		return false
	}
	rc := callSysV6(fn, uintptr(dsID), 0, 0, 0, 0, 0)
	return int64(rc) == 1
}

// RequestOTP calls the foreign library's otp_request entry point.
func (b *Backend) RequestOTP(ctx context.Context, state *anisette.State, dsID int) (anisette.OTPResult, error) {
	if err := b.ensureLoaded(); err != nil {
		return anisette.OTPResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fn, ok := b.img.symbol(symOTPRequest)
	if !ok {
		return anisette.OTPResult{}, &anisette.ErrInvalidLibraryFormat{Symbol: symOTPRequest}
	}

	var midOut, otpOut uintptr
	rc := callSysV6(fn, uintptr(dsID), addrOf2(&midOut), addrOf2(&otpOut), 0, 0, 0)
	if int64(rc) != 0 {
		return anisette.OTPResult{}, &anisette.ErrNotProvisioned{Reason: fmt.Sprintf("otp_request returned %d", int64(rc))}
	}
	mid := readCString(readUintptr(addrOf2(&midOut)))
	otp := readCString(readUintptr(addrOf2(&otpOut)))
	b.dispose(midOut)
	b.dispose(otpOut)

	return anisette.OTPResult{OTP: otp, MachineID: mid}, nil
}

func (b *Backend) dispose(addr uintptr) {
	fn, ok := b.img.symbol(symDispose)
	if !ok {
		return
	}
	callSysV6(fn, addr, 0, 0, 0, 0, 0)
}

type provisioningURLs struct {
	start  string
	finish string
}

func (b *Backend) fetchProvisioningURLs(ctx context.Context, state *anisette.State) (provisioningURLs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return provisioningURLs{}, err
	}
	identity, err := state.Derive(anisette.DefaultSerialNumber)
	if err != nil {
		return provisioningURLs{}, err
	}
	req.Header.Set("X-Mme-Client-Info", anisette.ClientInfo)
	req.Header.Set("User-Agent", anisette.UserAgent)
	req.Header.Set("X-Mme-Device-Id", identity.DeviceIdentifier)

	resp, err := b.Client.Do(req)
	if err != nil {
		return provisioningURLs{}, fmt.Errorf("local: lookup: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provisioningURLs{}, err
	}

	root, err := plist.Decode(body)
	if err != nil {
		return provisioningURLs{}, fmt.Errorf("local: parse lookup response: %w", err)
	}
	urls, ok := root.Dict("urls")
	if !ok {
		return provisioningURLs{}, fmt.Errorf("local: lookup response missing urls")
	}
	start, ok := urls.String("midStartProvisioning")
	if !ok {
		return provisioningURLs{}, fmt.Errorf("local: lookup response missing midStartProvisioning")
	}
	finish, ok := urls.String("midFinishProvisioning")
	if !ok {
		return provisioningURLs{}, fmt.Errorf("local: lookup response missing midFinishProvisioning")
	}
	return provisioningURLs{start: start, finish: finish}, nil
}

func (b *Backend) postEmptyPlist(ctx context.Context, url string, state *anisette.State) ([]byte, error) {
	return b.postPlist(ctx, url, plist.Dict{}, state)
}

func (b *Backend) postPlistWithCPIM(ctx context.Context, url, cpim string, state *anisette.State) ([]byte, error) {
	return b.postPlist(ctx, url, plist.Dict{"cpim": cpim}, state)
}

func (b *Backend) postPlist(ctx context.Context, url string, request plist.Dict, state *anisette.State) ([]byte, error) {
	body, err := plist.Encode(map[string]any{"Header": plist.Dict{}, "Request": request})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newBytesReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/x-xml-plist")
	req.Header.Set("X-Mme-Client-Info", anisette.ClientInfo)
	req.Header.Set("User-Agent", anisette.UserAgent)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local: provisioning request: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
