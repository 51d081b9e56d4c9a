package anisette

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Provider wraps an ADIBackend and turns OTP output plus derived device
// identity into the normalized Anisette header set, honoring the documented
// freshness window.
type Provider struct {
	backend Backend
	state   *State
	dsID    int

	staleAfter      time.Duration
	freshnessWindow time.Duration
	serialNumber    string

	now func() time.Time

	mu         sync.Mutex
	cached     Headers
	cachedAt   time.Time
	reprovOnce bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithStaleAfter overrides the duration after which a cached OTP set is
// refetched rather than reused (default 60s).
func WithStaleAfter(d time.Duration) Option {
	return func(p *Provider) { p.staleAfter = d }
}

// WithFreshnessWindow overrides the duration past which reusing a cached OTP
// set fails loudly rather than silently succeeding (default 90s).
func WithFreshnessWindow(d time.Duration) Option {
	return func(p *Provider) { p.freshnessWindow = d }
}

// WithSerialNumber overrides the emulated macOS serial number used to derive
// device identity (default DefaultSerialNumber, "0").
func WithSerialNumber(serial string) Option {
	return func(p *Provider) { p.serialNumber = serial }
}

// NewProvider constructs a Provider over backend and state for dsID.
func NewProvider(backend Backend, state *State, dsID int, opts ...Option) *Provider {
	p := &Provider{
		backend:         backend,
		state:           state,
		dsID:            dsID,
		staleAfter:      defaultStaleAfter,
		freshnessWindow: defaultFreshnessWindow,
		serialNumber:    DefaultSerialNumber,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Headers returns a fresh or cached Anisette header set, reprovisioning
// exactly once if the backend reports the blob is no longer valid.
func (p *Provider) Headers(ctx context.Context) (Headers, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		age := p.now().Sub(p.cachedAt)
		if age <= p.staleAfter {
			if age > p.freshnessWindow {
				return nil, &ErrInvalidHeaderValue{Reason: fmt.Sprintf("cached OTP set is %s old, past the %s freshness window", age, p.freshnessWindow)}
			}
			return p.cached, nil
		}
		if age > p.freshnessWindow {
			// The cached set has aged out entirely; drop it and refetch
			// rather than surface InvalidHeaderValue for a read that we can
			// just satisfy ourselves.
			p.cached = nil
		}
	}

	headers, err := p.fetch(ctx)
	if err != nil {
		var notProvisioned *ErrNotProvisioned
		if !errors.As(err, &notProvisioned) {
			return nil, err
		}
		if p.reprovOnce {
			return nil, fmt.Errorf("anisette: reprovisioning already attempted: %w", err)
		}
		p.reprovOnce = true
		if perr := p.backend.Provision(ctx, p.state); perr != nil {
			return nil, fmt.Errorf("anisette: reprovision after invalidated blob: %w", perr)
		}
		headers, err = p.fetch(ctx)
		if err != nil {
			return nil, err
		}
	}

	p.reprovOnce = false
	p.cached = headers
	p.cachedAt = p.now()
	return headers, nil
}

func (p *Provider) fetch(ctx context.Context) (Headers, error) {
	if !p.backend.IsProvisioned(p.state, p.dsID) {
		if err := p.backend.Provision(ctx, p.state); err != nil {
			return nil, err
		}
	}

	result, err := p.backend.RequestOTP(ctx, p.state, p.dsID)
	if err != nil {
		return nil, err
	}

	identity, err := p.state.Derive(p.serialNumber)
	if err != nil {
		return nil, err
	}

	return Build(identity, result.OTP, result.MachineID, p.now()), nil
}

// Stale reports whether a previously returned Headers value is no longer
// usable, i.e. older than the default freshness window, per testable
// property 6.
func (h Headers) Stale(generatedAt, asOf time.Time) bool {
	return asOf.Sub(generatedAt) > defaultFreshnessWindow
}
