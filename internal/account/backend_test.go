package account

import (
	"net/http"
	"testing"

	"github.com/shaw-baobao/go-anisette/internal/anisette/remotev1"
	"github.com/shaw-baobao/go-anisette/internal/anisette/remotev3"
	"github.com/shaw-baobao/go-anisette/internal/config"
)

func TestSelectBackendPrefersRemoteV3WhenConfigured(t *testing.T) {
	cfg := config.Config{
		ConfigurationPath: t.TempDir(),
		AnisetteURL:       "https://ani.sidestore.io",
		AnisetteURLV3:     "https://ani.f1sh.me",
	}
	backend := SelectBackend(cfg, nil)
	if _, ok := backend.(*remotev3.Backend); !ok {
		t.Fatalf("backend = %T, want *remotev3.Backend", backend)
	}
}

func TestSelectBackendFallsBackToRemoteV1WithoutV3URL(t *testing.T) {
	cfg := config.Config{
		ConfigurationPath: t.TempDir(),
		AnisetteURL:       "https://ani.sidestore.io",
	}
	backend := SelectBackend(cfg, nil)
	if _, ok := backend.(*remotev1.Backend); !ok {
		t.Fatalf("backend = %T, want *remotev1.Backend", backend)
	}
}

func TestSelectBackendUsesProvidedHTTPClient(t *testing.T) {
	cfg := config.Config{ConfigurationPath: t.TempDir(), AnisetteURL: "https://ani.sidestore.io"}
	client := &http.Client{}
	// Exercising with a non-nil client should not panic or substitute a
	// different instance for the nil-client path.
	backend := SelectBackend(cfg, client)
	v1, ok := backend.(*remotev1.Backend)
	if !ok || v1.Client != client {
		t.Fatalf("backend = %T, want *remotev1.Backend using the provided client", backend)
	}
}

func TestNewAnisetteProviderWiresStateAndBackend(t *testing.T) {
	cfg := config.Config{
		ConfigurationPath: t.TempDir(),
		AnisetteURL:       "https://ani.sidestore.io",
		MacOSSerial:       "0",
	}
	provider, err := NewAnisetteProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewAnisetteProvider: %v", err)
	}
	if provider == nil {
		t.Fatal("expected a non-nil provider")
	}
}
