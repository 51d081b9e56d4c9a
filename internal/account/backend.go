package account

import (
	"net/http"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/anisette/local"
	"github.com/shaw-baobao/go-anisette/internal/anisette/remotev1"
	"github.com/shaw-baobao/go-anisette/internal/anisette/remotev3"
	"github.com/shaw-baobao/go-anisette/internal/config"
)

// SelectBackend chooses an ADIBackend for cfg, preferring LocalADI when the
// native library is present on disk, then RemoteADIv3, then RemoteADIv1.
func SelectBackend(cfg config.Config, client *http.Client) anisette.Backend {
	if client == nil {
		client = &http.Client{}
	}
	if anisette.HasLocalLibrary(cfg.ConfigurationPath) {
		return local.New(cfg.ConfigurationPath, client)
	}
	if cfg.AnisetteURLV3 != "" {
		return remotev3.New(cfg.AnisetteURLV3, client)
	}
	return remotev1.New(cfg.AnisetteURL, client)
}

// NewAnisetteProvider loads (or initializes) state under cfg.ConfigurationPath
// and wires it to the backend SelectBackend chooses, with DSID pinned to the
// machine sentinel and the emulated serial number taken from cfg.
func NewAnisetteProvider(cfg config.Config, client *http.Client) (*anisette.Provider, error) {
	state, err := anisette.LoadOrInit(cfg.ConfigurationPath)
	if err != nil {
		return nil, err
	}
	backend := SelectBackend(cfg, client)
	return anisette.NewProvider(backend, state, anisette.DSID, anisette.WithSerialNumber(cfg.MacOSSerial)), nil
}
