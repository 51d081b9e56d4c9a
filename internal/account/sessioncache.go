package account

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/99designs/keyring"
)

const (
	sessionCacheEnabledEnv = "ASAUTH_SESSION_CACHE"
	sessionCacheDirEnv     = "ASAUTH_SESSION_CACHE_DIR"
	sessionCacheBackendEnv = "ASAUTH_SESSION_CACHE_BACKEND"

	sessionCacheVersion = 1

	sessionKeyringService = "go-anisette-session"
	sessionKeyPrefix      = "go-anisette:session:"
)

type cacheBackend int

const (
	cacheBackendOff cacheBackend = iota
	cacheBackendKeychain
	cacheBackendFile
)

type cacheSelection struct {
	backend      cacheBackend
	fallbackFile bool
}

// PersistedSession is the durable record of a successful login: just enough
// to skip re-authentication for a short PET lifetime, never the password or
// the SRP session key.
type PersistedSession struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	ADSID     string    `json:"adsid"`
	PET       string    `json:"pet"`
	PETExpiry time.Time `json:"pet_expiry,omitempty"`
}

var sessionKeyringOpen = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName:                    sessionKeyringService,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.KeyCtlBackend,
		},
	})
}

func sessionCacheEnabled() bool {
	raw := strings.TrimSpace(os.Getenv(sessionCacheEnabledEnv))
	if raw == "" {
		return true
	}
	switch strings.ToLower(raw) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func resolveCacheSelection() cacheSelection {
	if !sessionCacheEnabled() {
		return cacheSelection{backend: cacheBackendOff}
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(sessionCacheBackendEnv))) {
	case "off", "none", "disabled":
		return cacheSelection{backend: cacheBackendOff}
	case "file":
		return cacheSelection{backend: cacheBackendFile}
	case "keychain":
		return cacheSelection{backend: cacheBackendKeychain}
	default:
		return cacheSelection{backend: cacheBackendKeychain, fallbackFile: true}
	}
}

func cacheDir() (string, error) {
	if custom := strings.TrimSpace(os.Getenv(sessionCacheDirEnv)); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("account: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "go-anisette", "sessions"), nil
}

func cacheKey(username string) string {
	normalized := strings.ToLower(strings.TrimSpace(username))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func cacheFilePath(key string) (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session-"+key+".json"), nil
}

// SaveSession persists the account's ADSID/PET pair for username under the
// selected backend (keychain, falling back to file, unless overridden).
func SaveSession(username string, sess PersistedSession) error {
	sel := resolveCacheSelection()
	if sel.backend == cacheBackendOff {
		return nil
	}
	sess.Version = sessionCacheVersion
	sess.UpdatedAt = time.Now().UTC()
	key := cacheKey(username)

	if sel.backend == cacheBackendKeychain || sel.fallbackFile {
		if err := writeSessionToKeychain(key, sess); err == nil {
			return nil
		} else if !sel.fallbackFile {
			return err
		}
	}
	return writeSessionToFile(key, sess)
}

// LoadSession retrieves a previously persisted session for username, if any.
func LoadSession(username string) (PersistedSession, bool, error) {
	sel := resolveCacheSelection()
	if sel.backend == cacheBackendOff {
		return PersistedSession{}, false, nil
	}
	key := cacheKey(username)

	if sel.backend == cacheBackendKeychain || sel.fallbackFile {
		sess, ok, err := readSessionFromKeychain(key)
		if err == nil {
			return sess, ok, nil
		}
		if !sel.fallbackFile {
			return PersistedSession{}, false, err
		}
	}
	return readSessionFromFile(key)
}

// ClearSession removes any persisted session for username from whichever
// backend(s) are in play, so logout leaves no stale ADSID/PET behind.
func ClearSession(username string) error {
	sel := resolveCacheSelection()
	if sel.backend == cacheBackendOff {
		return nil
	}
	key := cacheKey(username)

	var firstErr error
	if sel.backend == cacheBackendKeychain || sel.fallbackFile {
		if err := deleteSessionFromKeychain(key); err != nil && !sel.fallbackFile {
			firstErr = err
		}
	}
	if err := deleteSessionFromFile(key); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func deleteSessionFromKeychain(key string) error {
	kr, err := sessionKeyringOpen()
	if err != nil {
		return err
	}
	if err := kr.Remove(sessionKeyPrefix + key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

func deleteSessionFromFile(key string) error {
	path, err := cacheFilePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("account: remove session cache: %w", err)
	}
	return nil
}

func isKeyringUnavailable(err error) bool {
	return errors.Is(err, keyring.ErrNoAvailImpl)
}

func writeSessionToKeychain(key string, sess PersistedSession) error {
	kr, err := sessionKeyringOpen()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("account: marshal session: %w", err)
	}
	return kr.Set(keyring.Item{
		Key:   sessionKeyPrefix + key,
		Data:  raw,
		Label: "go-anisette session",
	})
}

func readSessionFromKeychain(key string) (PersistedSession, bool, error) {
	kr, err := sessionKeyringOpen()
	if err != nil {
		if isKeyringUnavailable(err) {
			return PersistedSession{}, false, err
		}
		return PersistedSession{}, false, err
	}
	item, err := kr.Get(sessionKeyPrefix + key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return PersistedSession{}, false, nil
		}
		return PersistedSession{}, false, err
	}
	var sess PersistedSession
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return PersistedSession{}, false, fmt.Errorf("account: decode keychain session: %w", err)
	}
	if sess.Version != sessionCacheVersion {
		return PersistedSession{}, false, nil
	}
	return sess, true, nil
}

func writeSessionToFile(key string, sess PersistedSession) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("account: create session cache dir: %w", err)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("account: marshal session: %w", err)
	}
	path, err := cacheFilePath(key)
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("account: write session cache: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func readSessionFromFile(key string) (PersistedSession, bool, error) {
	path, err := cacheFilePath(key)
	if err != nil {
		return PersistedSession{}, false, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PersistedSession{}, false, nil
		}
		return PersistedSession{}, false, err
	}
	var sess PersistedSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return PersistedSession{}, false, fmt.Errorf("account: decode session cache: %w", err)
	}
	if sess.Version != sessionCacheVersion {
		return PersistedSession{}, false, nil
	}
	return sess, true, nil
}
