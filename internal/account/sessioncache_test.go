package account

import (
	"testing"
	"time"
)

// useFileCache forces the session cache onto the file backend for a test,
// pointed at a fresh temp directory, so tests never touch a real keychain.
func useFileCache(t *testing.T) {
	t.Helper()
	t.Setenv(sessionCacheBackendEnv, "file")
	t.Setenv(sessionCacheDirEnv, t.TempDir())
}

func TestSaveLoadSessionRoundTrip(t *testing.T) {
	useFileCache(t)

	sess := PersistedSession{
		ADSID:     "1234567890",
		PET:       "pet-token",
		PETExpiry: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	if err := SaveSession("user@example.com", sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, ok, err := LoadSession("user@example.com")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted session to be found")
	}
	if loaded.ADSID != sess.ADSID || loaded.PET != sess.PET {
		t.Fatalf("loaded session = %+v, want ADSID/PET from %+v", loaded, sess)
	}
	if loaded.Version != sessionCacheVersion {
		t.Errorf("Version = %d, want %d", loaded.Version, sessionCacheVersion)
	}
}

func TestLoadSessionMissingReturnsNotFound(t *testing.T) {
	useFileCache(t)

	_, ok, err := LoadSession("nobody@example.com")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if ok {
		t.Fatal("expected no session for an unknown username")
	}
}

func TestClearSessionRemovesPersistedRecord(t *testing.T) {
	useFileCache(t)

	if err := SaveSession("user@example.com", PersistedSession{ADSID: "1", PET: "p"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := ClearSession("user@example.com"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}

	_, ok, err := LoadSession("user@example.com")
	if err != nil {
		t.Fatalf("LoadSession after clear: %v", err)
	}
	if ok {
		t.Fatal("expected session to be gone after ClearSession")
	}
}

func TestClearSessionOnMissingRecordIsNotAnError(t *testing.T) {
	useFileCache(t)
	if err := ClearSession("never-logged-in@example.com"); err != nil {
		t.Fatalf("ClearSession on missing record: %v", err)
	}
}

func TestSessionCacheDisabledViaEnvIsNoOp(t *testing.T) {
	t.Setenv(sessionCacheEnabledEnv, "off")
	t.Setenv(sessionCacheDirEnv, t.TempDir())

	if err := SaveSession("user@example.com", PersistedSession{ADSID: "1", PET: "p"}); err != nil {
		t.Fatalf("SaveSession with cache disabled: %v", err)
	}
	_, ok, err := LoadSession("user@example.com")
	if err != nil {
		t.Fatalf("LoadSession with cache disabled: %v", err)
	}
	if ok {
		t.Fatal("expected LoadSession to report nothing when the cache is disabled")
	}
}

func TestCacheKeyIsCaseAndSpaceInsensitive(t *testing.T) {
	a := cacheKey("  User@Example.com ")
	b := cacheKey("user@example.com")
	if a != b {
		t.Fatalf("cacheKey should normalize case/whitespace: %q != %q", a, b)
	}
}

func TestSessionWithStaleVersionIsIgnored(t *testing.T) {
	useFileCache(t)

	if err := SaveSession("user@example.com", PersistedSession{ADSID: "1", PET: "p"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	key := cacheKey("user@example.com")
	// Simulate a session file written with an incompatible cache format version.
	if err := writeSessionToFile(key, PersistedSession{Version: sessionCacheVersion + 1, ADSID: "1", PET: "p"}); err != nil {
		t.Fatalf("writeSessionToFile: %v", err)
	}

	_, ok, err := readSessionFromFile(key)
	if err != nil {
		t.Fatalf("readSessionFromFile: %v", err)
	}
	if ok {
		t.Fatal("expected a version-mismatched session to be treated as absent")
	}
}
