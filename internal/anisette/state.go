package anisette

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/shaw-baobao/go-anisette/internal/plist"
)

const stateFileName = "state.plist"

const identifierLength = 16

// State is the persisted identity a configuration directory owns: a stable
// 16-byte random identifier, and an optional opaque provisioning blob
// produced by an ADIBackend. Neither field is ever interpreted beyond these
// operations.
type State struct {
	Identifier []byte
	ADIPB      []byte

	dir string
}

type statePlist struct {
	Identifier []byte `plist:"identifier"`
	ADIPB      []byte `plist:"adi_pb,omitempty"`
}

// LoadOrInit reads <dir>/state.plist, creating it with a fresh random
// identifier if absent. A present-but-malformed identifier (wrong length)
// is regenerated and the file rewritten, per the documented recovery rule.
func LoadOrInit(dir string) (*State, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("anisette: create configuration dir: %w", err)
	}

	path := filepath.Join(dir, stateFileName)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		st := &State{dir: dir}
		if err := st.regenerateIdentifier(); err != nil {
			return nil, err
		}
		if err := st.persist(); err != nil {
			return nil, err
		}
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("anisette: read state file: %w", err)
	}

	var sp statePlist
	if _, perr := plistUnmarshal(raw, &sp); perr != nil {
		st := &State{dir: dir}
		if err := st.regenerateIdentifier(); err != nil {
			return nil, err
		}
		return st, st.persist()
	}

	st := &State{dir: dir, Identifier: sp.Identifier, ADIPB: sp.ADIPB}
	if len(st.Identifier) != identifierLength {
		if err := st.regenerateIdentifier(); err != nil {
			return nil, err
		}
		if err := st.persist(); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *State) regenerateIdentifier() error {
	id := make([]byte, identifierLength)
	if _, err := rand.Read(id); err != nil {
		return fmt.Errorf("anisette: generate identifier: %w", err)
	}
	s.Identifier = id
	s.ADIPB = nil
	return nil
}

// IsProvisioned reports whether a provisioning blob is present.
func (s *State) IsProvisioned() bool {
	return len(s.ADIPB) > 0
}

// SetProvisioning stores a newly obtained provisioning blob and persists it.
func (s *State) SetProvisioning(blob []byte) error {
	s.ADIPB = blob
	return s.persist()
}

// ClearProvisioning drops the provisioning blob, forcing reprovisioning on
// next use, and persists the change.
func (s *State) ClearProvisioning() error {
	s.ADIPB = nil
	return s.persist()
}

func (s *State) persist() error {
	body, err := plist.Encode(statePlist{Identifier: s.Identifier, ADIPB: s.ADIPB})
	if err != nil {
		return fmt.Errorf("anisette: encode state: %w", err)
	}

	path := filepath.Join(s.dir, stateFileName)
	_, err = SafeWriteFile(path, 0o600, body)
	return err
}

// SafeWriteFile writes data to path using temp-file-then-rename semantics so
// a reader never observes a partially written file.
func SafeWriteFile(path string, perm os.FileMode, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return 0, err
	}
	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, err
	}
	success = true
	return int64(n), nil
}

func plistUnmarshal(data []byte, v *statePlist) (any, error) {
	d, err := plist.Decode(data)
	if err != nil {
		return nil, err
	}
	if id, ok := d.Data("identifier"); ok {
		v.Identifier = id
	}
	if pb, ok := d.Data("adi_pb"); ok {
		v.ADIPB = pb
	}
	return nil, nil
}

// DeviceIdentity is the set of values derived from a State's identifier,
// never persisted directly.
type DeviceIdentity struct {
	DeviceIdentifier string // canonical uppercase UUID over the identifier
	LocalUserUUID    string // uppercase hex SHA-256(identifier)
	SerialNumber     string
}

// DefaultSerialNumber is the default macOS serial used when the caller does
// not supply one.
const DefaultSerialNumber = "0"

// Derive computes the DeviceIdentity for a State's current identifier.
func (s *State) Derive(serialNumber string) (DeviceIdentity, error) {
	if len(s.Identifier) != identifierLength {
		return DeviceIdentity{}, fmt.Errorf("anisette: identifier must be %d bytes, got %d", identifierLength, len(s.Identifier))
	}
	if serialNumber == "" {
		serialNumber = DefaultSerialNumber
	}

	id, err := uuid.FromBytes(s.Identifier)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("anisette: derive device identifier: %w", err)
	}
	sum := sha256.Sum256(s.Identifier)

	return DeviceIdentity{
		DeviceIdentifier: strings.ToUpper(id.String()),
		LocalUserUUID:    strings.ToUpper(hex.EncodeToString(sum[:])),
		SerialNumber:     serialNumber,
	}, nil
}
