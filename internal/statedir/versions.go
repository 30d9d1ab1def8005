package statedir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/fsutil"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/nameutil"
)

// activeMarkerFile names the per-kind pointer to the active version.
const activeMarkerFile = "ACTIVE"

// PersistedVersion is the on-disk envelope of one store version: its
// metadata plus the decoded payload document it was installed from.
type PersistedVersion struct {
	Info     model.StoreVersionInfo `json:"info"`
	Document json.RawMessage        `json:"document"`
}

// ActiveMarker records which persisted version is active for a kind and
// which one it displaced; the latter is the default rollback target after
// a restart.
type ActiveMarker struct {
	Version     string `json:"version"`
	PrevVersion string `json:"prev_version,omitempty"`
}

func (s *StateDir) kindDir(kind model.StoreKind) string {
	return filepath.Join(s.StoresDir(), string(kind))
}

func (s *StateDir) versionPath(kind model.StoreKind, version string) string {
	return filepath.Join(s.kindDir(kind), version+".json")
}

// SaveVersion persists one store version envelope atomically. Version
// strings become file names, so they are validated first.
func (s *StateDir) SaveVersion(info model.StoreVersionInfo, document []byte) error {
	if !info.Kind.Valid() {
		return fmt.Errorf("unknown store kind %q", info.Kind)
	}
	if err := nameutil.ValidateVersion(info.Version); err != nil {
		return err
	}
	env := PersistedVersion{Info: info, Document: json.RawMessage(document)}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal version envelope: %w", err)
	}
	if err := os.MkdirAll(s.kindDir(info.Kind), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return fsutil.AtomicWrite(s.versionPath(info.Kind, info.Version), data, 0o644)
}

// LoadVersion reads one persisted version and verifies its document
// against the recorded checksum. Tampered or bit-rotted files fail with
// E_CHECKSUM_MISMATCH rather than loading silently.
func (s *StateDir) LoadVersion(kind model.StoreKind, version string) (*PersistedVersion, error) {
	data, err := os.ReadFile(s.versionPath(kind, version))
	if err != nil {
		return nil, fmt.Errorf("read store version %s/%s: %w", kind, version, err)
	}
	var env PersistedVersion
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"store version %s/%s does not parse: %v", kind, version, err)
	}
	got, err := integrity.DocumentChecksum(env.Document)
	if err != nil {
		return nil, errclass.ErrPayloadInvalid.WithMessagef(
			"store version %s/%s document: %v", kind, version, err)
	}
	if got != env.Info.Checksum {
		return nil, errclass.ErrChecksumMismatch.WithMessagef(
			"store version %s/%s: document checksum %s does not match recorded %s",
			kind, version, got.Short(), env.Info.Checksum.Short())
	}
	return &env, nil
}

// HasVersion reports whether a version is persisted, without loading it.
func (s *StateDir) HasVersion(kind model.StoreKind, version string) bool {
	_, err := os.Stat(s.versionPath(kind, version))
	return err == nil
}

// VersionPath returns the on-disk path of a persisted version envelope.
func (s *StateDir) VersionPath(kind model.StoreKind, version string) string {
	return s.versionPath(kind, version)
}

// ListVersions returns the metadata of every persisted version of a kind,
// newest install first. Unreadable envelopes are skipped; doctor reports
// them.
func (s *StateDir) ListVersions(kind model.StoreKind) ([]model.StoreVersionInfo, error) {
	entries, err := os.ReadDir(s.kindDir(kind))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store dir %s: %w", kind, err)
	}

	var infos []model.StoreVersionInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == activeMarkerFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.kindDir(kind), name))
		if err != nil {
			continue
		}
		var env PersistedVersion
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		infos = append(infos, env.Info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].InstalledAt.Equal(infos[j].InstalledAt) {
			return infos[i].InstalledAt.After(infos[j].InstalledAt)
		}
		return infos[i].Version > infos[j].Version
	})
	return infos, nil
}

// RemoveVersion deletes one persisted version file. Callers are expected
// to have checked it is neither active nor a rollback target.
func (s *StateDir) RemoveVersion(kind model.StoreKind, version string) error {
	if err := nameutil.ValidateVersion(version); err != nil {
		return err
	}
	if err := os.Remove(s.versionPath(kind, version)); err != nil {
		return fmt.Errorf("remove store version %s/%s: %w", kind, version, err)
	}
	return nil
}

// SetActive atomically repoints the ACTIVE marker for a kind.
func (s *StateDir) SetActive(kind model.StoreKind, version, prevVersion string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown store kind %q", kind)
	}
	marker := ActiveMarker{Version: version, PrevVersion: prevVersion}
	data, err := json.Marshal(&marker)
	if err != nil {
		return fmt.Errorf("marshal active marker: %w", err)
	}
	if err := os.MkdirAll(s.kindDir(kind), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return fsutil.AtomicWrite(filepath.Join(s.kindDir(kind), activeMarkerFile), data, 0o644)
}

// ClearActive removes the ACTIVE marker for a kind, returning it to the
// never-provisioned state. Missing markers are not an error.
func (s *StateDir) ClearActive(kind model.StoreKind) error {
	err := os.Remove(filepath.Join(s.kindDir(kind), activeMarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear active marker %s: %w", kind, err)
	}
	return nil
}

// Active reads the ACTIVE marker for a kind, or nil when the kind has
// never been provisioned.
func (s *StateDir) Active(kind model.StoreKind) (*ActiveMarker, error) {
	data, err := os.ReadFile(filepath.Join(s.kindDir(kind), activeMarkerFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active marker %s: %w", kind, err)
	}
	var marker ActiveMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("parse active marker %s: %w", kind, err)
	}
	return &marker, nil
}
