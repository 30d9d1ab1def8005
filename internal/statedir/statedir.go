// Package statedir manages the on-disk .quorum state directory: the
// durable home of persisted store versions, ACTIVE markers, the verify
// key, locks, and the audit log. The in-memory catalog is authoritative
// while a process runs; this package is how state survives between
// invocations.
package statedir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/uuidutil"
)

const (
	// FormatVersion is the state directory layout generation this build
	// reads and writes.
	FormatVersion = 1
	// DirName is the marker directory identifying an appliance state root.
	DirName = ".quorum"

	formatVersionFile = "format_version"
	applianceIDFile   = "appliance_id"

	// VerifyKeyFile is the packaged-relative location of the update
	// verification key under the state directory.
	VerifyKeyFile = "keys/update_verify.pem"
)

// StateDir is an opened appliance state directory.
type StateDir struct {
	// Root is the directory containing DirName.
	Root          string
	FormatVersion int
	// ApplianceID identifies this state directory in audit records.
	ApplianceID string
}

// Init creates a new state directory under root. Fails if one already
// exists there.
func Init(root string) (*StateDir, error) {
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("state directory already exists at %s", dir)
	}

	dirs := []string{
		dir,
		filepath.Join(dir, "stores"),
		filepath.Join(dir, "keys"),
		filepath.Join(dir, "locks"),
		filepath.Join(dir, "audit"),
		filepath.Join(dir, "attempts"),
		filepath.Join(dir, "staging"),
		filepath.Join(dir, "gc"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, formatVersionFile), []byte("1\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}
	applianceID := uuidutil.NewV4()
	if err := os.WriteFile(filepath.Join(dir, applianceIDFile), []byte(applianceID+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write appliance_id: %w", err)
	}

	return &StateDir{Root: root, FormatVersion: FormatVersion, ApplianceID: applianceID}, nil
}

// Open opens the state directory directly under root, without walking up.
func Open(root string) (*StateDir, error) {
	dir := filepath.Join(root, DirName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("no state directory at %s (run quorum init)", dir)
	}
	return open(root, dir)
}

// Discover walks up from cwd to the nearest directory containing DirName.
func Discover(cwd string) (*StateDir, error) {
	path := cwd
	for {
		dir := filepath.Join(path, DirName)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return open(path, dir)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no state directory found (no %s in parent directories)", DirName)
		}
		path = parent
	}
}

func open(root, dir string) (*StateDir, error) {
	version, err := readFormatVersion(dir)
	if err != nil {
		return nil, err
	}
	if version > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef(
			"state directory format %d > supported %d", version, FormatVersion)
	}
	applianceID, _ := readApplianceID(dir)
	return &StateDir{Root: root, FormatVersion: version, ApplianceID: applianceID}, nil
}

// Dir returns the .quorum directory path.
func (s *StateDir) Dir() string { return filepath.Join(s.Root, DirName) }

// StoresDir returns the directory holding persisted store versions.
func (s *StateDir) StoresDir() string { return filepath.Join(s.Dir(), "stores") }

// LocksDir returns the directory holding update lease locks.
func (s *StateDir) LocksDir() string { return filepath.Join(s.Dir(), "locks") }

// StagingDir returns the scratch directory for in-flight submissions.
func (s *StateDir) StagingDir() string { return filepath.Join(s.Dir(), "staging") }

// GCDir returns the directory holding pending gc plans.
func (s *StateDir) GCDir() string { return filepath.Join(s.Dir(), "gc") }

// AuditLogPath returns the hash-chained audit log location.
func (s *StateDir) AuditLogPath() string {
	return filepath.Join(s.Dir(), "audit", "audit.jsonl")
}

// AttemptsLogPath returns the update attempt history location.
func (s *StateDir) AttemptsLogPath() string {
	return filepath.Join(s.Dir(), "attempts", "attempts.jsonl")
}

// VerifyKeyPath resolves the update verification key. A relative
// configured path is resolved against the .quorum directory.
func (s *StateDir) VerifyKeyPath(configured string) string {
	if configured == "" {
		configured = VerifyKeyFile
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(s.Dir(), filepath.FromSlash(configured))
}

func readFormatVersion(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, formatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return version, nil
}

func readApplianceID(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, applianceIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
