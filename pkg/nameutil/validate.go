// Package nameutil validates operator-supplied identifiers before they are
// used in audit records or become file names under the state directory.
package nameutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/quorum-project/quorum/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// MaxNameLength bounds identifiers so they stay usable as file names.
const MaxNameLength = 128

// ValidateName checks an identifier (actor, plan ID, package name).
// Names are NFC-normalized before checking so visually identical strings
// validate identically.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	// NFC normalize
	name = norm.NFC.String(name)

	if len(name) > MaxNameLength {
		return errclass.ErrNameInvalid.WithMessagef("name exceeds %d characters", MaxNameLength)
	}

	if name == ".." || strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain '..': %s", name)
	}

	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}

	// Check for control characters
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	if !nameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name must match [a-zA-Z0-9._-]+: %s", name)
	}

	return nil
}

// ValidateVersion checks a store or package version string. Versions obey
// the same character rules as names; they become file names under
// stores/<kind>/ when a commit is persisted.
func ValidateVersion(version string) error {
	if version == "" {
		return errclass.ErrNameInvalid.WithMessage("version must not be empty")
	}
	if err := ValidateName(version); err != nil {
		return errclass.ErrNameInvalid.WithMessagef("version %q: must match [a-zA-Z0-9._-]+ without '..'", version)
	}
	return nil
}

// Normalize returns the NFC form used for comparisons and persistence.
func Normalize(name string) string {
	return norm.NFC.String(name)
}
