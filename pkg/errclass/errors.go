package errclass

import (
	"errors"
	"fmt"
)

// QuorumError is a stable, machine-readable error class.
type QuorumError struct {
	Code    string
	Message string
}

func (e *QuorumError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QuorumError) Is(target error) bool {
	t, ok := target.(*QuorumError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new QuorumError with the same Code but a specific message.
func (e *QuorumError) WithMessage(msg string) *QuorumError {
	return &QuorumError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new QuorumError with a formatted message.
func (e *QuorumError) WithMessagef(format string, args ...any) *QuorumError {
	return &QuorumError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is or wraps the given class.
func Is(err error, class *QuorumError) bool {
	return errors.Is(err, class)
}

// CodeOf extracts the stable code carried by err, or "" when err has
// none. Update results and audit records store this string.
func CodeOf(err error) string {
	var qe *QuorumError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// All stable error classes for v0.x (15 total).
var (
	ErrNameInvalid               = &QuorumError{Code: "E_NAME_INVALID"}
	ErrFormatUnsupported         = &QuorumError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrChecksumMismatch          = &QuorumError{Code: "E_CHECKSUM_MISMATCH"}
	ErrSignatureInvalid          = &QuorumError{Code: "E_SIGNATURE_INVALID"}
	ErrPayloadInvalid            = &QuorumError{Code: "E_PAYLOAD_INVALID"}
	ErrPayloadTooLarge           = &QuorumError{Code: "E_PAYLOAD_TOO_LARGE"}
	ErrStoreSwapFailed           = &QuorumError{Code: "E_STORE_SWAP_FAILED"}
	ErrConcurrentUpdateRejected  = &QuorumError{Code: "E_CONCURRENT_UPDATE_REJECTED"}
	ErrRollbackTargetUnavailable = &QuorumError{Code: "E_ROLLBACK_TARGET_UNAVAILABLE"}
	ErrStoreUnavailable          = &QuorumError{Code: "E_STORE_UNAVAILABLE"}
	ErrVersionUnknown            = &QuorumError{Code: "E_VERSION_UNKNOWN"}
	ErrKeyInvalid                = &QuorumError{Code: "E_KEY_INVALID"}
	ErrLockConflict              = &QuorumError{Code: "E_LOCK_CONFLICT"}
	ErrLockExpired               = &QuorumError{Code: "E_LOCK_EXPIRED"}
	ErrAuditChainBroken          = &QuorumError{Code: "E_AUDIT_CHAIN_BROKEN"}
)
