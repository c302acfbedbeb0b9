package blockstore

import (
	"errors"
	"fmt"
)

// Kind classifies a blockstore Error. See spec §7.
type Kind int

const (
	// KindIO is any other backend I/O failure.
	KindIO Kind = iota
	// KindNotFound means the requested block/blob does not exist. Callers
	// treat this as absence, not as a failure.
	KindNotFound
	// KindAlreadyExists means TryCreate raced an existing id.
	KindAlreadyExists
	// KindIntegrityViolation means the loaded ciphertext failed an
	// authenticity or freshness check. See ViolationKind for the specific
	// reason. Never silently downgraded to KindNotFound.
	KindIntegrityViolation
	// KindOutOfSpace means the backend reported no free space.
	KindOutOfSpace
	// KindInvariantViolation is an internal bug (e.g. a tree depth
	// mismatch). Fatal: callers should flush what they can and terminate.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindOutOfSpace:
		return "out_of_space"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "io"
	}
}

// ViolationKind refines KindIntegrityViolation errors.
type ViolationKind int

const (
	ViolationNone ViolationKind = iota
	ViolationRollback
	ViolationSwap
	ViolationAeadMismatch
	ViolationUnsupportedFormat
	ViolationNotABlock
)

func (v ViolationKind) String() string {
	switch v {
	case ViolationRollback:
		return "rollback"
	case ViolationSwap:
		return "swap"
	case ViolationAeadMismatch:
		return "aead_mismatch"
	case ViolationUnsupportedFormat:
		return "unsupported_format"
	case ViolationNotABlock:
		return "not_a_block"
	default:
		return "none"
	}
}

// Error is the typed error returned by every layer of the block/blob stack.
type Error struct {
	Kind      Kind
	Violation ViolationKind // only meaningful when Kind == KindIntegrityViolation
	BlockID   BlockId
	HasBlock  bool
	Op        string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Kind == KindIntegrityViolation {
		msg += "(" + e.Violation.String() + ")"
	}
	if e.HasBlock {
		msg += " block=" + e.BlockID.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match err against a target *Error: it matches when the
// Kinds are equal and the target's Violation is either ViolationNone or the
// same as e's.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind && (t.Violation == ViolationNone || e.Violation == t.Violation)
	}
	return false
}

func newErr(op string, kind Kind, id BlockId, hasBlock bool, err error) *Error {
	return &Error{Op: op, Kind: kind, BlockID: id, HasBlock: hasBlock, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(op string, id BlockId) error {
	return newErr(op, KindNotFound, id, true, nil)
}

// AlreadyExists builds a KindAlreadyExists error.
func AlreadyExists(op string, id BlockId) error {
	return newErr(op, KindAlreadyExists, id, true, nil)
}

// IntegrityViolation builds a KindIntegrityViolation error.
func IntegrityViolation(op string, id BlockId, v ViolationKind, cause error) error {
	e := newErr(op, KindIntegrityViolation, id, true, cause)
	e.Violation = v
	return e
}

// IO wraps a backend I/O failure that isn't more specifically classified.
func IO(op string, err error) error {
	return newErr(op, KindIO, BlockId{}, false, err)
}

// OutOfSpace builds a KindOutOfSpace error.
func OutOfSpace(op string, err error) error {
	return newErr(op, KindOutOfSpace, BlockId{}, false, err)
}

// InvariantViolation builds a KindInvariantViolation error. Callers that
// observe this should flush what they can and stop: the in-memory tree
// state can no longer be trusted.
func InvariantViolation(op string, format string, args ...any) error {
	return newErr(op, KindInvariantViolation, BlockId{}, false, fmt.Errorf(format, args...))
}

// KindOf extracts the Kind from err, if err is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a KindNotFound *Error.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

// IsIntegrityViolation reports whether err is a KindIntegrityViolation *Error.
func IsIntegrityViolation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindIntegrityViolation
}
