package wire

import "github.com/pkg/errors"

// DecodeError is the taxonomy of wire-decoding failures from spec.md §4.1
// and §7. Unknown fields are never errors by themselves — they are kept
// opaque and round-tripped; only truncation, length mismatches and
// invalid AFI/SAFI tuples are DecodeErrors.
type DecodeError struct {
	Kind    DecodeErrorKind
	Message string
}

// DecodeErrorKind enumerates the DecodeError variants.
type DecodeErrorKind int

const (
	// ErrTruncated means the buffer ended before a declared length was
	// satisfied.
	ErrTruncated DecodeErrorKind = iota
	// ErrUnknownType means a message/attribute/capability/parameter tag
	// has no registered constructor; the generic fallback is used
	// instead, this is only raised where the spec requires an error.
	ErrUnknownType
	// ErrLengthMismatch means the declared length of a field did not
	// match the number of bytes actually consumed while decoding it.
	ErrLengthMismatch
	// ErrInvalidAFISAFI means an (AFI,SAFI) tuple is structurally
	// invalid, e.g. MP_REACH/MP_UNREACH whose AFI/SAFI conflict with the
	// rest of the UPDATE.
	ErrInvalidAFISAFI
)

func (e *DecodeError) Error() string {
	return e.Message
}

func newDecodeError(kind DecodeErrorKind, format string, args ...interface{}) error {
	return &DecodeError{Kind: kind, Message: errors.Errorf(format, args...).Error()}
}

func truncated(what string) error {
	return newDecodeError(ErrTruncated, "wire: truncated while reading %s", what)
}

func lengthMismatch(what string, declared, consumed int) error {
	return newDecodeError(ErrLengthMismatch, "wire: %s declared length %d but consumed %d", what, declared, consumed)
}
