// Package patcherr defines the error taxonomy surfaced at the patch
// worker boundary. Every failure path in the engine terminates in one of
// these kinds; nothing downstream of a PatchError is retried.
package patcherr

import "fmt"

// Kind enumerates the terminal outcomes of an apply, per the engine's
// error taxonomy. PATCH_OK has no corresponding Kind: success is the
// absence of an error, never a *PatchError value.
type Kind int

const (
	// IO covers any OS-level open/read/write/seek failure.
	IO Kind = iota
	// UnknownType means neither the IPS nor the BPS marker was recognized.
	UnknownType
	// FailedToStart means the decoder's start phase failed: a missing or
	// unreadable marker, or an unreadable or inconsistent BPS header.
	FailedToStart
	// InvalidOutputSize means the BPS action loop wrote a different number
	// of bytes than the header's target_size declared.
	InvalidOutputSize
	// InvalidOutputChecksum means one of the three BPS trailer CRC32s
	// (source, target, or patch) did not match.
	InvalidOutputChecksum
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "PATCH_ERR_IO"
	case UnknownType:
		return "PATCH_UNKNOWN_TYPE"
	case FailedToStart:
		return "PATCH_FAILED_TO_START"
	case InvalidOutputSize:
		return "PATCH_INVALID_OUTPUT_SIZE"
	case InvalidOutputChecksum:
		return "PATCH_INVALID_OUTPUT_CHECKSUM"
	default:
		return "PATCH_ERR_UNKNOWN"
	}
}

// PatchError is the typed error that crosses the worker boundary. It
// wraps an underlying cause so callers can still errors.Is/errors.As
// against lower-level sentinels (io.ErrUnexpectedEOF, *os.PathError...).
type PatchError struct {
	Kind Kind
	Err  error
}

// New wraps err under the given Kind. err may be nil for kinds that
// carry no further detail (rare; prefer always supplying a cause).
func New(kind Kind, err error) *PatchError {
	return &PatchError{Kind: kind, Err: err}
}

func (e *PatchError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
