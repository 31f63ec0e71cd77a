// Package sesameerr defines the error taxonomy shared across the
// module's public API: every exported failure path returns (or wraps)
// one of a fixed set of Kinds so callers can branch on what went wrong
// without parsing error strings.
package sesameerr

import (
	"errors"
	"fmt"
)

// Kind identifies which category of failure an Error represents.
type Kind int

const (
	// KindInvalidArgument covers bad key lengths, malformed hex, and
	// unknown enum bytes supplied by the caller.
	KindInvalidArgument Kind = iota
	// KindInvalidAdvertisement covers an advertisement missing the
	// vendor service UUID, missing manufacturer data, or carrying an
	// unparseable local name.
	KindInvalidAdvertisement
	// KindUnsupportedDevice covers a product type byte outside the
	// known set.
	KindUnsupportedDevice
	// KindInitialConfigNeeded covers an advertisement reporting
	// registered=false.
	KindInitialConfigNeeded
	// KindNotFound covers a scan_by_address target that never appeared.
	KindNotFound
	// KindTransportError covers GATT connect/discover/write failures
	// surfaced by the host BLE stack.
	KindTransportError
	// KindAuthError covers an AES-CCM tag mismatch or login tag
	// rejection.
	KindAuthError
	// KindProtocolError covers malformed or unexpected frames from the
	// device.
	KindProtocolError
	// KindNotLoggedIn covers an operation attempted while the session's
	// device status is not in the LoggedIn class.
	KindNotLoggedIn
	// KindStatusUnknown covers toggle() called before a mechanical
	// status has ever been received.
	KindStatusUnknown
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalidArgument"
	case KindInvalidAdvertisement:
		return "invalidAdvertisement"
	case KindUnsupportedDevice:
		return "unsupportedDevice"
	case KindInitialConfigNeeded:
		return "initialConfigNeeded"
	case KindNotFound:
		return "notFound"
	case KindTransportError:
		return "transportError"
	case KindAuthError:
		return "authError"
	case KindProtocolError:
		return "protocolError"
	case KindNotLoggedIn:
		return "notLoggedIn"
	case KindStatusUnknown:
		return "statusUnknown"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error identifying the operation that failed
// and, where applicable, the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sesame: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sesame: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error for op without an underlying cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an Error for op, attaching err as its cause.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
