package sesameerr

import (
	"errors"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("tag mismatch")
	err := Wrap("session.decrypt", KindAuthError, cause)

	if !Is(err, KindAuthError) {
		t.Fatal("expected Is to match KindAuthError")
	}
	if Is(err, KindProtocolError) {
		t.Fatal("expected Is to not match KindProtocolError")
	}
}

func TestIsMatchesThroughErrorsJoin(t *testing.T) {
	err := New("manager.scanByAddress", KindNotFound)
	wrapped := errors.Join(err)

	if !Is(wrapped, KindNotFound) {
		t.Fatal("expected Is to see through errors.Join")
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := New("device.toggle", KindStatusUnknown)
	got := err.Error()
	want := "sesame: device.toggle: statusUnknown"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap("ble.connect", KindTransportError, cause)
	if errors.Unwrap(err) != cause {
		t.Fatal("expected Unwrap to return the wrapped cause")
	}
}
