package device

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

func testLocalKey(t *testing.T) *LocalAppKey {
	t.Helper()
	k, err := newLocalAppKey()
	if err != nil {
		t.Fatalf("newLocalAppKey: %v", err)
	}
	return k
}

func testKey(t *testing.T) *Key {
	t.Helper()
	secret := make([]byte, secretKeySize)
	pub := make([]byte, devicePublicKeySize)
	k, err := NewKey(secret, pub)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	return k
}

func lockAdvertisement() *Advertisement {
	return &Advertisement{
		BTAddress:    "AA:BB:CC:DD:EE:FF",
		RSSI:         -55,
		ProductModel: SS2,
		IsRegistered: true,
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSessionWithParams(lockAdvertisement(), testKey(t), SessionConfig{LocalAppKeyOverride: testLocalKey(t)})
	if err != nil {
		t.Fatalf("NewSessionWithParams: %v", err)
	}
	return s
}

func TestNewSessionUnregisteredFailsInitialConfigNeeded(t *testing.T) {
	adv := lockAdvertisement()
	adv.IsRegistered = false

	_, err := NewSessionWithParams(adv, testKey(t), SessionConfig{LocalAppKeyOverride: testLocalKey(t)})
	if !sesameerr.Is(err, sesameerr.KindInitialConfigNeeded) {
		t.Fatalf("err = %v, want InitialConfigNeeded", err)
	}
}

func TestNewSessionRejectsWM2AsUnsupportedDevice(t *testing.T) {
	adv := lockAdvertisement()
	adv.ProductModel = WM2

	_, err := NewSessionWithParams(adv, testKey(t), SessionConfig{LocalAppKeyOverride: testLocalKey(t)})
	if !sesameerr.Is(err, sesameerr.KindUnsupportedDevice) {
		t.Fatalf("err = %v, want UnsupportedDevice", err)
	}
}

func TestSessionOperationsFailNotLoggedIn(t *testing.T) {
	s := newTestSession(t)

	if err := s.Lock("tag"); !sesameerr.Is(err, sesameerr.KindNotLoggedIn) {
		t.Fatalf("Lock err = %v, want NotLoggedIn", err)
	}
	if err := s.Unlock("tag"); !sesameerr.Is(err, sesameerr.KindNotLoggedIn) {
		t.Fatalf("Unlock err = %v, want NotLoggedIn", err)
	}
	if err := s.Toggle("tag"); !sesameerr.Is(err, sesameerr.KindStatusUnknown) {
		t.Fatalf("Toggle err = %v, want StatusUnknown (no status received yet)", err)
	}
}

func TestSessionClickFailsUnsupportedOnLock(t *testing.T) {
	s := newTestSession(t)
	if err := s.Click("tag"); !sesameerr.Is(err, sesameerr.KindUnsupportedDevice) {
		t.Fatalf("Click err = %v, want UnsupportedDevice", err)
	}
}

// Invariant 6: the status-change callback fires exactly once per
// distinct value change, not once per internal transition attempt.
func TestSessionStatusCallbackFiresOnceOnChange(t *testing.T) {
	s := newTestSession(t)

	calls := 0
	var lastStatus Status
	s.SetStatusCallback(func(sess *Session) {
		calls++
		lastStatus = sess.Status()
	})

	s.Attach(&noopLink{})
	if calls != 1 {
		t.Fatalf("calls after Attach = %d, want 1", calls)
	}
	if lastStatus != WaitingGatt {
		t.Fatalf("lastStatus = %v, want waitingGatt", lastStatus)
	}

	// Setting the same status again must not fire the callback again.
	s.mu.Lock()
	s.setStatusLocked(WaitingGatt)
	s.mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls after redundant transition = %d, want 1", calls)
	}
}

func TestSessionHandleDisconnectResetsToNoBleSignal(t *testing.T) {
	s := newTestSession(t)
	s.Attach(&noopLink{})

	s.HandleDisconnect()
	if got := s.Status(); got != NoBleSignal {
		t.Fatalf("status = %v, want noBleSignal", got)
	}
	if got := s.RSSI(); got != -100 {
		t.Fatalf("rssi = %d, want -100", got)
	}
}

func TestSessionWaitForLoginFailsOnDisconnect(t *testing.T) {
	s := newTestSession(t)
	s.Attach(&noopLink{})

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- s.WaitForLogin(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	s.HandleDisconnect()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("WaitForLogin resolved successfully on disconnect, want an error")
		}
		if !sesameerr.Is(err, sesameerr.KindNotLoggedIn) {
			t.Fatalf("WaitForLogin error = %v, want KindNotLoggedIn", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLogin did not resolve after disconnect")
	}
}

func TestSessionWaitForLoginResolvesOnLoginPayload(t *testing.T) {
	s := newTestSession(t)
	s.Attach(&noopLink{})

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- s.WaitForLogin(ctx)
	}()

	body, _ := hex.DecodeString("f545d36001008001e30105034d0179026f029b035e03008016020002")
	s.applyLoginPayload(body)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForLogin: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLogin did not resolve")
	}

	if got := s.Status(); got != Locked {
		t.Fatalf("status = %v, want locked", got)
	}
}

// S4 (login payload parse), driven through the session instead of the
// raw protocol decoders.
func TestSessionApplyLoginPayloadScenario(t *testing.T) {
	s := newTestSession(t)
	body, _ := hex.DecodeString("f545d36001008001e30105034d0179026f029b035e03008016020002")

	s.applyLoginPayload(body)

	if !s.MechSetting().IsConfigured {
		t.Fatal("expected mechSetting.IsConfigured = true")
	}
	if !s.MechStatus().InLockRange {
		t.Fatal("expected mechStatus.InLockRange = true")
	}
}

func TestSessionLockSucceedsAfterLogin(t *testing.T) {
	s := newTestSession(t)
	link := &recordingLink{}
	s.Attach(link)

	body, _ := hex.DecodeString("f545d36001008001e30105034d0179026f029b035e03008016020002")
	sessionKey := make([]byte, sessionKeySize)
	var token [sessionTokenSize]byte
	cipher, err := NewSessionCipher(sessionKey, token)
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}
	s.mu.Lock()
	s.cipher = cipher
	s.mu.Unlock()
	s.applyLoginPayload(body)

	if err := s.Lock("door"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if len(link.chunks) == 0 {
		t.Fatal("expected Lock to write at least one chunk")
	}
}

type noopLink struct{}

func (n *noopLink) WriteTX(chunk []byte) error { return nil }

type recordingLink struct {
	chunks [][]byte
}

func (r *recordingLink) WriteTX(chunk []byte) error {
	r.chunks = append(r.chunks, append([]byte(nil), chunk...))
	return nil
}
