package device

import (
	"context"
	"sync"

	"github.com/pion/logging"

	"github.com/candyhouse/gosesame/pkg/fragment"
	"github.com/candyhouse/gosesame/pkg/protocol"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

const loginHeaderSize = 4 + 4 // system_time(4) || reserved(4)

// Link is the outbound half of a session's transport: writing one
// framed GATT chunk to the device's TX characteristic. The BLE layer
// owns connecting, discovering services, and subscribing to
// notifications; it feeds inbound chunks to Session.HandleNotifyChunk
// and calls Session.HandleDisconnect when the link drops.
type Link interface {
	WriteTX(chunk []byte) error
}

// StatusChangeFunc is invoked whenever a Session's Status changes
// value. It runs on the same goroutine that processed the inbound
// notification or state transition and must not block.
type StatusChangeFunc func(*Session)

// SessionConfig configures a Session's optional dependencies.
type SessionConfig struct {
	// LoggerFactory creates a named logger for this session. If nil,
	// logging is disabled.
	LoggerFactory logging.LoggerFactory
	// LocalAppKeyOverride pins a specific LocalAppKey instead of the
	// process singleton, for reproducible handshake vectors in tests.
	LocalAppKeyOverride *LocalAppKey
}

// Session drives one SESAME device's BLE session state machine:
// scanning already happened (the manager handed it an Advertisement),
// and once the BLE layer has connected and attached a Link, the
// session owns logging in, parsing status/setting updates, and issuing
// lock/unlock/click/toggle commands. A Session is not safe for concurrent use from multiple
// goroutines beyond the guarantees documented on its exported methods.
type Session struct {
	mu sync.Mutex

	advertisement *advertisementState
	profile       Profile
	localKey      *LocalAppKey
	key           *Key

	status Status

	link   Link
	cipher *SessionCipher
	rx     *fragment.Receiver

	mechStatus  MechStatus
	mechSetting MechSetting
	rawStatus   any
	rawSetting  any
	intention   protocol.Intention

	onStatusChange StatusChangeFunc
	loginWaiters   []chan error

	lastErr error

	log logging.LeveledLogger
}

type advertisementState struct {
	productModel ProductModel
	registered   bool
	deviceUUID   string
	rssi         int
}

// NewSession builds a Session for the product family and key material
// identified by adv and key, using the process-singleton LocalAppKey.
func NewSession(adv *Advertisement, key *Key) (*Session, error) {
	return NewSessionWithParams(adv, key, SessionConfig{})
}

// NewSessionWithParams builds a Session with an explicit configuration.
func NewSessionWithParams(adv *Advertisement, key *Key, config SessionConfig) (*Session, error) {
	if adv == nil {
		return nil, sesameerr.New("device.NewSession", sesameerr.KindInvalidArgument)
	}
	if adv.ProductModel.NewProfile() == nil {
		return nil, sesameerr.New("device.NewSession", sesameerr.KindUnsupportedDevice)
	}

	localKey := config.LocalAppKeyOverride
	if localKey == nil {
		var err error
		localKey, err = GetLocalAppKey()
		if err != nil {
			return nil, sesameerr.Wrap("device.NewSession", sesameerr.KindTransportError, err)
		}
	}

	s := &Session{
		profile:  adv.ProductModel.NewProfile(),
		localKey: localKey,
		key:      key,
		status:   NoBleSignal,
		rx:       fragment.NewReceiver(),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("device-session")
	}
	if err := s.SetAdvertisement(adv); err != nil {
		return nil, err
	}
	return s, nil
}

// SetAdvertisement installs a freshly scanned advertisement, or (when
// adv is nil) resets the session to NoBleSignal with RSSI pinned to
// -100, mirroring a peripheral that has dropped out of range.
func (s *Session) SetAdvertisement(adv *Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adv == nil {
		s.advertisement = &advertisementState{rssi: -100}
		s.setStatusLocked(NoBleSignal)
		return nil
	}
	if !adv.IsRegistered {
		s.advertisement = &advertisementState{
			productModel: adv.ProductModel,
			registered:   false,
			deviceUUID:   adv.DeviceUUID.String(),
			rssi:         adv.RSSI,
		}
		return sesameerr.New("device.SetAdvertisement", sesameerr.KindInitialConfigNeeded)
	}
	profile := adv.ProductModel.NewProfile()
	if profile == nil {
		return sesameerr.New("device.SetAdvertisement", sesameerr.KindUnsupportedDevice)
	}

	s.advertisement = &advertisementState{
		productModel: adv.ProductModel,
		registered:   true,
		deviceUUID:   adv.DeviceUUID.String(),
		rssi:         adv.RSSI,
	}
	s.profile = profile
	s.setStatusLocked(ReceivedBle)
	return nil
}

// Attach installs the transport Link once the BLE layer has connected,
// discovered services, and subscribed to RX notifications, and moves
// the session to WaitingGatt.
func (s *Session) Attach(link Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link = link
	s.setStatusLocked(WaitingGatt)
}

// HandleDisconnect resets the session after the underlying link drops:
// the advertisement, cipher, and login state are all cleared, and the
// status returns to NoBleSignal. Reconnecting requires a fresh scan.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link = nil
	s.cipher = nil
	s.rx = fragment.NewReceiver()
	s.advertisement = &advertisementState{rssi: -100}
	s.setStatusLocked(NoBleSignal)
	s.failLoginWaitersLocked()
}

// Status returns the session's current DeviceStatus.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RSSI returns the signal strength from the most recently installed
// advertisement.
func (s *Session) RSSI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertisement.rssi
}

// DeviceUUID returns the device's identity UUID as a string.
func (s *Session) DeviceUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertisement.deviceUUID
}

// Key returns the session's device key material. Callers may mutate it
// via its SetSecretKey/SetDevicePublicKey methods before the handshake
// completes (e.g. during registration flows).
func (s *Session) Key() *Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// ProductModel returns the device's product family.
func (s *Session) ProductModel() ProductModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertisement.productModel
}

// MechStatus returns the most recently parsed mechanical status.
func (s *Session) MechStatus() MechStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mechStatus
}

// MechSetting returns the most recently parsed mechanical setting.
func (s *Session) MechSetting() MechSetting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mechSetting
}

// Intention returns the most recently derived Intention.
func (s *Session) Intention() protocol.Intention {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intention
}

// LastError returns the most recent error surfaced outside of a direct
// method return, for callers that poll instead of checking sends.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetStatusCallback registers a callback invoked whenever Status
// changes value. Passing nil clears it.
func (s *Session) SetStatusCallback(cb StatusChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatusChange = cb
}

// WaitForLogin blocks until the login event is raised, the link
// disconnects (which returns a KindNotLoggedIn error, not success), or
// ctx is done.
func (s *Session) WaitForLogin(ctx context.Context) error {
	s.mu.Lock()
	if s.status.LoginClass() == LoggedIn {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	s.loginWaiters = append(s.loginWaiters, ch)
	s.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lock sends an authenticated lock command with the given history tag.
func (s *Session) Lock(historyTag string) error {
	return s.sendAuthenticated(protocol.ItemLock, historyTag)
}

// Unlock sends an authenticated unlock command with the given history
// tag.
func (s *Session) Unlock(historyTag string) error {
	return s.sendAuthenticated(protocol.ItemUnlock, historyTag)
}

// Click sends an authenticated click command (bot family only).
func (s *Session) Click(historyTag string) error {
	s.mu.Lock()
	supportsClick := s.profile.SupportsClick()
	s.mu.Unlock()
	if !supportsClick {
		return sesameerr.New("device.Session.Click", sesameerr.KindUnsupportedDevice)
	}
	return s.sendAuthenticated(protocol.ItemClick, historyTag)
}

// Toggle inspects the current mechanical status and locks or unlocks
// accordingly, failing StatusUnknown if neither range flag is set.
func (s *Session) Toggle(historyTag string) error {
	s.mu.Lock()
	status := s.mechStatus
	s.mu.Unlock()

	switch {
	case status.InLockRange:
		return s.Unlock(historyTag)
	case status.InUnlockRange:
		return s.Lock(historyTag)
	default:
		return sesameerr.New("device.Session.Toggle", sesameerr.KindStatusUnknown)
	}
}

func (s *Session) sendAuthenticated(item protocol.ItemCode, historyTag string) error {
	s.mu.Lock()
	if s.status.LoginClass() != LoggedIn {
		s.mu.Unlock()
		return sesameerr.New("device.Session.send", sesameerr.KindNotLoggedIn)
	}
	cipher := s.cipher
	link := s.link
	s.mu.Unlock()

	if cipher == nil || link == nil {
		return sesameerr.New("device.Session.send", sesameerr.KindNotLoggedIn)
	}

	body := protocol.CreateHistoryTag(historyTag)
	frame := protocol.EncodeCommand(protocol.OpAsync, item, body)

	ciphertext, err := cipher.Seal(frame)
	if err != nil {
		return err
	}
	return s.transmit(fragment.Ciphertext, ciphertext, link)
}

func (s *Session) transmit(kind fragment.Kind, payload []byte, link Link) error {
	tx, err := fragment.NewTransmitter(kind, payload)
	if err != nil {
		return sesameerr.Wrap("device.Session.transmit", sesameerr.KindProtocolError, err)
	}
	for !tx.Done() {
		chunk := tx.NextChunk()
		if err := link.WriteTX(chunk); err != nil {
			return sesameerr.Wrap("device.Session.transmit", sesameerr.KindTransportError, err)
		}
	}
	return nil
}

// HandleNotifyChunk feeds one inbound GATT notification chunk to the
// session's fragment receiver, dispatching a fully reassembled frame
// once one completes.
func (s *Session) HandleNotifyChunk(chunk []byte) {
	s.mu.Lock()
	kind, body, ok := s.rx.Feed(chunk)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.handleFrame(kind, body)
}

func (s *Session) handleFrame(kind fragment.Kind, body []byte) {
	frame := body
	if kind == fragment.Ciphertext {
		s.mu.Lock()
		cipher := s.cipher
		s.mu.Unlock()
		if cipher == nil {
			s.recordError(sesameerr.New("device.Session.handleFrame", sesameerr.KindProtocolError))
			return
		}
		plain, err := cipher.Open(body)
		if err != nil {
			s.recordError(err)
			return
		}
		frame = plain
	}

	pub, resp, err := protocol.DecodeNotify(frame)
	if err != nil {
		s.recordError(sesameerr.Wrap("device.Session.handleFrame", sesameerr.KindProtocolError, err))
		return
	}

	switch {
	case pub != nil:
		s.handlePublish(pub)
	case resp != nil:
		s.handleResponse(resp)
	}
}

func (s *Session) handlePublish(pub *protocol.Publish) {
	switch pub.Item {
	case protocol.ItemInitial:
		s.handleInitial(pub.Body)
	case protocol.ItemMechStatus:
		s.applyStatus(pub.Body)
	case protocol.ItemMechSetting:
		s.applySetting(pub.Body)
	}
}

func (s *Session) handleResponse(resp *protocol.Response) {
	if resp.Item != protocol.ItemLogin {
		return
	}
	if resp.Result != protocol.ResultSuccess {
		s.recordError(sesameerr.New("device.Session.handleResponse", sesameerr.KindAuthError))
		return
	}
	s.applyLoginPayload(resp.Body)
}

func (s *Session) handleInitial(body []byte) {
	const sesameTokenSize = 4
	if len(body) < sesameTokenSize {
		s.recordError(sesameerr.New("device.Session.handleInitial", sesameerr.KindProtocolError))
		return
	}

	s.mu.Lock()
	registered := s.advertisement.registered
	s.mu.Unlock()
	if !registered {
		s.mu.Lock()
		s.setStatusLocked(ReadyToRegister)
		s.mu.Unlock()
		s.recordError(sesameerr.New("device.Session.handleInitial", sesameerr.KindUnsupportedDevice))
		return
	}

	var sesameToken [4]byte
	copy(sesameToken[:], body[:sesameTokenSize])

	s.mu.Lock()
	key := s.key
	localKey := s.localKey
	link := s.link
	s.mu.Unlock()

	sessionKey, sessionToken, tagResp, err := keyAgreement(key, localKey, sesameToken)
	if err != nil {
		s.recordError(err)
		return
	}
	cipher, err := NewSessionCipher(sessionKey, sessionToken)
	if err != nil {
		s.recordError(err)
		return
	}

	s.mu.Lock()
	s.cipher = cipher
	s.setStatusLocked(BleLogining)
	s.mu.Unlock()

	payload := buildLoginPayload(localKey, tagResp)
	frame := protocol.EncodeCommand(protocol.OpSync, protocol.ItemLogin, payload)
	if link != nil {
		if err := s.transmit(fragment.Plaintext, frame, link); err != nil {
			s.recordError(err)
		}
	}
}

func (s *Session) applyLoginPayload(body []byte) {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	settingSize := profile.SettingWireSize()
	statusSize := profile.StatusWireSize()
	if len(body) < loginHeaderSize+settingSize+statusSize {
		s.recordError(sesameerr.New("device.Session.applyLoginPayload", sesameerr.KindProtocolError))
		return
	}

	settingBody := body[loginHeaderSize : loginHeaderSize+settingSize]
	statusBody := body[loginHeaderSize+settingSize : loginHeaderSize+settingSize+statusSize]

	if !s.applySetting(settingBody) {
		return
	}
	if !s.applyStatus(statusBody) {
		return
	}

	s.mu.Lock()
	if s.mechSetting.IsConfigured {
		if s.mechStatus.InLockRange {
			s.setStatusLocked(Locked)
		} else {
			s.setStatusLocked(Unlocked)
		}
	} else {
		s.setStatusLocked(NoSettings)
	}
	waiters := s.loginWaiters
	s.loginWaiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- nil
	}
}

func (s *Session) applyStatus(body []byte) bool {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	status, raw, err := profile.ParseStatus(body)
	if err != nil {
		s.recordError(sesameerr.Wrap("device.Session.applyStatus", sesameerr.KindProtocolError, err))
		return false
	}

	s.mu.Lock()
	s.mechStatus = status
	s.rawStatus = raw
	s.intention = profile.DeriveIntention(s.rawStatus, s.rawSetting)
	s.mu.Unlock()
	return true
}

func (s *Session) applySetting(body []byte) bool {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	setting, raw, err := profile.ParseSetting(body)
	if err != nil {
		s.recordError(sesameerr.Wrap("device.Session.applySetting", sesameerr.KindProtocolError, err))
		return false
	}

	s.mu.Lock()
	s.mechSetting = setting
	s.rawSetting = raw
	s.intention = profile.DeriveIntention(s.rawStatus, s.rawSetting)
	s.mu.Unlock()
	return true
}

// setStatusLocked must be called with s.mu held. It updates status and
// invokes the status-change callback (outside the lock) exactly once
// per distinct value change.
func (s *Session) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	cb := s.onStatusChange
	if cb == nil {
		return
	}
	s.mu.Unlock()
	cb(s)
	s.mu.Lock()
}

// failLoginWaitersLocked must be called with s.mu held. It fails every
// pending WaitForLogin call with KindNotLoggedIn: a disconnect is never
// a successful login, even if one was in flight.
func (s *Session) failLoginWaitersLocked() {
	waiters := s.loginWaiters
	s.loginWaiters = nil
	err := sesameerr.New("device.Session.HandleDisconnect", sesameerr.KindNotLoggedIn)
	for _, ch := range waiters {
		ch <- err
	}
}

func (s *Session) recordError(err error) {
	if s.log != nil {
		s.log.Warnf("session error: %v", err)
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
