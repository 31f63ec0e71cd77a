package ble

import (
	"context"
	"sync"
	"time"

	"github.com/candyhouse/gosesame/pkg/transport"
)

// MockScanner replays a fixed set of advertisements to every Scan call,
// standing in for a real adapter in tests. Each entry is emitted once,
// after which Scan blocks until ctx is done.
type MockScanner struct {
	Advertisements []RawAdvertisement
	// EmitInterval spaces out emissions; zero emits immediately.
	EmitInterval time.Duration
}

func (m *MockScanner) Scan(ctx context.Context, onAdvertisement func(RawAdvertisement)) error {
	for _, adv := range m.Advertisements {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if m.EmitInterval > 0 {
			time.Sleep(m.EmitInterval)
		}
		onAdvertisement(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// MockLink is a PeripheralClient standing in for a real GATT
// connection in tests. Notifications are delivered over an in-memory
// transport.Pipe (InjectNotify writes the peripheral side, a reader
// goroutine drains the host side and invokes the subscribed
// NotifyFunc); outbound writes are recorded directly, since nothing in
// the mock plays the part of a device that would consume them.
type MockLink struct {
	notifyPipe *transport.Pipe

	mu           sync.Mutex
	onNotify     NotifyFunc
	onDisconnect func()
	closed       bool
	written      [][]byte
}

// NewMockLink creates a MockLink over a fresh in-memory notify pipe.
func NewMockLink() *MockLink {
	return &MockLink{notifyPipe: transport.NewPipe()}
}

// NewMockPeripheralClientFactory returns a PeripheralClientFactory that
// always hands back link for any address, for single-device tests.
func NewMockPeripheralClientFactory(link *MockLink) PeripheralClientFactory {
	return func(address string) (PeripheralClient, error) {
		return link, nil
	}
}

func (m *MockLink) Connect(ctx context.Context) error { return nil }

func (m *MockLink) SubscribeNotify(onNotify NotifyFunc) error {
	m.mu.Lock()
	m.onNotify = onNotify
	m.mu.Unlock()
	go m.readLoop()
	return nil
}

// OnDisconnect registers onDisconnect to run when Disconnect is called
// or InjectDisconnect simulates the peripheral dropping out of range.
func (m *MockLink) OnDisconnect(onDisconnect func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = onDisconnect
}

// WriteTX records chunk instead of transmitting it; tests inspect
// Written to assert on what a Session sent.
func (m *MockLink) WriteTX(chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), chunk...))
	return nil
}

// Written returns every chunk passed to WriteTX so far.
func (m *MockLink) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

func (m *MockLink) Disconnect() error {
	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	cb := m.onDisconnect
	m.mu.Unlock()
	err := m.notifyPipe.Close()
	if !alreadyClosed && cb != nil {
		cb()
	}
	return err
}

// InjectNotify simulates the peripheral sending one raw GATT
// notification chunk to the host.
func (m *MockLink) InjectNotify(chunk []byte) error {
	_, err := m.notifyPipe.PeripheralConn().Write(chunk)
	return err
}

// InjectDisconnect simulates the peripheral dropping the connection on
// its own, e.g. going out of range, without the host calling
// Disconnect.
func (m *MockLink) InjectDisconnect() {
	_ = m.Disconnect()
}

func (m *MockLink) readLoop() {
	buf := make([]byte, 256)
	conn := m.notifyPipe.HostConn()
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			m.mu.Lock()
			cb := m.onNotify
			closed := m.closed
			m.mu.Unlock()
			if cb != nil && !closed {
				cb(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			return
		}
	}
}
