package ble

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/candyhouse/gosesame/pkg/device"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

// DefaultScanTimeout bounds a ScanByAddress call when the caller's
// context carries no deadline.
const DefaultScanTimeout = 10 * time.Second

// PeripheralClientFactory builds a PeripheralClient for a discovered
// peripheral address. Overridden in tests to avoid a real adapter.
type PeripheralClientFactory func(address string) (PeripheralClient, error)

// ManagerConfig configures a Manager's dependencies.
type ManagerConfig struct {
	// Scanner discovers advertisements. If nil, NewScanner's default
	// adapter-backed scanner is used.
	Scanner Scanner
	// PeripheralFactory builds GATT links to discovered peripherals.
	// If nil, NewPeripheralClient's default adapter-backed client is
	// used.
	PeripheralFactory PeripheralClientFactory
	// LoggerFactory creates named loggers for sessions the Manager
	// connects.
	LoggerFactory logging.LoggerFactory
}

// Manager discovers SESAME peripherals and connects Sessions to them,
// the BLE-facing counterpart of device.Session's GATT-agnostic state
// machine.
type Manager struct {
	scanner           Scanner
	peripheralFactory PeripheralClientFactory
	loggerFactory     logging.LoggerFactory

	mu     sync.Mutex
	closed bool
}

// NewManager builds a Manager from config, defaulting to the host's
// Bluetooth adapter when Scanner/PeripheralFactory are not set.
func NewManager(config ManagerConfig) (*Manager, error) {
	scanner := config.Scanner
	if scanner == nil {
		var err error
		scanner, err = NewScanner()
		if err != nil {
			return nil, err
		}
	}
	factory := config.PeripheralFactory
	if factory == nil {
		factory = NewPeripheralClient
	}
	return &Manager{
		scanner:           scanner,
		peripheralFactory: factory,
		loggerFactory:     config.LoggerFactory,
	}, nil
}

// Scan reports every decodable SESAME advertisement observed until ctx
// is done. Advertisements that fail to decode (unknown product type,
// missing service UUID, malformed manufacturer payload) are dropped
// silently, mirroring a scanner that simply ignores devices outside
// its product family.
func (m *Manager) Scan(ctx context.Context) (<-chan *device.Advertisement, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, sesameerr.New("ble.Manager.Scan", sesameerr.KindTransportError)
	}
	m.mu.Unlock()

	out := make(chan *device.Advertisement)
	go func() {
		defer close(out)
		_ = m.scanner.Scan(ctx, func(raw RawAdvertisement) {
			adv, err := decodeRawAdvertisement(raw)
			if err != nil {
				return
			}
			select {
			case out <- adv:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

// ScanByAddress scans until a SESAME advertisement from btAddress is
// observed or the context (bounded by DefaultScanTimeout if it carries
// no deadline) expires.
func (m *Manager) ScanByAddress(ctx context.Context, btAddress string) (*device.Advertisement, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultScanTimeout)
		defer cancel()
	}

	advertisements, err := m.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for adv := range advertisements {
		if adv.BTAddress == btAddress {
			return adv, nil
		}
	}
	return nil, sesameerr.New("ble.Manager.ScanByAddress", sesameerr.KindNotFound)
}

// Connect builds a Session for adv and key, connects its GATT link, and
// attaches it so notifications begin flowing. The peripheral's
// disconnect callback is wired to Session.HandleDisconnect, so a lost
// connection resets the session's advertisement to none, drops status
// to NoBleSignal, and fails any in-flight WaitForLogin, per spec;
// callers are responsible for calling Session.WaitForLogin afterward.
func (m *Manager) Connect(ctx context.Context, adv *device.Advertisement, key *device.Key) (*device.Session, error) {
	session, err := device.NewSessionWithParams(adv, key, device.SessionConfig{LoggerFactory: m.loggerFactory})
	if err != nil {
		return nil, err
	}

	client, err := m.peripheralFactory(adv.BTAddress)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	link := &peripheralLink{client: client}
	if err := client.SubscribeNotify(session.HandleNotifyChunk); err != nil {
		return nil, err
	}
	client.OnDisconnect(session.HandleDisconnect)
	session.Attach(link)
	return session, nil
}

// Close marks the Manager closed, so later Scan calls fail with
// KindTransportError; it does not stop a scan already in progress.
// Sessions previously returned by Connect are unaffected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// peripheralLink adapts a PeripheralClient to device.Link.
type peripheralLink struct {
	client PeripheralClient
}

func (l *peripheralLink) WriteTX(chunk []byte) error {
	return l.client.WriteTX(chunk)
}

func decodeRawAdvertisement(raw RawAdvertisement) (*device.Advertisement, error) {
	return device.DecodeAdvertisement(raw.Address, raw.RSSI, raw.ServiceUUIDs, raw.ManufacturerData, raw.LocalName)
}
