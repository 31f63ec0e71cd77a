package ble_test

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/candyhouse/gosesame/pkg/ble"
	"github.com/candyhouse/gosesame/pkg/device"
	"github.com/candyhouse/gosesame/pkg/fragment"
	"github.com/candyhouse/gosesame/pkg/protocol"
)

func testKey(t *testing.T) *device.Key {
	t.Helper()
	secret := make([]byte, 16)
	pub := make([]byte, 64)
	k, err := device.NewKey(secret, pub)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	return k
}

func lockRawAdvertisement(address string) ble.RawAdvertisement {
	return ble.RawAdvertisement{
		Address:      address,
		RSSI:         -50,
		ServiceUUIDs: []string{device.ServiceUUID},
		ManufacturerData: map[uint16][]byte{
			device.ManufacturerID: {device.SS2.ProductTypeByte(), 0x00, 0x01},
		},
		LocalName: "AQIDBAUGBwgJCgsMDQ4PEA",
	}
}

func TestManagerScanDecodesAdvertisements(t *testing.T) {
	scanner := &ble.MockScanner{Advertisements: []ble.RawAdvertisement{
		lockRawAdvertisement("AA:BB:CC:DD:EE:FF"),
	}}
	m, err := ble.NewManager(ble.ManagerConfig{Scanner: scanner})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	advertisements, err := m.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	adv, ok := <-advertisements
	if !ok {
		t.Fatal("expected at least one decoded advertisement")
	}
	if adv.BTAddress != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("BTAddress = %q, want AA:BB:CC:DD:EE:FF", adv.BTAddress)
	}
}

func TestManagerScanByAddressFindsMatch(t *testing.T) {
	scanner := &ble.MockScanner{Advertisements: []ble.RawAdvertisement{
		lockRawAdvertisement("11:11:11:11:11:11"),
		lockRawAdvertisement("22:22:22:22:22:22"),
	}}
	m, err := ble.NewManager(ble.ManagerConfig{Scanner: scanner})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	adv, err := m.ScanByAddress(ctx, "22:22:22:22:22:22")
	if err != nil {
		t.Fatalf("ScanByAddress: %v", err)
	}
	if adv.BTAddress != "22:22:22:22:22:22" {
		t.Fatalf("BTAddress = %q, want 22:22:22:22:22:22", adv.BTAddress)
	}
}

func TestManagerConnectAttachesMockLinkAndDeliversNotifications(t *testing.T) {
	link := ble.NewMockLink()
	m, err := ble.NewManager(ble.ManagerConfig{
		Scanner:           &ble.MockScanner{},
		PeripheralFactory: ble.NewMockPeripheralClientFactory(link),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	adv := &device.Advertisement{
		BTAddress:    "AA:BB:CC:DD:EE:FF",
		RSSI:         -55,
		ProductModel: device.SS2,
		IsRegistered: true,
	}

	session, err := m.Connect(context.Background(), adv, testKey(t))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	fixture, err := hex.DecodeString("f545d36001008001e30105034d0179026f029b035e03008016020002")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	settingBody := fixture[8:12] // the lock/unlock positions that open the S4 fixture's lock-setting record

	inner := protocol.EncodeCommand(protocol.OpPublish, protocol.ItemMechSetting, settingBody)
	tx, err := fragment.NewTransmitter(fragment.Plaintext, inner)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	for !tx.Done() {
		if err := link.InjectNotify(tx.NextChunk()); err != nil {
			t.Fatalf("InjectNotify: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if session.MechSetting().IsConfigured {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never observed the injected mechanical setting")
}

func TestManagerConnectWiresPeripheralDisconnectToSession(t *testing.T) {
	link := ble.NewMockLink()
	m, err := ble.NewManager(ble.ManagerConfig{
		Scanner:           &ble.MockScanner{},
		PeripheralFactory: ble.NewMockPeripheralClientFactory(link),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	adv := &device.Advertisement{
		BTAddress:    "AA:BB:CC:DD:EE:FF",
		RSSI:         -55,
		ProductModel: device.SS2,
		IsRegistered: true,
	}

	session, err := m.Connect(context.Background(), adv, testKey(t))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- session.WaitForLogin(ctx)
	}()

	// give WaitForLogin a moment to register before the peripheral drops.
	time.Sleep(20 * time.Millisecond)
	link.InjectDisconnect()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("WaitForLogin resolved successfully on disconnect, want an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLogin did not resolve after disconnect")
	}

	if got := session.Status(); got != device.NoBleSignal {
		t.Fatalf("status = %v, want NoBleSignal", got)
	}
}
