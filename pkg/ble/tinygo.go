package ble

import (
	"context"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/candyhouse/gosesame/pkg/device"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

var defaultAdapter = bluetooth.DefaultAdapter

// tinygoScanner scans for peripherals using the host's default Bluetooth
// adapter via tinygo.org/x/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS).
type tinygoScanner struct {
	adapter *bluetooth.Adapter
}

// NewScanner returns a Scanner backed by the host's default adapter.
func NewScanner() (Scanner, error) {
	if err := defaultAdapter.Enable(); err != nil {
		return nil, sesameerr.Wrap("ble.NewScanner", sesameerr.KindTransportError, err)
	}
	return &tinygoScanner{adapter: defaultAdapter}, nil
}

func (s *tinygoScanner) Scan(ctx context.Context, onAdvertisement func(RawAdvertisement)) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			onAdvertisement(convertScanResult(result))
		})
	}()

	select {
	case <-ctx.Done():
		_ = s.adapter.StopScan()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return sesameerr.Wrap("ble.Scanner.Scan", sesameerr.KindTransportError, err)
		}
		return nil
	}
}

func convertScanResult(result bluetooth.ScanResult) RawAdvertisement {
	manufacturerData := make(map[uint16][]byte)
	for _, entry := range result.ManufacturerData() {
		manufacturerData[entry.CompanyID] = entry.Data
	}

	// tinygo.org/x/bluetooth's AdvertisementPayload only exposes
	// membership tests for service UUIDs, not an enumerable list; probe
	// for the one service this package cares about.
	var serviceUUIDs []string
	if result.HasServiceUUID(mustParseUUID(device.ServiceUUID)) {
		serviceUUIDs = append(serviceUUIDs, device.ServiceUUID)
	}

	return RawAdvertisement{
		Address:          result.Address.String(),
		RSSI:             int(result.RSSI),
		LocalName:        result.LocalName(),
		ServiceUUIDs:     serviceUUIDs,
		ManufacturerData: manufacturerData,
	}
}

// tinygoPeripheral is a PeripheralClient connected to one device's GATT
// server over the default adapter.
type tinygoPeripheral struct {
	adapter *bluetooth.Adapter
	address bluetooth.Address

	mu           sync.Mutex
	device       bluetooth.Device
	tx           bluetooth.DeviceCharacteristic
	rx           bluetooth.DeviceCharacteristic
	onDisconnect func()
}

// NewPeripheralClient returns a PeripheralClient for the peripheral at
// btAddress, to be connected with Connect.
func NewPeripheralClient(btAddress string) (PeripheralClient, error) {
	mac, err := bluetooth.ParseMAC(btAddress)
	if err != nil {
		return nil, sesameerr.Wrap("ble.NewPeripheralClient", sesameerr.KindInvalidArgument, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	return &tinygoPeripheral{adapter: defaultAdapter, address: addr}, nil
}

func (p *tinygoPeripheral) Connect(ctx context.Context) error {
	dev, err := p.adapter.Connect(p.address, bluetooth.ConnectionParams{})
	if err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.Connect", sesameerr.KindTransportError, err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{mustParseUUID(device.ServiceUUID)})
	if err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.Connect", sesameerr.KindTransportError, err)
	}
	if len(services) == 0 {
		return sesameerr.New("ble.PeripheralClient.Connect", sesameerr.KindNotFound)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		mustParseUUID(device.TXCharacteristicUUID),
		mustParseUUID(device.RXCharacteristicUUID),
	})
	if err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.Connect", sesameerr.KindTransportError, err)
	}

	p.adapter.SetConnectHandler(func(connectedDevice bluetooth.Device, connected bool) {
		if connected || connectedDevice.Address.String() != p.address.String() {
			return
		}
		p.mu.Lock()
		cb := p.onDisconnect
		p.mu.Unlock()
		if cb != nil {
			cb()
		}
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = dev
	for _, c := range chars {
		switch c.UUID().String() {
		case mustParseUUID(device.TXCharacteristicUUID).String():
			p.tx = c
		case mustParseUUID(device.RXCharacteristicUUID).String():
			p.rx = c
		}
	}
	if p.tx.UUID().String() == "" || p.rx.UUID().String() == "" {
		return sesameerr.New("ble.PeripheralClient.Connect", sesameerr.KindNotFound)
	}
	return nil
}

func (p *tinygoPeripheral) SubscribeNotify(onNotify NotifyFunc) error {
	p.mu.Lock()
	rx := p.rx
	p.mu.Unlock()
	err := rx.EnableNotifications(func(chunk []byte) {
		onNotify(append([]byte(nil), chunk...))
	})
	if err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.SubscribeNotify", sesameerr.KindTransportError, err)
	}
	return nil
}

// OnDisconnect registers onDisconnect to run when the adapter reports
// this peripheral's connection as lost. tinygo.org/x/bluetooth exposes
// connect/disconnect events per-adapter rather than per-device, so
// Connect installs a single adapter-wide handler that filters by
// address; only one PeripheralClient per adapter should be connected
// at a time.
func (p *tinygoPeripheral) OnDisconnect(onDisconnect func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDisconnect = onDisconnect
}

func (p *tinygoPeripheral) WriteTX(chunk []byte) error {
	p.mu.Lock()
	tx := p.tx
	p.mu.Unlock()
	if _, err := tx.WriteWithoutResponse(chunk); err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.WriteTX", sesameerr.KindTransportError, err)
	}
	return nil
}

func (p *tinygoPeripheral) Disconnect() error {
	p.mu.Lock()
	dev := p.device
	p.mu.Unlock()
	if err := dev.Disconnect(); err != nil {
		return sesameerr.Wrap("ble.PeripheralClient.Disconnect", sesameerr.KindTransportError, err)
	}
	return nil
}

func mustParseUUID(s string) bluetooth.UUID {
	id, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return id
}
