// Package ble adapts a generic BLE central stack to the SESAME GATT
// session protocol: scanning for advertisements, connecting to a
// peripheral, and shuttling fragmented chunks over its TX/RX
// characteristics into a device.Session.
package ble

import "context"

// RawAdvertisement is the scanner-facing view of one BLE advertisement,
// before it has been decoded into a device.Advertisement.
type RawAdvertisement struct {
	Address          string
	RSSI             int
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerData map[uint16][]byte
}

// Scanner discovers nearby BLE peripherals. Implementations report each
// advertisement they observe via the callback until ctx is done.
type Scanner interface {
	Scan(ctx context.Context, onAdvertisement func(RawAdvertisement)) error
}

// NotifyFunc receives one inbound GATT notification chunk from a
// peripheral's RX characteristic.
type NotifyFunc func(chunk []byte)

// PeripheralClient is a connected GATT link to one peripheral: writing
// chunks to its TX characteristic and delivering RX notifications.
// Connect must be called before WriteTX, SubscribeNotify, or
// OnDisconnect.
type PeripheralClient interface {
	// Connect establishes the GATT connection and discovers the
	// SESAME service and its TX/RX characteristics.
	Connect(ctx context.Context) error
	// SubscribeNotify registers the callback invoked for each inbound
	// RX notification. Must be called once, after Connect.
	SubscribeNotify(onNotify NotifyFunc) error
	// OnDisconnect registers the callback invoked once the GATT
	// connection is lost, whether through an explicit Disconnect call
	// or the peripheral dropping out of range. Must be called once,
	// after Connect.
	OnDisconnect(onDisconnect func())
	// WriteTX writes one framed chunk to the TX characteristic.
	WriteTX(chunk []byte) error
	// Disconnect tears down the GATT connection.
	Disconnect() error
}
