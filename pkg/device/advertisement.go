package device

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

// ServiceUUID is the vendor GATT service UUID every SESAME peripheral
// advertises.
const ServiceUUID = "0000fd81-0000-1000-8000-00805f9b34fb"

// TXCharacteristicUUID is the host-to-device GATT characteristic.
const TXCharacteristicUUID = "16860002-a5ae-9856-b6d3-dbb4c676993e"

// RXCharacteristicUUID is the device-to-host notify GATT characteristic.
const RXCharacteristicUUID = "16860003-a5ae-9856-b6d3-dbb4c676993e"

// ManufacturerID is the Bluetooth SIG company identifier CANDY HOUSE
// advertises manufacturer data under.
const ManufacturerID uint16 = 0x055A

// wm2UUIDPrefix is the fixed 10-byte namespace prefix a WM2's
// device_uuid is built from; the trailing six bytes come from the
// advertisement payload.
const wm2UUIDPrefixHex = "00000000055afd810001"

const (
	registeredFlagBit = 1 << 0
	minManufacturerLen = 3
)

// Advertisement is a decoded SESAME BLE advertisement.
type Advertisement struct {
	BTAddress    string
	RSSI         int
	ProductModel ProductModel
	IsRegistered bool
	DeviceUUID   uuid.UUID
}

// DecodeAdvertisement parses a peripheral's advertisement into an
// Advertisement. serviceUUIDs must include ServiceUUID; manufacturerData
// must carry ManufacturerID with at least three bytes of payload; for
// the WM2 family the payload must carry at least nine bytes (the
// product/reserved/flags header plus the six UUID payload bytes), and
// for every other family localName must be a valid base64-encoded
// 16-byte UUID.
func DecodeAdvertisement(btAddress string, rssi int, serviceUUIDs []string, manufacturerData map[uint16][]byte, localName string) (*Advertisement, error) {
	if !containsUUID(serviceUUIDs, ServiceUUID) {
		return nil, sesameerr.New("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement)
	}

	payload, ok := manufacturerData[ManufacturerID]
	if !ok || len(payload) < minManufacturerLen {
		return nil, sesameerr.New("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement)
	}

	model, err := ProductModelByTypeByte(payload[0])
	if err != nil {
		return nil, err
	}
	registered := payload[2]&registeredFlagBit != 0

	id, err := decodeDeviceUUID(model, payload, localName)
	if err != nil {
		return nil, err
	}

	return &Advertisement{
		BTAddress:    btAddress,
		RSSI:         rssi,
		ProductModel: model,
		IsRegistered: registered,
		DeviceUUID:   id,
	}, nil
}

func decodeDeviceUUID(model ProductModel, payload []byte, localName string) (uuid.UUID, error) {
	if model.typeByte == WM2.typeByte {
		if len(payload) < 9 {
			return uuid.UUID{}, sesameerr.New("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement)
		}
		id, err := uuid.Parse(wm2UUIDPrefixHex + fmt.Sprintf("%x", payload[3:9]))
		if err != nil {
			return uuid.UUID{}, sesameerr.Wrap("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement, err)
		}
		return id, nil
	}

	raw, err := base64.StdEncoding.DecodeString(localName + "==")
	if err != nil {
		return uuid.UUID{}, sesameerr.Wrap("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.UUID{}, sesameerr.Wrap("device.DecodeAdvertisement", sesameerr.KindInvalidAdvertisement, err)
	}
	return id, nil
}

func containsUUID(uuids []string, target string) bool {
	for _, u := range uuids {
		if u == target {
			return true
		}
	}
	return false
}
