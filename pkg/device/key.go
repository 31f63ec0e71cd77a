package device

import (
	"encoding/hex"
	"fmt"

	"github.com/candyhouse/gosesame/pkg/crypto"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

const (
	secretKeySize       = 16
	devicePublicKeySize = crypto.P256RawPublicKeySize
)

// KeyIndex is always 0x0000 for every product family this library
// supports; it is carried on the wire as a fixed field rather than
// computed.
var KeyIndex = [2]byte{0x00, 0x00}

// Key is the caller-supplied key material paired with one device: the
// 16-byte secret key (used as the CMAC key for the login tag) and the
// device's 64-byte raw P-256 public key (used for ECDH).
type Key struct {
	secretKey       []byte
	devicePublicKey []byte
}

// NewKey builds a Key from raw bytes, enforcing the fixed lengths
// spec.md's data model requires.
func NewKey(secretKey, devicePublicKey []byte) (*Key, error) {
	k := &Key{}
	if err := k.SetSecretKey(secretKey); err != nil {
		return nil, err
	}
	if err := k.SetDevicePublicKey(devicePublicKey); err != nil {
		return nil, err
	}
	return k, nil
}

// NewKeyFromHex builds a Key from hex-encoded secret/public key strings,
// as device keys are typically distributed in CANDY HOUSE's QR-code
// payloads.
func NewKeyFromHex(secretKeyHex, devicePublicKeyHex string) (*Key, error) {
	secretKey, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return nil, sesameerr.Wrap("device.NewKeyFromHex", sesameerr.KindInvalidArgument, err)
	}
	devicePublicKey, err := hex.DecodeString(devicePublicKeyHex)
	if err != nil {
		return nil, sesameerr.Wrap("device.NewKeyFromHex", sesameerr.KindInvalidArgument, err)
	}
	return NewKey(secretKey, devicePublicKey)
}

// SecretKey returns the 16-byte secret key.
func (k *Key) SecretKey() []byte { return k.secretKey }

// DevicePublicKey returns the 64-byte raw device public key.
func (k *Key) DevicePublicKey() []byte { return k.devicePublicKey }

// SetSecretKey replaces the secret key, enforcing its fixed length.
func (k *Key) SetSecretKey(secretKey []byte) error {
	if len(secretKey) != secretKeySize {
		return sesameerr.Wrap("device.Key.SetSecretKey", sesameerr.KindInvalidArgument,
			fmt.Errorf("secret key must be %d bytes, got %d", secretKeySize, len(secretKey)))
	}
	k.secretKey = append([]byte(nil), secretKey...)
	return nil
}

// SetDevicePublicKey replaces the device public key, enforcing its
// fixed length.
func (k *Key) SetDevicePublicKey(devicePublicKey []byte) error {
	if len(devicePublicKey) != devicePublicKeySize {
		return sesameerr.Wrap("device.Key.SetDevicePublicKey", sesameerr.KindInvalidArgument,
			fmt.Errorf("device public key must be %d bytes, got %d", devicePublicKeySize, len(devicePublicKey)))
	}
	k.devicePublicKey = append([]byte(nil), devicePublicKey...)
	return nil
}
