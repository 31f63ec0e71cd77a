package device

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/candyhouse/gosesame/pkg/crypto"
)

const appTokenSize = 4

// LocalAppKey is the process-wide ephemeral identity used to perform
// ECDH with every device this process talks to: one P-256 key pair and
// one 4-byte app token, generated once on first use and shared
// read-only by every Session thereafter.
type LocalAppKey struct {
	keyPair  *crypto.P256KeyPair
	appToken [appTokenSize]byte
}

var (
	localAppKeyOnce sync.Once
	localAppKey     *LocalAppKey
	localAppKeyErr  error
)

// GetLocalAppKey returns the process-singleton LocalAppKey, generating
// it on the first call. Every subsequent call returns the same
// instance.
func GetLocalAppKey() (*LocalAppKey, error) {
	localAppKeyOnce.Do(func() {
		localAppKey, localAppKeyErr = newLocalAppKey()
	})
	return localAppKey, localAppKeyErr
}

func newLocalAppKey() (*LocalAppKey, error) {
	kp, err := crypto.GenerateP256KeyPair()
	if err != nil {
		return nil, fmt.Errorf("device: generate local app key pair: %w", err)
	}

	k := &LocalAppKey{keyPair: kp}
	if _, err := rand.Read(k.appToken[:]); err != nil {
		return nil, fmt.Errorf("device: generate app token: %w", err)
	}
	return k, nil
}

// PublicKey returns the 64-byte raw P-256 public key advertised to
// devices during login.
func (k *LocalAppKey) PublicKey() []byte {
	return k.keyPair.RawPublicKey()
}

// AppToken returns the 4-byte app token included in the login payload
// and reused as half of the session's nonce suffix.
func (k *LocalAppKey) AppToken() [appTokenSize]byte {
	return k.appToken
}

// ECDH computes the 32-byte shared secret with a device's raw 64-byte
// public key.
func (k *LocalAppKey) ECDH(devicePublicKey []byte) ([]byte, error) {
	return k.keyPair.ECDH(devicePublicKey)
}
