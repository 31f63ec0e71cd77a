package device

import (
	"github.com/candyhouse/gosesame/pkg/crypto"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

const (
	sessionKeySize     = 16
	sessionTokenSize   = 8
	cipherTagSize      = 4
	counterFieldSize   = 5
	counterMax         = (uint64(1) << 40) - 1
	encryptTopBitMask  = uint8(0x80)
	associatedDataByte = 0x00
)

// SessionCipher wraps an AES-CCM-128 (4-byte tag) cipher with the
// direction-tagged, monotonically increasing counters that form each
// message's nonce. A SessionCipher is owned by exactly one Session and
// is destroyed when that session disconnects; it must never be shared
// between two senders, since the encrypt and decrypt counters occupy
// disjoint halves of the 5-byte counter field (top bit set vs clear).
type SessionCipher struct {
	ccm            *crypto.AESCCM
	sessionToken   [sessionTokenSize]byte
	encryptCounter uint64
	decryptCounter uint64
}

// NewSessionCipher builds a SessionCipher from the CMAC-derived 16-byte
// session key and the 8-byte session token (app_token || sesame_token).
// Both counters start at zero.
func NewSessionCipher(sessionKey []byte, sessionToken [sessionTokenSize]byte) (*SessionCipher, error) {
	if len(sessionKey) != sessionKeySize {
		return nil, sesameerr.New("device.NewSessionCipher", sesameerr.KindInvalidArgument)
	}
	ccm, err := crypto.NewAESCCMWithParams(sessionKey, crypto.AESCCMNonceSize, cipherTagSize)
	if err != nil {
		return nil, sesameerr.Wrap("device.NewSessionCipher", sesameerr.KindInvalidArgument, err)
	}
	return &SessionCipher{ccm: ccm, sessionToken: sessionToken}, nil
}

// Seal encrypts plaintext under the current encrypt_counter and, on
// success, advances it by one.
func (c *SessionCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := c.buildNonce(c.encryptCounter, true)
	ciphertext, err := c.ccm.Seal(nonce, plaintext, []byte{associatedDataByte})
	if err != nil {
		return nil, sesameerr.Wrap("device.SessionCipher.Seal", sesameerr.KindAuthError, err)
	}
	c.encryptCounter++
	return ciphertext, nil
}

// Open decrypts ciphertext under the current decrypt_counter. Per the
// specification's resolved design (spec.md §9, open question 1), a
// failed decrypt does not advance decrypt_counter — only a verified
// decrypt does.
func (c *SessionCipher) Open(ciphertext []byte) ([]byte, error) {
	nonce := c.buildNonce(c.decryptCounter, false)
	plaintext, err := c.ccm.Open(nonce, ciphertext, []byte{associatedDataByte})
	if err != nil {
		return nil, sesameerr.Wrap("device.SessionCipher.Open", sesameerr.KindAuthError, err)
	}
	c.decryptCounter++
	return plaintext, nil
}

// buildNonce constructs the 13-byte nonce: a 5-byte little-endian
// counter field (top bit set for the encrypt direction, top bit clear
// for the decrypt direction) followed by the 8-byte session token.
func (c *SessionCipher) buildNonce(counter uint64, encrypt bool) []byte {
	nonce := make([]byte, 0, counterFieldSize+sessionTokenSize)

	field := counter & counterMax
	counterBytes := make([]byte, counterFieldSize)
	for i := 0; i < counterFieldSize; i++ {
		counterBytes[i] = byte(field >> (8 * i))
	}
	if encrypt {
		counterBytes[counterFieldSize-1] |= encryptTopBitMask
	} else {
		counterBytes[counterFieldSize-1] &^= encryptTopBitMask
	}

	nonce = append(nonce, counterBytes...)
	nonce = append(nonce, c.sessionToken[:]...)
	return nonce
}
