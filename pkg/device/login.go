package device

import (
	"github.com/candyhouse/gosesame/pkg/crypto"
	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

const loginPayloadSize = 2 + devicePublicKeySize + appTokenSize + 4

// keyAgreement runs the ECDH + CMAC handshake of spec.md §4.4 and
// returns the derived session key, the 8-byte session token, and the
// tag_resp the device verifies, given the device's sesame_token.
func keyAgreement(key *Key, local *LocalAppKey, sesameToken [4]byte) (sessionKey []byte, sessionToken [8]byte, tagResp []byte, err error) {
	shared, err := local.ECDH(key.DevicePublicKey())
	if err != nil {
		return nil, sessionToken, nil, sesameerr.Wrap("device.keyAgreement", sesameerr.KindAuthError, err)
	}

	appToken := local.AppToken()
	copy(sessionToken[:appTokenSize], appToken[:])
	copy(sessionToken[appTokenSize:], sesameToken[:])

	sessionKey, err = crypto.CMAC(shared[:sessionKeySize], sessionToken[:])
	if err != nil {
		return nil, sessionToken, nil, sesameerr.Wrap("device.keyAgreement", sesameerr.KindAuthError, err)
	}

	tagInput := make([]byte, 0, len(KeyIndex)+devicePublicKeySize+len(sessionToken))
	tagInput = append(tagInput, KeyIndex[:]...)
	tagInput = append(tagInput, local.PublicKey()...)
	tagInput = append(tagInput, sessionToken[:]...)

	tagResp, err = crypto.CMACTruncated(key.SecretKey(), tagInput, cipherTagSize)
	if err != nil {
		return nil, sessionToken, nil, sesameerr.Wrap("device.keyAgreement", sesameerr.KindAuthError, err)
	}

	return sessionKey, sessionToken, tagResp, nil
}

// buildLoginPayload assembles the 74-byte plaintext login frame body:
// key_index(2) || local_pub(64) || app_token(4) || tag_resp(4).
func buildLoginPayload(local *LocalAppKey, tagResp []byte) []byte {
	appToken := local.AppToken()
	payload := make([]byte, 0, loginPayloadSize)
	payload = append(payload, KeyIndex[:]...)
	payload = append(payload, local.PublicKey()...)
	payload = append(payload, appToken[:]...)
	payload = append(payload, tagResp...)
	return payload
}
