package network

import (
	"crypto/rsa"
	"encoding/hex"
	"errors"

	"github.com/cipherchat/cipherchat/pkg/crypto"
)

var (
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrNotConnected    = errors.New("not connected")
)

// decryptSessionKey recovers the client's symmetric key from its hex
// encoded OAEP ciphertext
func decryptSessionKey(encoded string, privateKey *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	key, err := crypto.RSADecrypt(ciphertext, privateKey)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	if len(key) != crypto.SessionKeySize {
		return nil, ErrHandshakeFailed
	}

	return key, nil
}
