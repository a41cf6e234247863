package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sync"
)

var (
	ErrKeyNotEstablished = errors.New("session key not established")
	ErrKeyAlreadySet     = errors.New("session key already set")
	ErrCiphertextShort   = errors.New("ciphertext too short")
)

// SessionKeySize is the AES-256 key length negotiated during the handshake.
const SessionKeySize = 32

// GenerateSessionKey generates a random AES-256 session key
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)
	_, err := rand.Read(key)
	return key, err
}

// SessionCipher encrypts and decrypts message payloads under the symmetric
// key established by the connection handshake. The key is set exactly once;
// using the cipher before that fails with ErrKeyNotEstablished.
type SessionCipher struct {
	mu  sync.RWMutex
	key []byte
}

// NewSessionCipher creates a cipher with no key bound yet
func NewSessionCipher() *SessionCipher {
	return &SessionCipher{}
}

// SetKey binds the session key to this cipher. A second call is a protocol
// violation and fails.
func (sc *SessionCipher) SetKey(key []byte) error {
	if len(key) != SessionKeySize {
		return ErrInvalidKey
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.key != nil {
		return ErrKeyAlreadySet
	}

	sc.key = append([]byte(nil), key...)
	return nil
}

// Established reports whether a session key has been bound
func (sc *SessionCipher) Established() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.key != nil
}

// Encrypt encrypts plaintext with AES-CFB under a fresh random IV and
// returns IV || ciphertext. A fresh IV per call is a correctness
// requirement: CFB leaks plaintext relationships under IV reuse.
func (sc *SessionCipher) Encrypt(plaintext []byte) ([]byte, error) {
	sc.mu.RLock()
	key := sc.key
	sc.mu.RUnlock()

	if key == nil {
		return nil, ErrKeyNotEstablished
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, aes.BlockSize+len(plaintext))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(out[aes.BlockSize:], plaintext)

	return out, nil
}

// Decrypt splits the leading IV from blob and decrypts the remainder
func (sc *SessionCipher) Decrypt(blob []byte) ([]byte, error) {
	sc.mu.RLock()
	key := sc.key
	sc.mu.RUnlock()

	if key == nil {
		return nil, ErrKeyNotEstablished
	}

	if len(blob) < aes.BlockSize {
		return nil, ErrCiphertextShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := blob[:aes.BlockSize], blob[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}

// EncryptToHex encrypts plaintext and hex-encodes the result for transport
// inside an envelope field
func (sc *SessionCipher) EncryptToHex(plaintext string) (string, error) {
	blob, err := sc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(blob), nil
}

// DecryptFromHex decodes a hex envelope field and decrypts it
func (sc *SessionCipher) DecryptFromHex(encoded string) (string, error) {
	blob, err := hex.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	plaintext, err := sc.Decrypt(blob)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
