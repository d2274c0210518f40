package chat

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Content encryption is end-to-end: the server stores and relays the
// content_encrypted field opaquely and never sees the room key. All members
// of a room share one key distributed out of band.

const (
	protocolVersion = "chat-room-v1"
	nonceSize       = chacha20poly1305.NonceSize
	keySize         = chacha20poly1305.KeySize
	tagSize         = 16
	minWireLen      = nonceSize + tagSize
)

// CryptoError represents an encryption/decryption error.
type CryptoError struct {
	Message string
}

func (e *CryptoError) Error() string {
	return e.Message
}

// DeriveRoomKey derives the room's content encryption key from a shared
// passphrase and the room id. Both sides must derive identically, so the
// room id doubles as the HKDF salt.
func DeriveRoomKey(passphrase string, roomID int64) ([]byte, error) {
	if passphrase == "" {
		return nil, &CryptoError{Message: "passphrase must not be empty"}
	}

	salt := []byte(fmt.Sprintf("room:%d", roomID))
	hkdfReader := hkdf.New(sha256.New, []byte(passphrase), salt, []byte(protocolVersion))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptContent encrypts message content with the room key. Returns the
// base64-encoded wire format: nonce[12] + ciphertext[N+16].
func EncryptContent(plaintext string, key []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", &CryptoError{Message: fmt.Sprintf("invalid key: %v", err)}
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	wire := make([]byte, 0, nonceSize+len(ciphertext))
	wire = append(wire, nonce...)
	wire = append(wire, ciphertext...)

	return base64.StdEncoding.EncodeToString(wire), nil
}

// DecryptContent decrypts a content_encrypted field with the room key.
func DecryptContent(wireB64 string, key []byte) (string, error) {
	wire, err := base64.StdEncoding.DecodeString(wireB64)
	if err != nil {
		return "", &CryptoError{Message: fmt.Sprintf("invalid base64 ciphertext: %v", err)}
	}

	if len(wire) < minWireLen {
		return "", &CryptoError{Message: fmt.Sprintf("ciphertext too short: %d bytes, minimum %d", len(wire), minWireLen)}
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", &CryptoError{Message: fmt.Sprintf("invalid key: %v", err)}
	}

	nonce := wire[:nonceSize]
	ciphertext := wire[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &CryptoError{Message: "decryption failed: wrong key or tampered ciphertext"}
	}

	return string(plaintext), nil
}

// ErrCrypto checks if an error is a CryptoError.
func ErrCrypto(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}
