// Package crypto seals free-text profile fields (resume text, analysis statements)
// before they reach the document store.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the master key size.
const KeyLen = 32

// Argon2id parameters for deriving the master key from an operator secret.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
)

const sealedPrefix = "enc:v1:"

// ErrCorrupt is returned when a sealed value cannot be decoded or authenticated.
var ErrCorrupt = errors.New("sealed value corrupt")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// KeyFromSecret derives a master key from an operator secret using Argon2id.
func KeyFromSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// Sealer encrypts field values with XChaCha20-Poly1305 under a per-user key.
type Sealer struct{ master []byte }

// NewSealer constructs a sealer from a KeyLen-byte master key.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) != KeyLen {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeyLen, len(master))
	}
	return &Sealer{master: append([]byte(nil), master...)}, nil
}

// userKey derives the per-user key via HKDF-SHA256 with userID as info.
func (s *Sealer) userKey(userID string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.master, nil, []byte("earn-hire/profile/"+userID))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// aad binds a ciphertext to its owner and field.
func aad(userID, field string) []byte {
	out := make([]byte, 0, len(userID)+1+len(field))
	out = append(out, userID...)
	out = append(out, 0)
	return append(out, field...)
}

// Seal encrypts plaintext for userID/field. Empty input stays empty.
func (s *Sealer) Seal(userID, field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := s.userKey(userID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), aad(userID, field))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix are
// returned unchanged, so records written before sealing was enabled stay readable.
func (s *Sealer) Open(userID, field, value string) (string, error) {
	if !Sealed(value) {
		return value, nil
	}
	blob, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(blob) < chacha20poly1305.NonceSizeX {
		return "", ErrCorrupt
	}
	key, err := s.userKey(userID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad(userID, field))
	if err != nil {
		return "", ErrCorrupt
	}
	return string(pt), nil
}

// Sealed reports whether value carries the sealed prefix.
func Sealed(value string) bool { return strings.HasPrefix(value, sealedPrefix) }
