package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealVersion = "v1"
	keySize     = 32
	nonceSize   = 24
)

// ErrInvalidSeal signals a sealed value that cannot be opened with the key.
var ErrInvalidSeal = fmt.Errorf("invalid sealed value")

// Sealer encrypts inventory codes at rest with NaCl secretbox.
type Sealer struct {
	key [keySize]byte
}

// NewSealer parses a hex encoded 32 byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", keySize, len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns "v1$<base64(nonce|box)>".
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealVersion + "$" + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	version, payload, ok := strings.Cut(sealed, "$")
	if !ok || version != sealVersion {
		return "", ErrInvalidSeal
	}
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidSeal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrInvalidSeal
	}
	return string(plain), nil
}
