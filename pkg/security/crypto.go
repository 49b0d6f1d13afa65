package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrCiphertext is returned when a sealed payload is truncated or fails authentication.
var ErrCiphertext = errors.New("invalid ciphertext")

// SecretFromEnv returns the master secret sealing keys are derived from.
// Priority:
// 1) STAGING_SEAL_KEY (base64, at least 32 bytes)
// 2) JWT_SECRET
func SecretFromEnv() ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv("STAGING_SEAL_KEY")); v != "" {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, err
		}
		if len(b) < 32 {
			return nil, errors.New("STAGING_SEAL_KEY must decode to at least 32 bytes")
		}
		return b, nil
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		jwtSecret = "SUPER_SECRET_KEY_CHANGE_ME"
	}
	return []byte(jwtSecret), nil
}

// Sealer encrypts small payloads with AES-256-GCM. Output is nonce||ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a purpose-bound key from secret with HKDF-SHA256.
func NewSealer(secret []byte, purpose string) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty sealing secret")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("%w: too short", ErrCiphertext)
	}
	pt, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return pt, nil
}
