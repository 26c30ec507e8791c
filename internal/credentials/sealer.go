package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	keySize   = 32
	ivSize    = 16
	tagSize   = 16
	scryptN   = 16384
	scryptR   = 8
	scryptP   = 1
	scryptSal = "salt"
)

// Envelope is the encrypted form of a token as stored on disk.
type Envelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
}

// Sealer encrypts and decrypts token payloads with AES-256-GCM.
type Sealer struct {
	key []byte
}

// NewSealer derives the AES key from a passphrase with scrypt.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption key must not be empty")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(scryptSal), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// NewSealerFromKey uses a raw 32-byte key, skipping derivation.
func NewSealerFromKey(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d bytes", keySize, len(key))
	}
	k := make([]byte, keySize)
	copy(k, key)
	return &Sealer{key: k}, nil
}

// GenerateKey returns a random base64-encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (s *Sealer) Seal(plaintext []byte) (Envelope, error) {
	gcm, err := s.gcm()
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	out := gcm.Seal(nil, iv, plaintext, nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]

	return Envelope{
		Encrypted: hex.EncodeToString(ct),
		IV:        hex.EncodeToString(iv),
		AuthTag:   hex.EncodeToString(tag),
	}, nil
}

// Open authenticates and decrypts an envelope. Any failure, including a
// malformed envelope, is reported as ErrDecrypt.
func (s *Sealer) Open(env Envelope) ([]byte, error) {
	ct, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrDecrypt, err)
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return nil, fmt.Errorf("%w: invalid iv", ErrDecrypt)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: invalid auth tag", ErrDecrypt)
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}
