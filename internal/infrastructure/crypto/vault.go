// Package crypto protects provider access credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize = 16
	ivSize   = 12
	tagSize  = 16
	keySize  = 32

	// DefaultIterations is the PBKDF2 work factor used to derive the per-blob key.
	DefaultIterations = 100_000
)

var (
	// ErrCrypto is returned for every decryption or verification failure.
	// Callers must treat it as "the blob cannot be trusted", never as a partial result.
	ErrCrypto = errors.New("crypto error")

	// ErrInvalidKey is returned when the master key is too short for AES-256.
	ErrInvalidKey = errors.New("master key must be at least 32 bytes")
)

// Vault encrypts and decrypts credential blobs.
//
// Each blob carries its own random salt and IV, so the AES key differs per blob and
// the same plaintext never encrypts to the same output twice. Blob layout:
//
//	base64( hex(salt) ":" hex(iv) ":" hex(tag) ":" hex(ciphertext) )
type Vault struct {
	master     *memguard.Enclave
	iterations int
}

// Option configures a Vault.
type Option func(*Vault)

// WithIterations overrides the PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.iterations = n
		}
	}
}

// NewVault seals the master key into an encrypted enclave. Call once at startup.
func NewVault(masterKey string, opts ...Option) (*Vault, error) {
	if len(masterKey) < keySize {
		return nil, ErrInvalidKey
	}

	v := &Vault{
		master:     memguard.NewEnclave([]byte(masterKey)),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Encrypt seals plaintext into a self-describing blob.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := v.cipherFor(salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	encoded := strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":")

	return base64.StdEncoding.EncodeToString([]byte(encoded)), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed input, wrong key or
// failed tag check yields an error wrapping ErrCrypto.
func (v *Vault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrCrypto)
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: expected 4 segments, got %d", ErrCrypto, len(parts))
	}

	fields := make([][]byte, len(parts))
	for i, p := range parts {
		fields[i], err = hex.DecodeString(p)
		if err != nil {
			return "", fmt.Errorf("%w: segment %d is not hex", ErrCrypto, i)
		}
	}
	salt, iv, tag, ciphertext := fields[0], fields[1], fields[2], fields[3]

	if len(salt) != saltSize || len(iv) != ivSize || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad segment length", ErrCrypto)
	}

	gcm, err := v.cipherFor(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCrypto)
	}
	return string(plaintext), nil
}

// cipherFor derives the blob key from the master key and salt.
func (v *Vault) cipherFor(salt []byte) (cipher.AEAD, error) {
	master, err := v.master.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open master key: %v", ErrCrypto, err)
	}
	defer master.Destroy()

	key := pbkdf2.Key(master.Bytes(), salt, v.iterations, keySize, sha256.New)
	defer memguard.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return gcm, nil
}
