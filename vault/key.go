package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2-HMAC-SHA256 work factor.
	Iterations = 200_000
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the length of a freshly generated account salt.
	SaltSize = 16
	// MinPassphraseLength is the minimum passphrase length in characters.
	MinPassphraseLength = 12
)

var (
	// ErrKeyDestroyed is returned by operations on a key after Destroy.
	ErrKeyDestroyed = errors.New("encryption key destroyed")
	// ErrWeakPassphrase is returned by ValidatePassphrase.
	ErrWeakPassphrase = errors.New("passphrase must be at least 12 characters")
	// ErrInvalidSalt is returned for a salt that is too short to be trusted.
	ErrInvalidSalt = errors.New("invalid encryption salt")
	// errNotExportable is returned by every serialization path of Key.
	errNotExportable = errors.New("vault: key is not exportable")
)

// Key is a derived note-encryption key.
//
// The raw key bytes never leave this package: Key has no exported fields or
// accessors, prints as a redacted placeholder and refuses to serialize.
// Concurrent Encrypt and Decrypt calls share a read lock; Destroy takes the
// write lock, so operations already running complete before the bytes are
// zeroed and every later call fails with ErrKeyDestroyed.
type Key struct {
	mu   sync.RWMutex
	raw  []byte
	salt []byte
}

// DeriveKey stretches passphrase with PBKDF2-HMAC-SHA256 over salt.
//
// An empty salt means first-time setup: a fresh random 16-byte salt is
// generated. The caller must persist Key.Salt with the account so the same
// key can be derived in a later session.
func DeriveKey(passphrase []byte, salt []byte) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, ErrWeakPassphrase
	}
	if len(salt) == 0 {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
	} else if len(salt) < 8 {
		return nil, ErrInvalidSalt
	} else {
		salt = append([]byte(nil), salt...)
	}

	return &Key{
		raw:  pbkdf2.Key(passphrase, salt, Iterations, KeySize, sha256.New),
		salt: salt,
	}, nil
}

// DeriveKeyBase64 is DeriveKey for a salt in its base64 wire form. An empty
// string generates a fresh salt.
func DeriveKeyBase64(passphrase []byte, saltB64 string) (*Key, error) {
	if saltB64 == "" {
		return DeriveKey(passphrase, nil)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}
	return DeriveKey(passphrase, salt)
}

// ValidatePassphrase enforces the minimum passphrase length.
func ValidatePassphrase(passphrase []byte) error {
	if utf8.RuneCount(passphrase) < MinPassphraseLength {
		return ErrWeakPassphrase
	}
	return nil
}

// Salt returns a copy of the account salt the key was derived with.
func (k *Key) Salt() []byte {
	if k == nil {
		return nil
	}
	return append([]byte(nil), k.salt...)
}

// SaltBase64 returns the salt in its wire form.
func (k *Key) SaltBase64() string {
	return base64.StdEncoding.EncodeToString(k.Salt())
}

// Destroyed reports whether Destroy has run.
func (k *Key) Destroyed() bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.raw == nil
}

// Destroy zeroes the key material. It waits for in-flight operations and is
// idempotent.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.raw {
		k.raw[i] = 0
	}
	k.raw = nil
}

// String implements fmt.Stringer without revealing key material.
func (k *Key) String() string { return "vault.Key(redacted)" }

// GoString implements fmt.GoStringer for %#v.
func (k *Key) GoString() string { return k.String() }

// Format makes every fmt verb, including %x and %v on the dereferenced
// value, print the redacted form.
func (k *Key) Format(f fmt.State, _ rune) { _, _ = io.WriteString(f, k.String()) }

// MarshalJSON always fails.
func (k *Key) MarshalJSON() ([]byte, error) { return nil, errNotExportable }

// MarshalText always fails.
func (k *Key) MarshalText() ([]byte, error) { return nil, errNotExportable }

// MarshalBinary always fails.
func (k *Key) MarshalBinary() ([]byte, error) { return nil, errNotExportable }

// withAEAD runs fn with an AES-GCM instance built from the key under the read
// lock. The AEAD must not escape fn.
func (k *Key) withAEAD(fn func(cipher.AEAD) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.raw == nil {
		return ErrKeyDestroyed
	}

	block, err := aes.NewCipher(k.raw)
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	return fn(aead)
}

func (k *Key) saltEquals(other []byte) bool {
	return subtle.ConstantTimeCompare(other, k.salt) == 1
}
