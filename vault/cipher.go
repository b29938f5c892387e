package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// IVSize is the AES-GCM nonce length.
const IVSize = 12

var (
	// ErrDecryptionFailed means a note cannot be opened with this key: the
	// authentication tag did not match, the envelope is malformed or it was
	// sealed under a different account salt. Callers treat the note as
	// unreadable; it is never a transport error.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrMalformedEnvelope is wrapped together with ErrDecryptionFailed when
	// the envelope cannot be decoded at all.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Envelope is the wire form of encrypted note content. All fields are
// standard base64.
//
// Salt carries the account salt the sealing key was derived from. It is
// informational: derivation always uses the account-level salt.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random 12-byte IV.
func Encrypt(key *Key, plaintext []byte) (Envelope, error) {
	var env Envelope
	err := key.withAEAD(func(aead cipher.AEAD) error {
		iv := make([]byte, IVSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return fmt.Errorf("generate iv: %w", err)
		}
		sealed := aead.Seal(nil, iv, plaintext, nil)

		env = Envelope{
			Ciphertext: base64.StdEncoding.EncodeToString(sealed),
			IV:         base64.StdEncoding.EncodeToString(iv),
			Salt:       base64.StdEncoding.EncodeToString(key.salt),
		}
		return nil
	})
	return env, err
}

// Decrypt opens env. Any failure other than ErrKeyDestroyed wraps
// ErrDecryptionFailed.
func Decrypt(key *Key, env Envelope) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil || len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: %w: ciphertext", ErrDecryptionFailed, ErrMalformedEnvelope)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != IVSize {
		return nil, fmt.Errorf("%w: %w: iv", ErrDecryptionFailed, ErrMalformedEnvelope)
	}
	var salt []byte
	if env.Salt != "" {
		if salt, err = base64.StdEncoding.DecodeString(env.Salt); err != nil {
			return nil, fmt.Errorf("%w: %w: salt", ErrDecryptionFailed, ErrMalformedEnvelope)
		}
	}

	var plaintext []byte
	err = key.withAEAD(func(aead cipher.AEAD) error {
		if salt != nil && !key.saltEquals(salt) {
			return fmt.Errorf("%w: sealed under a different account salt", ErrDecryptionFailed)
		}
		out, err := aead.Open(nil, iv, ciphertext, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// SealJSON marshals v and encrypts the result.
func SealJSON(key *Key, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Encrypt(key, data)
}

// OpenJSON decrypts env into v. A payload that decrypts but does not decode
// is reported as ErrDecryptionFailed.
func OpenJSON(key *Key, env Envelope, v any) error {
	data, err := Decrypt(key, env)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w: payload", ErrDecryptionFailed, ErrMalformedEnvelope)
	}
	return nil
}
