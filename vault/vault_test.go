package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSalt = []byte("0123456789abcdef")

func mustKey(t *testing.T, passphrase string, salt []byte) *Key {
	t.Helper()
	k, err := DeriveKey([]byte(passphrase), salt)
	require.NoError(t, err)
	return k
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := mustKey(t, "correct horse battery", testSalt)
	b := mustKey(t, "correct horse battery", testSalt)

	env, err := Encrypt(a, []byte("hello"))
	require.NoError(t, err)

	got, err := Decrypt(b, env)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, base64.StdEncoding.EncodeToString(testSalt), env.Salt)
}

func TestDeriveKeyGeneratesSalt(t *testing.T) {
	k := mustKey(t, "correct horse battery", nil)
	assert.Len(t, k.Salt(), SaltSize)

	other := mustKey(t, "correct horse battery", nil)
	assert.NotEqual(t, k.Salt(), other.Salt())
}

func TestDeriveKeyRejectsShortSalt(t *testing.T) {
	_, err := DeriveKey([]byte("correct horse battery"), []byte("abc"))
	assert.ErrorIs(t, err, ErrInvalidSalt)

	_, err = DeriveKeyBase64([]byte("correct horse battery"), "!!not base64")
	assert.ErrorIs(t, err, ErrInvalidSalt)
}

func TestDeriveKeyBase64RoundTrip(t *testing.T) {
	k := mustKey(t, "correct horse battery", nil)
	again, err := DeriveKeyBase64([]byte("correct horse battery"), k.SaltBase64())
	require.NoError(t, err)

	env, err := Encrypt(k, []byte("x"))
	require.NoError(t, err)
	_, err = Decrypt(again, env)
	assert.NoError(t, err)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)

	a, err := Encrypt(k, []byte("same"))
	require.NoError(t, err)
	b, err := Encrypt(k, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)

	iv, err := base64.StdEncoding.DecodeString(a.IV)
	require.NoError(t, err)
	assert.Len(t, iv, IVSize)
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	env, err := Encrypt(k, nil)
	require.NoError(t, err)

	got, err := Decrypt(k, env)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	wrong := mustKey(t, "incorrect horse battery", testSalt)

	env, err := Encrypt(k, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(wrong, env)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptTamper(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	env, err := Encrypt(k, []byte("secret note"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	tampered := env
	tampered.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(k, tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	require.NoError(t, err)
	iv[len(iv)-1] ^= 0x80
	tampered = env
	tampered.IV = base64.StdEncoding.EncodeToString(iv)

	_, err = Decrypt(k, tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptMalformed(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	good, err := Encrypt(k, []byte("x"))
	require.NoError(t, err)

	cases := map[string]Envelope{
		"bad ciphertext": {Ciphertext: "%%%", IV: good.IV},
		"empty":          {IV: good.IV},
		"bad iv":         {Ciphertext: good.Ciphertext, IV: "%%%"},
		"short iv":       {Ciphertext: good.Ciphertext, IV: base64.StdEncoding.EncodeToString([]byte("short"))},
		"bad salt":       {Ciphertext: good.Ciphertext, IV: good.IV, Salt: "%%%"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decrypt(k, env)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestDecryptSaltMismatch(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	env, err := Encrypt(k, []byte("x"))
	require.NoError(t, err)

	env.Salt = base64.StdEncoding.EncodeToString([]byte("fedcba9876543210"))
	_, err = Decrypt(k, env)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	env.Salt = ""
	got, err := Decrypt(k, env)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestDestroy(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)
	env, err := Encrypt(k, []byte("x"))
	require.NoError(t, err)

	k.Destroy()
	k.Destroy()
	assert.True(t, k.Destroyed())

	_, err = Encrypt(k, []byte("x"))
	assert.ErrorIs(t, err, ErrKeyDestroyed)
	_, err = Decrypt(k, env)
	assert.ErrorIs(t, err, ErrKeyDestroyed)

	var nilKey *Key
	_, err = Encrypt(nilKey, []byte("x"))
	assert.ErrorIs(t, err, ErrKeyDestroyed)
}

func TestDestroyConcurrentWithUse(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				env, err := Encrypt(k, []byte("payload"))
				if err != nil {
					assert.ErrorIs(t, err, ErrKeyDestroyed)
					return
				}
				if _, err := Decrypt(k, env); err != nil {
					assert.ErrorIs(t, err, ErrKeyDestroyed)
					return
				}
			}
		}()
	}
	k.Destroy()
	wg.Wait()
	assert.True(t, k.Destroyed())
}

func TestKeyIsNotExposed(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)

	for _, verb := range []string{"%v", "%+v", "%#v", "%s", "%x", "%q"} {
		out := fmt.Sprintf(verb, k)
		assert.Equal(t, "vault.Key(redacted)", out, verb)
	}

	_, err := json.Marshal(k)
	assert.Error(t, err)
	_, err = json.Marshal(struct{ K *Key }{k})
	assert.Error(t, err)
	_, err = k.MarshalText()
	assert.Error(t, err)
	_, err = k.MarshalBinary()
	assert.Error(t, err)
}

func TestSealJSON(t *testing.T) {
	k := mustKey(t, "correct horse battery", testSalt)

	type payload struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	env, err := SealJSON(k, payload{Title: "t", Body: "b"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, OpenJSON(k, env, &got))
	assert.Equal(t, payload{Title: "t", Body: "b"}, got)

	notJSON, err := Encrypt(k, []byte("plain text"))
	require.NoError(t, err)
	err = OpenJSON(k, notJSON, &got)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestValidatePassphrase(t *testing.T) {
	assert.ErrorIs(t, ValidatePassphrase([]byte("elevenchars")), ErrWeakPassphrase)
	assert.NoError(t, ValidatePassphrase([]byte("twelve chars")))
	assert.NoError(t, ValidatePassphrase([]byte("éééééééééééé")))

	_, err := DeriveKey(nil, testSalt)
	assert.ErrorIs(t, err, ErrWeakPassphrase)
}
