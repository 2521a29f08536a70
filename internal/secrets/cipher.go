// Package secrets implements the deterministic field cipher used for
// at-rest encryption of user identities and profile answers.
//
// Determinism is a hard requirement: encrypted user identities are used
// as lookup keys in the record store, so the same plaintext must always
// produce the same ciphertext under the same key. AES-GCM with a
// synthetic nonce derived from the plaintext via HMAC gives that
// property (SIV-style construction) while still authenticating the data.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidCiphertext is returned when a stored value cannot be
	// decoded or fails authentication.
	ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")
)

// Cipher encrypts and decrypts individual field values.
type Cipher struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// New derives the encryption and nonce keys from the configured secret
// and returns a ready cipher. The secret may be any non-empty string;
// HKDF expands it into independent keys.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("secrets: empty key")
	}

	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("aromabot.fields.v1"))
	encKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("secrets: derive enc key: %w", err)
	}
	nonceKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, nonceKey); err != nil {
		return nil, fmt.Errorf("secrets: derive nonce key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}

	return &Cipher{aead: aead, nonceKey: nonceKey}, nil
}

// Encrypt returns a base64 token for the plaintext. Equal plaintexts
// always yield equal tokens.
func (c *Cipher) Encrypt(plaintext string) string {
	nonce := c.syntheticNonce([]byte(plaintext))
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.RawURLEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Tokens produced under a different key or
// tampered with fail with ErrInvalidCiphertext.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// EncryptID encrypts a numeric user identity for use as a storage key.
func (c *Cipher) EncryptID(id int64) string {
	return c.Encrypt(strconv.FormatInt(id, 10))
}

// DecryptID reverses EncryptID.
func (c *Cipher) DecryptID(token string) (int64, error) {
	plain, err := c.Decrypt(token)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(plain, 10, 64)
	if err != nil {
		return 0, ErrInvalidCiphertext
	}
	return id, nil
}

func (c *Cipher) syntheticNonce(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write(plaintext)
	sum := mac.Sum(nil)
	return sum[:c.aead.NonceSize()]
}
