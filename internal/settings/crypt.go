package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrCiphertext is returned when a stored password value cannot be opened.
var ErrCiphertext = errors.New("settings: malformed ciphertext")

// Crypter seals password-type admin setting values at rest with AES-256-GCM.
// The key is derived from the configured server secret.
type Crypter struct {
	aead cipher.AEAD
}

// NewCrypter derives a key from secret.  Panics on an empty secret.
func NewCrypter(secret string) *Crypter {
	if secret == "" {
		panic("settings.NewCrypter: empty secret")
	}
	key := sha256.Sum256([]byte("beacon-settings:" + secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &Crypter{aead: aead}
}

// Encrypt returns base64url(nonce | ciphertext).
func (c *Crypter) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.  The empty string decrypts to itself.
func (c *Crypter) Decrypt(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return "", ErrCiphertext
	}
	n := c.aead.NonceSize()
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plain), nil
}
