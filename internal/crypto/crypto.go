// Package crypto provides authenticated at-rest encryption for pages and WAL
// frames, plus the key-derivation step run once at Open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySize is the size in bytes of a derived encryption key (AES-256).
const KeySize = 32

// NonceSize is the size in bytes of the AEAD nonce.
const NonceSize = 12

// TagSize is the size in bytes of the AEAD authentication tag.
const TagSize = 16

// SaltSize is the size in bytes of the KDF salt persisted in the catalog
// header page.
const SaltSize = 16

// KDFParams controls the cost of the memory-hard key-derivation function.
// The defaults are conservative for an embedded engine opening once per
// process lifetime, not for a high-QPS authentication path.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams mirrors argon2id's recommended interactive settings.
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// AuthError is returned when an AEAD tag fails to verify. The caller must
// treat the affected artefact as corrupt or the passphrase as wrong; it
// never distinguishes the two, by construction of the cipher.
type AuthError struct {
	Context string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("crypto: authentication failed for %s", e.Context)
}

// DeriveKey runs argon2id over passphrase and salt to produce a 32-byte key.
// The salt must be persisted by the caller (the catalog header); DeriveKey
// never stores anything itself. BadPassphrase is not detected here — it
// only surfaces later, as an AuthError on the first authenticated Open.
func DeriveKey(passphrase string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, params.Time, params.Memory, params.Threads, KeySize)
}

// NewSalt returns a fresh random salt suitable for DeriveKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return gcm, nil
}

// Seal authenticates and encrypts plaintext under key, binding aad into the
// tag. It returns a fresh random nonce, the ciphertext, and the detached
// tag — the three pieces the page and WAL-frame trailers store separately.
func Seal(key, aad, plaintext []byte) (nonce, ciphertext, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	if len(sealed) < TagSize {
		return nil, nil, nil, fmt.Errorf("crypto: sealed output shorter than tag size")
	}
	ciphertext = sealed[:len(sealed)-TagSize]
	tag = sealed[len(sealed)-TagSize:]
	return nonce, ciphertext, tag, nil
}

// Open verifies and decrypts ciphertext||tag under key, checking aad.
// Any mismatch — wrong key, flipped byte, wrong aad — returns *AuthError
// rather than leaking which check failed.
func Open(key, aad, nonce, ciphertext, tag []byte, context string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, &AuthError{Context: context}
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, &AuthError{Context: context}
	}
	return plaintext, nil
}
