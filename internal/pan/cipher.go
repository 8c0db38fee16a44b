package pan

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	apperr "cardledger/internal/errors"
)

const (
	// MinMasterKeyLength is the minimum accepted master key size in bytes.
	MinMasterKeyLength = 32

	sealedPrefix = "v1:"
	maskPrefix   = "**** **** **** "
)

// Cipher seals card numbers with XChaCha20-Poly1305 and computes a keyed
// blind index for uniqueness checks. Safe for concurrent use; the keys are
// read-only after construction.
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// ParseMasterKey decodes a hex or base64 master key.
func ParseMasterKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := hex.DecodeString(encoded)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("master key is neither hex nor base64")
		}
	}
	if len(key) < MinMasterKeyLength {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeyLength, len(key))
	}
	return key, nil
}

// NewCipher derives the encryption and index keys from masterKey with HKDF.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeyLength, len(masterKey))
	}

	encKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("card-number-encryption")), encKey); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	indexKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("card-number-index")), indexKey); err != nil {
		return nil, fmt.Errorf("derive index key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Cipher{aead: aead, indexKey: indexKey}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The output carries the
// nonce so decryption needs nothing else.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: read nonce: %v", apperr.ErrCrypto, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Malformed, truncated or
// tampered input yields ErrCrypto.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, sealedPrefix) {
		return "", fmt.Errorf("%w: unknown format", apperr.ErrCrypto)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", apperr.ErrCrypto)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", fmt.Errorf("%w: truncated", apperr.ErrCrypto)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", apperr.ErrCrypto)
	}
	return string(plain), nil
}

// BlindIndex returns the hex HMAC-SHA256 of the card number.
func (c *Cipher) BlindIndex(number string) string {
	h := hmac.New(sha256.New, c.indexKey)
	h.Write([]byte(number))
	return hex.EncodeToString(h.Sum(nil))
}

// Mask renders "**** **** **** " plus the last four digits. value may be a
// plaintext number or a sealed one.
func (c *Cipher) Mask(value string) (string, error) {
	if strings.HasPrefix(value, sealedPrefix) {
		plain, err := c.Decrypt(value)
		if err != nil {
			return "", err
		}
		value = plain
	}
	return MaskLast4(Last4(value))
}

// Last4 returns the final four digits found in number, or fewer if it has fewer.
func Last4(number string) string {
	digits := make([]byte, 0, 4)
	for i := len(number) - 1; i >= 0 && len(digits) < 4; i-- {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// MaskLast4 builds the display mask from stored last-4 digits.
func MaskLast4(last4 string) (string, error) {
	if len(last4) < 4 {
		return "", fmt.Errorf("%w: need at least 4 digits to mask", apperr.ErrInvalidInput)
	}
	return maskPrefix + last4, nil
}
