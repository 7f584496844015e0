package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
)

const (
	ciphertextSeparator = ":"
	macSize             = sha256.Size
	maskPlaceholder     = "****"
	maskVisibleChars    = 4
)

// Encryptor encrypts short secrets (API keys, handoff tokens) for storage.
//
// Output format is "<ivHex>:<ciphertextHex>" where the ciphertext part is
// AES-256-CBC output followed by an HMAC-SHA256 tag over iv||ciphertext.
// Both keys are derived from a single passphrase, so there is no per-secret
// key rotation.
type Encryptor struct {
	encKey []byte
	macKey []byte
}

func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is empty")
	}

	encKey := sha256.Sum256([]byte(passphrase))
	mac := hmac.New(sha256.New, encKey[:])
	mac.Write([]byte("mac-key"))

	return &Encryptor{
		encKey: encKey[:],
		macKey: mac.Sum(nil),
	}, nil
}

// Encrypt uses a fresh random IV on every call, so equal plaintexts never
// produce equal output.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.encKey)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	sealed := append(ciphertext, e.tag(iv, ciphertext)...)
	return hex.EncodeToString(iv) + ciphertextSeparator + hex.EncodeToString(sealed), nil
}

// Decrypt splits on the first separator only.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	ivHex, bodyHex, found := strings.Cut(encoded, ciphertextSeparator)
	if !found {
		return "", apperrors.MalformedCiphertext("missing separator")
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", apperrors.MalformedCiphertext("invalid IV")
	}

	body, err := hex.DecodeString(bodyHex)
	if err != nil {
		return "", apperrors.MalformedCiphertext("ciphertext is not hex encoded")
	}
	if len(body) < aes.BlockSize+macSize || (len(body)-macSize)%aes.BlockSize != 0 {
		return "", apperrors.MalformedCiphertext("invalid ciphertext length")
	}

	ciphertext, tag := body[:len(body)-macSize], body[len(body)-macSize:]
	if !hmac.Equal(tag, e.tag(iv, ciphertext)) {
		return "", apperrors.DecryptionFailure()
	}

	block, err := aes.NewCipher(e.encKey)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", apperrors.DecryptionFailure().WithCause(err)
	}

	return string(plaintext), nil
}

func (e *Encryptor) tag(iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, e.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// MaskSecret renders a secret for display: first and last four characters,
// or a fixed placeholder when the secret is too short to reveal any of it.
func MaskSecret(secret string) string {
	if len(secret) < 2*maskVisibleChars {
		return maskPlaceholder
	}
	return secret[:maskVisibleChars] + "..." + secret[len(secret)-maskVisibleChars:]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
