// Package seal turns a rendered guide file into the regulator's deliverable:
// the text is encrypted with 3DES-CBC into a sealed container (IV prefix
// followed by ciphertext), the container is stored as the single entry of
// a zip archive, and the archive bytes are hashed for the audit trail.
//
// Everything here is buffer to buffer. Nothing touches the filesystem.
package seal

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize is the 3DES key length (three 8-byte keys).
	KeySize = 24

	// IVSize is the CBC initialization vector length, the DES block size.
	IVSize = des.BlockSize
)

var (
	ErrKeyLength  = errors.New("seal: key must be 24 bytes")
	ErrIVLength   = errors.New("seal: iv must be 8 bytes")
	ErrCiphertext = errors.New("seal: malformed container")
)

// CheckKey reports ErrKeyLength for any key that is not KeySize bytes.
func CheckKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}
	return nil
}

// Seal encrypts plaintext under key with a random IV and returns IV || ciphertext.
func Seal(plaintext, key []byte) ([]byte, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("seal: read iv: %w", err)
	}
	return SealWithIV(plaintext, key, iv)
}

// SealWithIV is Seal with a caller-supplied IV, for reproducible output.
func SealWithIV(plaintext, key, iv []byte) ([]byte, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: got %d", ErrIVLength, len(iv))
	}

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	padded := pad(plaintext, IVSize)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

// Open reverses Seal: the first IVSize bytes are the IV.
func Open(container, key []byte) ([]byte, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if len(container) < 2*IVSize || (len(container)-IVSize)%IVSize != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrCiphertext, len(container))
	}

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	iv, body := container[:IVSize], container[IVSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return unpad(plain, IVSize)
}

// pad applies PKCS#7 padding. A full block is added when the input is
// already aligned.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
		}
	}
	return b[:len(b)-n], nil
}
