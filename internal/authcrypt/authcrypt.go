// Package authcrypt builds the STB authenticator signature expected by the EAS portal.
package authcrypt

import (
	"bytes"
	"crypto/des"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the DES block length; keys are padded to exactly this many bytes.
const BlockSize = des.BlockSize

// ErrKeyTooLong is returned when the configured key exceeds BlockSize bytes.
var ErrKeyTooLong = errors.New("authcrypt: key longer than cipher block")

// PadKey right-pads key with ASCII '0' up to BlockSize. Keys are never truncated.
func PadKey(key string) (string, error) {
	if len(key) > BlockSize {
		return "", fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	return key + strings.Repeat("0", BlockSize-len(key)), nil
}

// Encrypt enciphers plaintext with DES-ECB under the padded key (PKCS#7 plaintext
// padding, no IV) and returns the upper-case hex ciphertext.
func Encrypt(plaintext, key string) (string, error) {
	k, err := PadKey(key)
	if err != nil {
		return "", err
	}
	block, err := des.NewCipher([]byte(k))
	if err != nil {
		return "", fmt.Errorf("authcrypt: %w", err)
	}
	src := pkcs7Pad([]byte(plaintext), BlockSize)
	dst := make([]byte, len(src))
	for off := 0; off < len(src); off += BlockSize {
		block.Encrypt(dst[off:off+BlockSize], src[off:off+BlockSize])
	}
	return strings.ToUpper(hex.EncodeToString(dst)), nil
}

// pkcs7Pad always adds between 1 and size bytes, so an aligned input gains a full block.
func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
