// Package secret encrypts connection configuration at rest. Blobs are
// authenticated: any modification, truncation or wrong key makes Decrypt fail
// with ErrDecryption.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryption is returned for every blob that cannot be opened. The cause is
// deliberately not distinguished.
var ErrDecryption = errors.New("secret: decryption failed")

// Algorithm is the version tag stored in the second byte of every blob.
type Algorithm byte

const (
	AESGCM            Algorithm = 0x01
	XChaCha20Poly1305 Algorithm = 0x02
)

// DefaultAlgorithm is used for newly written blobs.
const DefaultAlgorithm = XChaCha20Poly1305

const (
	magic     byte = 's'
	headerLen      = 1 + 1 + 4
)

func (a Algorithm) String() string {
	switch a {
	case AESGCM:
		return "aes-256-gcm"
	case XChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(a))
	}
}

func (a Algorithm) aead(key Key) (cipher.AEAD, error) {
	switch a {
	case AESGCM:
		block, err := aes.NewCipher(key.material[:])
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key.material[:])
	default:
		return nil, fmt.Errorf("unsupported algorithm %s", a)
	}
}

// Encrypt serializes m as JSON and seals it with the default algorithm.
func Encrypt(m map[string]any, key Key) ([]byte, error) {
	return EncryptWith(DefaultAlgorithm, m, key)
}

// EncryptWith seals m with the given algorithm. Layout:
//
//	's' | alg | key fingerprint (4) | nonce | ciphertext+tag
//
// The 6-byte header is bound as associated data.
func EncryptWith(alg Algorithm, m map[string]any, key Key) ([]byte, error) {
	if key.IsZero() {
		return nil, errors.New("secret: encryption key not configured")
	}
	if m == nil {
		m = map[string]any{}
	}
	plaintext, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("secret: encode config: %w", err)
	}
	aead, err := alg.aead(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}

	out := make([]byte, headerLen, headerLen+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = magic
	out[1] = byte(alg)
	copy(out[2:headerLen], key.fingerprint[:])

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secret: nonce generation failed: %w", err)
	}
	header := append([]byte(nil), out[:headerLen]...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Decrypt opens a blob produced by Encrypt or EncryptWith. The algorithm is
// taken from the blob header.
func Decrypt(blob []byte, key Key) (map[string]any, error) {
	if len(blob) < headerLen || blob[0] != magic {
		return nil, ErrDecryption
	}
	if !bytes.Equal(blob[2:headerLen], key.fingerprint[:]) {
		return nil, ErrDecryption
	}
	aead, err := Algorithm(blob[1]).aead(key)
	if err != nil {
		return nil, ErrDecryption
	}
	rest := blob[headerLen:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryption
	}
	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, blob[:headerLen])
	if err != nil {
		return nil, ErrDecryption
	}

	var m map[string]any
	if err := json.Unmarshal(plaintext, &m); err != nil || m == nil {
		return nil, ErrDecryption
	}
	return m, nil
}

// AlgorithmOf reports the algorithm tag of a blob without decrypting it.
func AlgorithmOf(blob []byte) (Algorithm, bool) {
	if len(blob) < headerLen || blob[0] != magic {
		return 0, false
	}
	return Algorithm(blob[1]), true
}

var sensitiveKeys = []string{"password", "secret", "token", "private_key", "passphrase", "credential"}

// Redact returns a copy of m with sensitive values masked, for logs and API
// responses.
func Redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		lower := strings.ToLower(k)
		masked := false
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				masked = true
				break
			}
		}
		if masked {
			out[k] = "********"
		} else {
			out[k] = v
		}
	}
	return out
}
