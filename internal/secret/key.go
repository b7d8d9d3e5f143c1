package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Derivation labels. Each purpose gets its own subkey of the project key.
const (
	LabelEncryption = "sluice/connection-config/v1"
	LabelSigning    = "sluice/assertion-signing/v1"
)

// MinProjectKeyLen is the minimum decoded length of a project key.
const MinProjectKeyLen = 32

// Key is a 256-bit symmetric key plus its fingerprint. Keys are loaded once at
// startup and are safe for concurrent use.
type Key struct {
	material    [32]byte
	fingerprint [4]byte
}

// GenerateProjectKey returns a fresh random project key in the textual form
// accepted by ParseProjectKey.
func GenerateProjectKey() (string, error) {
	b := make([]byte, MinProjectKeyLen)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate project key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ParseProjectKey decodes a project key given as hex or base64 (url or
// standard alphabet).
func ParseProjectKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("project key is empty")
	}
	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.RawURLEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
	}
	for _, dec := range decoders {
		if b, err := dec(s); err == nil && len(b) >= MinProjectKeyLen {
			return b, nil
		}
	}
	return nil, fmt.Errorf("project key must encode at least %d bytes as base64 or hex", MinProjectKeyLen)
}

// DeriveKey expands the project key into a purpose-bound subkey with
// HKDF-SHA256.
func DeriveKey(projectKey []byte, label string) (Key, error) {
	if len(projectKey) < MinProjectKeyLen {
		return Key{}, fmt.Errorf("project key too short: %d bytes, need %d", len(projectKey), MinProjectKeyLen)
	}
	var k Key
	r := hkdf.New(sha256.New, projectKey, nil, []byte(label))
	if _, err := io.ReadFull(r, k.material[:]); err != nil {
		return Key{}, fmt.Errorf("derive key: %w", err)
	}
	mac := hmac.New(sha256.New, k.material[:])
	mac.Write([]byte("fingerprint"))
	copy(k.fingerprint[:], mac.Sum(nil))
	return k, nil
}

// Bytes returns a copy of the raw key material.
func (k Key) Bytes() []byte {
	b := make([]byte, len(k.material))
	copy(b, k.material[:])
	return b
}

// Fingerprint identifies the key without revealing it.
func (k Key) Fingerprint() string {
	return hex.EncodeToString(k.fingerprint[:])
}

// IsZero reports whether k was never derived.
func (k Key) IsZero() bool {
	return k == Key{}
}
