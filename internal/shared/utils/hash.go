package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256  HashAlgorithm = "sha256"
	BLAKE2b HashAlgorithm = "blake2b"
)

// ParseHashAlgorithm accepts "sha256" and "blake2b", case-insensitively.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch alg := HashAlgorithm(strings.ToLower(strings.TrimSpace(s))); alg {
	case SHA256, BLAKE2b:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

// Hasher computes hex digests of byte streams
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Algorithm returns the hasher's algorithm.
func (h *Hasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

// New returns a fresh hash.Hash for the algorithm. Unknown algorithms fall
// back to SHA-256.
func (h *Hasher) New() hash.Hash {
	switch h.algorithm {
	case BLAKE2b:
		// A nil key never fails.
		d, _ := blake2b.New256(nil)
		return d
	default:
		return sha256.New()
	}
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	d := h.New()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// HashReader digests r to EOF and returns the hex digest and the number of
// bytes read.
func (h *Hasher) HashReader(r io.Reader) (string, int64, error) {
	d := h.New()
	n, err := io.Copy(d, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(d.Sum(nil)), n, nil
}

// Label formats a digest as "<algorithm>:<hex>".
func (h *Hasher) Label(digest string) string {
	return string(h.Algorithm()) + ":" + digest
}
