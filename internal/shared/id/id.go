// Package id provides ULID generation for temp storage names.
//
// ULIDs are lexicographically sortable and carry their creation time, which
// lets a later process decide whether a leftover temp directory is stale
// without trusting file modification times.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Separator joins a prefix and a ULID.
const Separator = "_"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	// Default generator with cryptographically secure entropy
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Each ULID consumes ten bytes; the reader must not run dry.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	return g.GenerateAt(time.Now())
}

// GenerateAt creates a ULID stamped with t.
func (g *Generator) GenerateAt(t time.Time) ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s%s%s", prefix, Separator, g.GenerateString())
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.ParseStrict(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// SplitPrefixed splits "prefix_ULID" into its parts. ok is false when the
// name does not carry the expected prefix or the suffix is not a ULID.
func SplitPrefixed(name, prefix string) (ulid.ULID, bool) {
	rest, found := strings.CutPrefix(name, prefix+Separator)
	if !found {
		return ulid.ULID{}, false
	}
	parsed, err := Parse(rest)
	if err != nil {
		return ulid.ULID{}, false
	}
	return parsed, true
}

// PrefixedTimestamp returns the creation time encoded in a "prefix_ULID" name.
func PrefixedTimestamp(name, prefix string) (time.Time, bool) {
	rest, found := strings.CutPrefix(name, prefix+Separator)
	if !found {
		return time.Time{}, false
	}
	ts, err := Timestamp(rest)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
