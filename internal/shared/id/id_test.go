package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		prefix string
	}{
		{"execcore"},
		{"merge"},
		{"job"},
	}

	for _, tt := range tests {
		id := gen.GenerateWithPrefix(tt.prefix)

		if !strings.HasPrefix(id, tt.prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", tt.prefix, id)
		}

		parsed, ok := SplitPrefixed(id, tt.prefix)
		if !ok {
			t.Errorf("Prefixed ID should split back into prefix and ULID: %s", id)
		}
		if !strings.HasSuffix(id, parsed.String()) {
			t.Errorf("Split ULID %s does not match %s", parsed, id)
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	validID := gen.GenerateString()
	if !IsValid(validID) {
		t.Error("Generated ULID should be valid")
	}

	invalidIDs := []string{
		"",
		"invalid",
		"1234567890",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzz", // Invalid characters
	}

	for _, id := range invalidIDs {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestParse(t *testing.T) {
	gen := NewGenerator()

	original := gen.Generate()
	str := original.String()

	parsed, err := Parse(str)
	if err != nil {
		t.Fatalf("Failed to parse ULID: %v", err)
	}

	if parsed.String() != str {
		t.Errorf("Parsed ULID doesn't match original: %s != %s", parsed.String(), str)
	}
}

func TestTimestamp(t *testing.T) {
	gen := NewGenerator()

	before := time.Now()
	id := gen.GenerateString()
	after := time.Now()

	ts, err := Timestamp(id)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision, so allow small variance
	beforeMs := before.UnixMilli()
	afterMs := after.UnixMilli()
	tsMs := ts.UnixMilli()

	if tsMs < beforeMs || tsMs > afterMs {
		t.Errorf("Timestamp should be between %d and %d ms, got %d ms", beforeMs, afterMs, tsMs)
	}
}

func TestPrefixedTimestamp(t *testing.T) {
	gen := NewGenerator()
	stamp := time.Now().Add(-48 * time.Hour).Truncate(time.Millisecond)

	name := "execcore_" + gen.GenerateAt(stamp).String()

	ts, ok := PrefixedTimestamp(name, "execcore")
	if !ok {
		t.Fatalf("Expected %s to carry a timestamp", name)
	}
	if !ts.Equal(stamp) {
		t.Errorf("Expected %v, got %v", stamp, ts)
	}

	for _, other := range []string{"other_" + gen.GenerateString(), "execcore_notaulid", "execcore"} {
		if _, ok := PrefixedTimestamp(other, "execcore"); ok {
			t.Errorf("Name should not match: %s", other)
		}
	}
}

func TestGeneratorWithEntropy(t *testing.T) {
	entropy := bytes.Repeat([]byte{0x01}, 10)
	entropy = append(entropy, bytes.Repeat([]byte{0x02}, 10)...)
	gen := NewGeneratorWithEntropy(bytes.NewReader(entropy))

	stamp := time.UnixMilli(1700000000000)
	first := gen.GenerateAt(stamp)
	second := gen.GenerateAt(stamp)

	if !bytes.Equal(first.Entropy(), entropy[:10]) {
		t.Errorf("First ULID entropy = %x, want %x", first.Entropy(), entropy[:10])
	}
	if !bytes.Equal(second.Entropy(), entropy[10:]) {
		t.Errorf("Second ULID entropy = %x, want %x", second.Entropy(), entropy[10:])
	}

	ts, err := Timestamp(first.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}
	if !ts.Equal(stamp) {
		t.Errorf("Expected %v, got %v", stamp, ts)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateWithPrefix("execcore")
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID generated concurrently: %s", id)
		}
		seen[id] = true
	}
}
