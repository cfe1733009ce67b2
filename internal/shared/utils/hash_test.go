package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHashAlgorithm(t *testing.T) {
	alg, err := ParseHashAlgorithm("SHA256")
	require.NoError(t, err)
	assert.Equal(t, SHA256, alg)

	alg, err = ParseHashAlgorithm(" blake2b ")
	require.NoError(t, err)
	assert.Equal(t, BLAKE2b, alg)

	_, err = ParseHashAlgorithm("md5")
	assert.Error(t, err)
}

func TestHashKnownVectors(t *testing.T) {
	tests := []struct {
		algorithm HashAlgorithm
		input     string
		want      string
	}{
		{SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{BLAKE2b, "", "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"},
	}

	for _, tt := range tests {
		h := NewHasher(tt.algorithm)
		assert.Equal(t, tt.want, h.Hash([]byte(tt.input)), "%s(%q)", tt.algorithm, tt.input)
	}
}

func TestHashReaderMatchesHash(t *testing.T) {
	for _, alg := range []HashAlgorithm{SHA256, BLAKE2b} {
		h := NewHasher(alg)
		data := strings.Repeat("spill", 10000)

		digest, n, err := h.HashReader(strings.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Equal(t, h.Hash([]byte(data)), digest)
		assert.True(t, strings.HasPrefix(h.Label(digest), string(alg)+":"))
	}
}

func TestDefaultHasher(t *testing.T) {
	assert.Equal(t, SHA256, DefaultHasher().Algorithm())
}
