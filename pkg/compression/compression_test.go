package compression

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	alg, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, alg)

	alg, err = Parse("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, alg)

	_, err = Parse("brotli")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	page := []byte(strings.Repeat(`{"id":1,"name":"order"}`+"\n", 200))

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			compressed, err := Compress(alg, page)
			require.NoError(t, err)
			if alg != None {
				assert.Less(t, len(compressed), len(page))
			}

			out, err := Decompress(alg, compressed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(page, out))
		})
	}
}

func TestExtensions(t *testing.T) {
	seen := map[string]bool{}
	for _, alg := range Algorithms {
		ext := alg.Extension()
		assert.False(t, seen[ext], "extension %q reused", ext)
		seen[ext] = true
	}
	assert.Equal(t, "", None.Extension())
	assert.Equal(t, ".gz", Gzip.Extension())
}
