package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	assert.Equal(t, None, Detect("00000000000000ff.json"))
	assert.Equal(t, Zstd, Detect("00000000000000ff.json.zst"))
	assert.Equal(t, LZ4, Detect("00000000000000ff.json.lz4"))
	assert.Equal(t, "a.json", TrimExtension("a.json.zst"))
}

func TestIsRecordFile(t *testing.T) {
	assert.True(t, IsRecordFile("a.json"))
	assert.True(t, IsRecordFile("a.json.lz4"))
	assert.False(t, IsRecordFile("a.png"))
	assert.False(t, IsRecordFile("a.zst"))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, None, k)

	k, err = ParseKind("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, k)

	_, err = ParseKind("gzip")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"id":1,"spectrum":[0.3]}`), 64)

	for _, kind := range []Kind{None, Zstd, LZ4} {
		t.Run(string(kind), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(kind, &buf)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(kind, &buf)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}
