package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKeyHex(t *testing.T) {
	hexKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	decoded, err := DecodeKey(hexKey)
	require.NoError(t, err)

	expected, _ := hex.DecodeString(hexKey)
	require.Equal(t, expected, decoded)
}

func TestDecodeKeyBase64(t *testing.T) {
	rawKey := make([]byte, 32)
	for i := range rawKey {
		rawKey[i] = byte(i)
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		decoded, err := DecodeKey(enc.EncodeToString(rawKey))
		require.NoError(t, err)
		require.Equal(t, rawKey, decoded)
	}
}

func TestDecodeKeyRawFallback(t *testing.T) {
	decoded, err := DecodeKey("not hex, not base64!")
	require.NoError(t, err)
	require.Equal(t, []byte("not hex, not base64!"), decoded)
}

func TestDecodeKeyEmpty(t *testing.T) {
	_, err := DecodeKey("   ")
	require.Error(t, err)
}
