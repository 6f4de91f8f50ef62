package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrkeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	addr, err := EncodeAddress(pub)
	require.NoError(t, err)
	assert.Len(t, addr, EncodedLen)
	assert.True(t, strings.HasPrefix(addr, "G"), "addresses start with G, got %s", addr)

	decoded, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), decoded)
}

func TestStrkeySeedPrefix(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	encoded, err := EncodeSeed(seed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "S"), "seeds start with S, got %s", encoded)

	decoded, err := DecodeSeed(encoded)
	require.NoError(t, err)
	assert.Equal(t, seed, decoded)
}

func TestIsAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := EncodeAddress(pub)
	require.NoError(t, err)

	assert.True(t, IsAddress(addr))

	t.Run("rejects tampered checksum", func(t *testing.T) {
		tampered := []byte(addr)
		if tampered[10] == 'A' {
			tampered[10] = 'B'
		} else {
			tampered[10] = 'A'
		}
		assert.False(t, IsAddress(string(tampered)))
	})

	t.Run("rejects seeds as addresses", func(t *testing.T) {
		seed, err := EncodeSeed(pub)
		require.NoError(t, err)
		assert.False(t, IsAddress(seed))
	})

	t.Run("rejects handles and junk", func(t *testing.T) {
		assert.False(t, IsAddress("alice"))
		assert.False(t, IsAddress(""))
		assert.False(t, IsAddress(strings.Repeat("G", EncodedLen)))
		assert.False(t, IsAddress(addr+"A"))
	})
}

func TestEncodeRejectsWrongPayloadSize(t *testing.T) {
	_, err := EncodeAddress(make([]byte, 31))
	assert.Error(t, err)
	_, err = EncodeSeed(make([]byte, 33))
	assert.Error(t, err)
}
