package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox([][]byte{key(1), key(2)})
	require.NoError(t, err)

	ct, err := box.Encrypt([]byte("hello"))
	require.NoError(t, err)
	pt, err := box.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	box, err := NewBox([][]byte{key(1)})
	require.NoError(t, err)

	a, _ := box.Encrypt([]byte("same"))
	b, _ := box.Encrypt([]byte("same"))
	assert.NotEqual(t, a, b)
}

func TestDecryptFallsBackThroughRotatedKeys(t *testing.T) {
	oldBox, err := NewBox([][]byte{key(9)})
	require.NoError(t, err)
	ct, err := oldBox.Encrypt([]byte("legacy"))
	require.NoError(t, err)

	newBox, err := NewBox([][]byte{key(1), key(9)})
	require.NoError(t, err)
	pt, err := newBox.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(pt))
}
