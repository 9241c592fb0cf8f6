package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash, "stored hash must not be the plaintext")
	assert.NotContains(t, hash, "secret1")

	assert.NoError(t, hasher.Compare(hash, "secret1"))
	assert.Error(t, hasher.Compare(hash, "secret2"))

	// Same plaintext hashes differently each time (per-hash salt).
	hash2, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestHexTokenSource(t *testing.T) {
	src := NewHexTokenSource()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := src.Token()
		require.NoError(t, err)
		assert.Len(t, tok, 32, "128 bits hex-encoded")

		raw, err := hex.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 16)

		assert.False(t, seen[tok], "tokens must not repeat")
		seen[tok] = true
	}
}
