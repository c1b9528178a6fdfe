package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	require.NotEqual(t, "correct-horse", hash)

	assert.True(t, hasher.Verify("correct-horse", hash))
	assert.False(t, hasher.Verify("wrong-pass", hash))
}

func TestHasher_MalformedStoredHash(t *testing.T) {
	hasher := NewHasher(bcrypt.MinCost)

	// Corrupt or empty stored hashes must behave like a mismatch, not an
	// error distinguishable from a wrong password.
	assert.False(t, hasher.Verify("correct-horse", ""))
	assert.False(t, hasher.Verify("correct-horse", "not-a-bcrypt-hash"))
}

func TestHasher_OutOfRangeCostFallsBack(t *testing.T) {
	hasher := NewHasher(99)

	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	assert.True(t, hasher.Verify("correct-horse", hash))
}
