package auth_test

import (
	"strings"
	"testing"

	"github.com/nairabhi/habitvault/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMint(t *testing.T) {
	k, err := auth.Mint()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k.Raw, "hv_"))
	assert.Len(t, k.Raw, 3+48, "prefix plus 24 random bytes hex encoded")
	assert.Equal(t, k.Raw[:auth.PrefixLen], k.Prefix)

	// The stored hash verifies against the raw key and nothing else.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(k.Raw)))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(k.Raw+"x")))
}

func TestMint_KeysAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		k, err := auth.Mint()
		require.NoError(t, err)
		require.False(t, seen[k.Raw], "duplicate key minted")
		seen[k.Raw] = true
	}
}
