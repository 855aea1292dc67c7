package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	h, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "s3cret!"))
	assert.False(t, CheckPassword(h, "s3cret"))
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SHA256Hex("hello"))
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword(3)
	require.NoError(t, err)
	assert.Len(t, p, 8)

	q, err := GeneratePassword(12)
	require.NoError(t, err)
	assert.Len(t, q, 12)
	for _, r := range q {
		assert.True(t, strings.ContainsRune(passwordAlphabet, r))
	}
}
