package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "correct-horse"))
	assert.ErrorIs(t, h.Compare(hash, "wrong-horse"), ErrPasswordMismatch)
}
