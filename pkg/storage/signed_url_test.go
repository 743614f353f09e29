package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("batch-1", "batch-1/stu-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	claims, err := signer.Verify(token, false)
	require.NoError(t, err)
	require.Equal(t, "batch-1", claims.BatchID)
	require.Equal(t, "batch-1/stu-1.pdf", claims.Path)
	require.True(t, expiresAt.Equal(claims.ExpiresAt))
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("batch-1", "batch-1/stu-1.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = signer.Verify(token, false)
	require.True(t, errors.Is(err, ErrInvalidToken))

	claims, err := signer.Verify(token, true)
	require.NoError(t, err)
	require.Equal(t, "batch-1", claims.BatchID)
	require.Equal(t, "batch-1/stu-1.pdf", claims.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("batch-1", "batch-1/stu-1.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "batch-2"
	_, err = signer.Verify(strings.Join(parts, "."), false)
	require.True(t, errors.Is(err, ErrInvalidToken))

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Verify(token, false)
	require.Error(t, err)

	_, err = signer.Verify("not-a-token", false)
	require.Error(t, err)
}

func TestSignedURLSignerRequiresInputs(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("batch-1", "a.pdf")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Sign("", "a.pdf")
	require.Error(t, err)
}
