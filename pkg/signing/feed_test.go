package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSignerRoundTrip(t *testing.T) {
	signer := NewFeedSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("room=A101|teacher=|group=")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	subject, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "room=A101|teacher=|group=", subject)
}

func TestFeedSignerRejectsForeignSecret(t *testing.T) {
	token, _, err := NewFeedSigner("one", time.Hour).Sign("group=G1")
	require.NoError(t, err)

	_, err = NewFeedSigner("two", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewFeedSigner("one", time.Hour).Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFeedSignerExpired(t *testing.T) {
	signer := NewFeedSigner("secret", time.Hour)
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issued }
	token, _, err := signer.Sign("group=G1")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestFeedSignerRequiresSecretAndSubject(t *testing.T) {
	_, _, err := NewFeedSigner("", time.Hour).Sign("group=G1")
	assert.Error(t, err)
	_, _, err = NewFeedSigner("secret", time.Hour).Sign("")
	assert.Error(t, err)
}
