package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("user-42")
	require.NoError(t, err)

	subject, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer(testSecret, time.Hour).Issue("user-42")
	require.NoError(t, err)

	_, err = NewTokenIssuer("another-signing-secret-of-32-chars!!", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	token, err := NewTokenIssuer(testSecret, -time.Minute).Issue("user-42")
	require.NoError(t, err)

	_, err = NewTokenIssuer(testSecret, time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := NewTokenIssuer(testSecret, time.Hour).Verify("not.a.token")
	assert.Error(t, err)
}
