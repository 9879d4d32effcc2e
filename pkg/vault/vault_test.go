package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makar0n1/art-automation/pkg/storage"
)

func newTestVault(t *testing.T) (*Vault, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v, err := New(nil, "a-signing-secret-of-sufficient-length", store)
	require.NoError(t, err)
	return v, store
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)

	tests := []struct {
		name  string
		value string
	}{
		{"short key", "sk"},
		{"typical api key", "sk-or-v1-0123456789abcdef0123456789abcdef"},
		{"value containing colons", "a:b:c:d"},
		{"unicode", "ключ-доступа-日本語"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := v.Encrypt(tt.value)
			require.NoError(t, err)
			assert.Len(t, strings.Split(sealed, ":"), 3)
			assert.NotContains(t, sealed, tt.value)

			opened, err := v.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.value, opened)
		})
	}
}

func TestEncryptEmptyValue(t *testing.T) {
	v, _ := newTestVault(t)
	_, err := v.Encrypt("")
	assert.Error(t, err)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	v, _ := newTestVault(t)

	first, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptLegacyPlaintext(t *testing.T) {
	v, _ := newTestVault(t)

	// Anything without the three-segment shape is legacy plaintext.
	for _, value := range []string{"plain-api-key", "a:b", "a:b:c:d", "", "not base64 : also not : %%%"} {
		got, err := v.Decrypt(value)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	v, _ := newTestVault(t)

	sealed, err := v.Encrypt("secret value")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	// Flip the tag segment; authentication must fail.
	parts[1] = parts[2]
	_, err = v.Decrypt(strings.Join(parts, ":"))
	assert.Error(t, err)
}

func TestDecryptWithWrongKey(t *testing.T) {
	v1, _ := newTestVault(t)

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	v2, err := New(nil, "a-completely-different-signing-secret", store)
	require.NoError(t, err)

	sealed, err := v1.Encrypt("secret value")
	require.NoError(t, err)
	_, err = v2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestExplicitKeyOverridesDerivation(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := []byte("0123456789abcdef0123456789abcdef")
	v1, err := New(key, "secret-one", store)
	require.NoError(t, err)
	v2, err := New(key, "secret-two", store)
	require.NoError(t, err)

	sealed, err := v1.Encrypt("shared")
	require.NoError(t, err)
	opened, err := v2.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shared", opened)

	_, err = New([]byte("too short"), "", store)
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"empty", "", ""},
		{"shorter than head plus tail", "abcdefgh", "abcdefgh"},
		{"typical", "sk-or-v1-abcdef", "sk-o*******cdef"},
		{"stars capped at twenty", "aaaa" + strings.Repeat("x", 40) + "bbbb", "aaaa" + strings.Repeat("*", 20) + "bbbb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.value))
		})
	}
}

func TestHashAndCompareSecret(t *testing.T) {
	hash, err := HashSecret("1234")
	require.NoError(t, err)
	assert.True(t, CompareSecret("1234", hash))
	assert.False(t, CompareSecret("4321", hash))
	assert.False(t, CompareSecret("1234", "not a hash"))
}

func TestVerifyPinBruteForce(t *testing.T) {
	v, _ := newTestVault(t)

	pinHash, err := HashSecret("1234")
	require.NoError(t, err)
	const userID = "user-1"

	// Five wrong attempts from IP A.
	for i := 1; i <= 5; i++ {
		remaining, err := v.VerifyPin("10.0.0.1", userID, "0000", pinHash)
		require.Error(t, err)
		if i < 5 {
			assert.NotErrorIs(t, err, ErrPinBlocked)
			assert.Equal(t, 5-i, remaining)
		} else {
			assert.ErrorIs(t, err, ErrPinBlocked)
		}
	}

	// The sixth call is blocked even with the correct PIN.
	_, err = v.VerifyPin("10.0.0.1", userID, "1234", pinHash)
	assert.ErrorIs(t, err, ErrPinBlocked)

	// A different IP is unaffected and succeeds.
	remaining, err := v.VerifyPin("10.0.0.2", userID, "1234", pinHash)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	// IP A stays blocked after IP B's success.
	_, err = v.VerifyPin("10.0.0.1", userID, "1234", pinHash)
	assert.ErrorIs(t, err, ErrPinBlocked)
}

func TestVerifyPinSuccessResetsCounter(t *testing.T) {
	v, _ := newTestVault(t)

	pinHash, err := HashSecret("1234")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := v.VerifyPin("10.0.0.9", "user-2", "0000", pinHash)
		require.Error(t, err)
	}
	_, err = v.VerifyPin("10.0.0.9", "user-2", "1234", pinHash)
	require.NoError(t, err)

	// The counter restarted; four more failures still do not block.
	for i := 0; i < 4; i++ {
		_, err := v.VerifyPin("10.0.0.9", "user-2", "0000", pinHash)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPinBlocked)
	}
}
