package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProducesDistinctIdentities(t *testing.T) {
	a, err := New(1.0, 2.0)
	require.NoError(t, err)
	b, err := New(1.0, 2.0)
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.Len(t, a.SecretKey, secretLen)
}

func TestFromSecretIsDeterministic(t *testing.T) {
	a, err := New(0, 0)
	require.NoError(t, err)

	rebuilt := FromSecret(a.SecretKey, 1, 2)
	require.Equal(t, a.ID, rebuilt.ID)
}

func TestSecretHexRoundTrip(t *testing.T) {
	a, err := New(0, 0)
	require.NoError(t, err)

	parsed, err := ParseSecretHex(a.SecretHex())
	require.NoError(t, err)
	require.Equal(t, a.SecretKey, parsed)
}

func TestParseSecretHexRejectsInvalid(t *testing.T) {
	_, err := ParseSecretHex("not-hex")
	require.Error(t, err)
}
