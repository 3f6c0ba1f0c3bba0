package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	require := require.New(t)

	a := Generate()
	b := Generate()
	require.NotEqual(a, b)
	require.NotEqual(Empty, a)
}

func TestStringRoundTrip(t *testing.T) {
	require := require.New(t)

	id := Generate()
	parsed, err := FromString(id.String())
	require.NoError(err)
	require.Equal(id, parsed)
}

func TestFromStringInvalid(t *testing.T) {
	require := require.New(t)

	_, err := FromString("not-hex")
	require.Error(err)

	_, err = FromString("ab")
	require.Error(err)
}
