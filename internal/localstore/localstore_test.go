package localstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set(KeyAPIKey, "AIzaExample"))
	assert.Equal(t, "AIzaExample", s.Get(KeyAPIKey))

	// Last write wins.
	require.NoError(t, s.Set(KeyAPIKey, "AIzaOther"))
	assert.Equal(t, "AIzaOther", s.Get(KeyAPIKey))
}

func TestAbsentKeysDefaultSafely(t *testing.T) {
	s := newStore(t)

	assert.Equal(t, "", s.Get(KeyAPIKey))
	assert.Equal(t, 0.0, s.GetFloat(KeyTaxRate))
	assert.False(t, s.GetBool(KeyHidePrice))
}

func TestFloatAndBoolHelpers(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SetFloat(KeyTaxRate, 0.1))
	require.NoError(t, s.SetFloat(KeyServiceRate, 12.5))
	require.NoError(t, s.SetBool(KeyHidePrice, true))

	assert.Equal(t, 0.1, s.GetFloat(KeyTaxRate))
	assert.Equal(t, 12.5, s.GetFloat(KeyServiceRate))
	assert.True(t, s.GetBool(KeyHidePrice))

	// Garbage values fall back to zero values.
	require.NoError(t, s.Set(KeyTaxRate, "not a number"))
	assert.Equal(t, 0.0, s.GetFloat(KeyTaxRate))
	require.NoError(t, s.Set(KeyHidePrice, "yes"))
	assert.False(t, s.GetBool(KeyHidePrice))
}

func TestDelete(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set(KeyMenuSession, "payload"))
	require.NoError(t, s.Delete(KeyMenuSession))
	assert.Equal(t, "", s.Get(KeyMenuSession))

	// Absent key is a no-op.
	require.NoError(t, s.Delete(KeyMenuSession))
}

func TestKeysCannotEscapeDirectory(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set("../escape", "v"))
	assert.Equal(t, "v", s.Get("../escape"))
}
