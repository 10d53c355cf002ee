package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "console.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetToken("tok-123"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "tok-123", s.Token())
}

func TestSetTokenOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetToken("first"))
	require.NoError(t, s.SetToken("second"))
	assert.Equal(t, "second", s.Token())
}

func TestClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetToken("tok"))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Token())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Token(), "cleared token must not come back after reopen")
}

func TestEphemeralStoreNeverPersists(t *testing.T) {
	s := OpenEphemeral()
	assert.Empty(t, s.Token())
	require.NoError(t, s.SetToken("tok"))
	assert.Equal(t, "tok", s.Token())
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Token())
	require.NoError(t, s.Close())
}
