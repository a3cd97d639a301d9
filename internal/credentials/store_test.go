package credentials

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type brokenRing struct{}

func (brokenRing) Get(string, string) (string, error) { return "", errors.New("no dbus") }
func (brokenRing) Set(string, string, string) error   { return errors.New("no dbus") }
func (brokenRing) Delete(string, string) error        { return errors.New("no dbus") }

func TestResolveOrder(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvAPIKey, "env-key-123")

	s := NewStore("", OSKeyring(), nil)
	key, src := s.Lookup()
	assert.Equal(t, "env-key-123", key)
	assert.Equal(t, SourceEnv, src)

	s = NewStore("config-key-1", OSKeyring(), nil)
	_, src = s.Lookup()
	assert.Equal(t, SourceConfig, src)

	require.NoError(t, keyring.Set(KeyringService, KeyringAccount, "ring-key-12"))
	_, src = s.Lookup()
	assert.Equal(t, SourceKeyring, src)

	persisted, err := s.Set("  memory-key-1  ")
	require.NoError(t, err)
	assert.True(t, persisted)
	key, src = s.Lookup()
	assert.Equal(t, "memory-key-1", key)
	assert.Equal(t, SourceMemory, src)
}

func TestSetRejectsShortKeys(t *testing.T) {
	keyring.MockInit()
	s := NewStore("", OSKeyring(), nil)
	_, err := s.Set(" short ")
	require.ErrorIs(t, err, ErrKeyTooShort)
	assert.Empty(t, s.Resolve())
}

func TestClear(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvAPIKey, "")
	s := NewStore("", OSKeyring(), nil)
	_, err := s.Set("abcdefgh1234")
	require.NoError(t, err)

	s.Clear()
	assert.Empty(t, s.Resolve())
	_, err = keyring.Get(KeyringService, KeyringAccount)
	require.ErrorIs(t, err, keyring.ErrNotFound)

	s.Clear()
}

func TestBrokenKeyringFallsBackToMemory(t *testing.T) {
	s := NewStore("", brokenRing{}, nil)
	persisted, err := s.Set("abcdefgh1234")
	require.NoError(t, err)
	assert.False(t, persisted)
	assert.Equal(t, "abcdefgh1234", s.Resolve())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "abc", Mask("abc"))
	masked := Mask("abcdefgh1234")
	assert.True(t, strings.HasSuffix(masked, "1234"))
	assert.NotContains(t, masked, "abcd")
	assert.Equal(t, strings.Repeat(maskGlyph, 8)+"1234", masked)
}
