package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JLAD75/FileGuard/internal/configuration"
)

func TestSelectLocal(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg := configuration.BackendConfig{Type: TypeLocal, LocalPath: t.TempDir()}
	b, err := Select(cfg)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.IsType(t, &LocalBackend{}, b)
}

func TestSelectCachesFirstInstance(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Select(configuration.BackendConfig{Type: TypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)

	// A second call with different (even invalid) configuration still
	// returns the cached instance.
	second, err := Select(configuration.BackendConfig{Type: "bogus"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSelectUnknownType(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Select(configuration.BackendConfig{Type: "tape-drive"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, err.Error(), "tape-drive")
}

func TestResetClearsCache(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Select(configuration.BackendConfig{Type: TypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)

	Reset()

	second, err := Select(configuration.BackendConfig{Type: TypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
