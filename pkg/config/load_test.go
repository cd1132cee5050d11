package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFileWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), nil, 0o600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	found, err := FindFile("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), found)

	_, err = FindFile("missing.env")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFromNestedDirectory(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "TREASURY_PROGRAM_FILE"} {
		_, had := os.LookupEnv(key)
		require.False(t, had, "%s must not be set for this test", key)
		t.Cleanup(func() { os.Unsetenv(key) }) //nolint:errcheck
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte("SERVER_PORT=4321\nTREASURY_PROGRAM_FILE=program.yaml\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "program.yaml"),
		[]byte("sunset_threshold: 2500\n"), 0o600))
	nested := filepath.Join(root, "cmd", "cli")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	cfg, err := Load(".env.local", ".env")
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Server.Port)
	assert.Equal(t, filepath.Join(root, "program.yaml"), cfg.ProgramFile)
	assert.Equal(t, int64(2500), cfg.Program.SunsetThreshold)
}
