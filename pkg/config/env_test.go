package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", " test_value ")
	assert.Equal(t, "test_value", GetEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", GetEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvAsInt64(t *testing.T) {
	n, err := GetEnvAsInt64("NONEXISTENT_VAR", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	t.Setenv("TEST_INT", "1500")
	n, err = GetEnvAsInt64("TEST_INT", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), n)

	t.Setenv("TEST_INT", "many")
	_, err = GetEnvAsInt64("TEST_INT", 42)
	assert.ErrorContains(t, err, "TEST_INT")
}

func TestLoadProgram_BadThresholdOverride(t *testing.T) {
	t.Setenv(EnvSunsetThreshold, "a thousand")
	_, err := LoadProgram("")
	assert.Error(t, err)
}

func TestLoadProgram_PhraseOverride(t *testing.T) {
	t.Setenv(EnvConfirmationPhrase, "SEND IT")
	p, err := LoadProgram("")
	require.NoError(t, err)
	assert.Equal(t, "SEND IT", p.ConfirmationPhrase)
}
