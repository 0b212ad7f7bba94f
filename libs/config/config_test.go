package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8085")
	require.NoError(t, err)
	assert.Equal(t, "8085", p)

	t.Setenv("TEST_PORT", "70000")
	_, err = Port("TEST_PORT", "8085")
	assert.Error(t, err)
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "")
	_, err := RequiredString("TEST_REQUIRED")
	assert.EqualError(t, err, "TEST_REQUIRED is required")
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "")
	n, err := Int("TEST_INT", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	t.Setenv("TEST_INT", " 12 ")
	n, err = Int("TEST_INT", 5)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	t.Setenv("TEST_INT", "-1")
	_, err = Int("TEST_INT", 5)
	assert.Error(t, err)
}

func TestBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	b, err := Bool("TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	t.Setenv("TEST_BOOL", "maybe")
	_, err = Bool("TEST_BOOL", false)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "")
	d, err := Duration("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("TEST_DURATION", "1800")
	d, err = Duration("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	t.Setenv("TEST_DURATION", "90s")
	d, err = Duration("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	t.Setenv("TEST_DURATION", "soon")
	_, err = Duration("TEST_DURATION", time.Minute)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOTENV_ONLY=from-file\nDOTENV_SET=from-file\n"), 0o600))

	t.Setenv("DOTENV_SET", "from-env")
	t.Setenv("DOTENV_ONLY", "")
	require.NoError(t, os.Unsetenv("DOTENV_ONLY"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("DOTENV_ONLY"))
	assert.Equal(t, "from-env", os.Getenv("DOTENV_SET"))
}
