package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDir runs the test from dir so Load sees dir's .env file, if any.
func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.PhotoPath)
	assert.NotEmpty(t, cfg.PreviewPath)
	assert.Equal(t, 1000, cfg.MaxDrafts)
	assert.Empty(t, cfg.FieldsFile)
	assert.False(t, cfg.TestMode)
}

func TestLoadCustomValues(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("DB_PATH", "/custom/db.sqlite")
	t.Setenv("PREVIEW_LOCAL_PATH", "/tmp/previews")
	t.Setenv("MAX_DRAFTS", "25")
	t.Setenv("FIELDS_FILE", "/etc/adpost/fields.yaml")
	t.Setenv("ADPOST_TEST_MODE", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/custom/db.sqlite", cfg.DBPath)
	assert.Equal(t, "/tmp/previews", cfg.PreviewPath)
	assert.Equal(t, 25, cfg.MaxDrafts)
	assert.Equal(t, "/etc/adpost/fields.yaml", cfg.FieldsFile)
	assert.True(t, cfg.TestMode)
}

func TestLoadInvalidMaxDrafts(t *testing.T) {
	inDir(t, t.TempDir())

	for _, v := range []string{"zero", "0", "-3"} {
		t.Setenv("MAX_DRAFTS", v)
		_, err := Load()
		assert.Error(t, err, v)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LOG_LEVEL=debug\nLISTEN_ADDR=:7070\n"), 0600))
	inDir(t, dir)
	t.Setenv("LISTEN_ADDR", ":9090")
	// godotenv sets variables in the process; restore LOG_LEVEL afterwards.
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "value comes from .env")
	assert.Equal(t, ":9090", cfg.ListenAddr, "environment wins over .env")
}
