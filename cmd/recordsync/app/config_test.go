package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/pkg/constants"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultBaseURL, config.Remote.BaseURL)
	assert.Equal(t, constants.DefaultInputDir, config.InputDir)
	assert.Equal(t, constants.DefaultMappingFile, config.MappingFile)
	assert.Equal(t, constants.DefaultWorkers, config.Workers)
	assert.Equal(t, constants.DefaultRateLimit, config.Remote.RateLimit)
	assert.Equal(t, constants.DefaultHTTPTimeout, config.Remote.Timeout)
	assert.Equal(t, "auto", config.LogFormat)
	assert.Contains(t, config.JournalPath, constants.DefaultJournalFile)
}

func TestLoadConfigPodioEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PODIO_CLIENT_ID", "client")
	t.Setenv("PODIO_CLIENT_SECRET", "secret")
	t.Setenv("PODIO_APP_ID", "42")
	t.Setenv("PODIO_API_TOKEN", "apptoken")
	t.Setenv("RECORDSYNC_WORKERS", "8")
	t.Setenv("RECORDSYNC_REMOTE_TIMEOUT", "5s")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "client", config.Remote.ClientID)
	assert.Equal(t, "secret", config.Remote.ClientSecret)
	assert.Equal(t, "42", config.Remote.AppID)
	assert.Equal(t, "apptoken", config.Remote.AppToken)
	assert.Equal(t, 8, config.Workers)
	assert.Equal(t, 5*time.Second, config.Remote.Timeout)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RECORDSYNC_INPUT_DIR=from-dotenv\n"), 0o600))
	// godotenv does not override variables that are already set; make sure
	// the variable is restored to unset when the test finishes.
	t.Setenv("RECORDSYNC_INPUT_DIR", "")
	require.NoError(t, os.Unsetenv("RECORDSYNC_INPUT_DIR"))

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", config.InputDir)
}

func TestLoadConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "recordsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`remote:
  base_url: https://example.test
  app_id: "7"
  rate_limit: 2.5
  query_retries: 3
workers: 6
journal_path: ~/state/journal.db
`), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, path, config.ConfigFile)
	assert.Equal(t, "https://example.test", config.Remote.BaseURL)
	assert.Equal(t, "7", config.Remote.AppID)
	assert.Equal(t, 2.5, config.Remote.RateLimit)
	assert.Equal(t, 3, config.Remote.QueryRetries)
	assert.Equal(t, 6, config.Workers)
	assert.Equal(t, filepath.Join(home, "state", "journal.db"), config.JournalPath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadWorkers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RECORDSYNC_WORKERS", "0")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestUpdateFromFlags(t *testing.T) {
	config := &Config{Format: "yaml", LogLevel: "warn"}

	config.UpdateFromFlags(true, false, true, "", "")
	assert.True(t, config.Verbose)
	assert.True(t, config.NoColor)
	assert.Equal(t, "yaml", config.Format, "empty flag keeps configured format")
	assert.Equal(t, "warn", config.LogLevel)

	config.UpdateFromFlags(false, false, false, "json", "debug")
	assert.Equal(t, "json", config.Format)
	assert.Equal(t, "debug", config.LogLevel)
}
