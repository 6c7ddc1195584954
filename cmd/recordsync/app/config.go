package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
)

// envPrefix namespaces recordsync environment variables (RECORDSYNC_REMOTE_APP_ID).
const envPrefix = "RECORDSYNC"

// RemoteConfig configures the remote record service.
type RemoteConfig struct {
	BaseURL      string
	AppID        string
	AppToken     string
	ClientID     string
	ClientSecret string
	// AccessToken skips the app-token grant when set.
	AccessToken  string
	RateLimit    float64
	Timeout      time.Duration
	QueryRetries int
}

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	Remote      RemoteConfig
	InputDir    string
	MappingFile string
	Workers     int
	JournalPath string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra, see UpdateFromFlags)
// 2. Environment variables
// 3. .env files
// 4. Config file (configFile, or ~/.recordsync.yaml / ./.recordsync.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	// .env files must be loaded before viper binds the environment
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(v)
	if err := bindCredentials(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "cannot read "+configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".recordsync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "cannot read config file", err)
			}
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		Remote: RemoteConfig{
			BaseURL:      v.GetString("remote.base_url"),
			AppID:        v.GetString("remote.app_id"),
			AppToken:     v.GetString("remote.app_token"),
			ClientID:     v.GetString("remote.client_id"),
			ClientSecret: v.GetString("remote.client_secret"),
			AccessToken:  v.GetString("remote.access_token"),
			RateLimit:    v.GetFloat64("remote.rate_limit"),
			Timeout:      v.GetDuration("remote.timeout"),
			QueryRetries: v.GetInt("remote.query_retries"),
		},
		InputDir:    v.GetString("input_dir"),
		MappingFile: v.GetString("mapping_file"),
		Workers:     v.GetInt("workers"),
		JournalPath: expandHome(v.GetString("journal_path")),

		// An empty level lets -v/-q decide, see determineLogLevel
		LogLevel:  getEnvOrDefault("LOG_LEVEL", ""),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", constants.DefaultBaseURL)
	v.SetDefault("remote.rate_limit", constants.DefaultRateLimit)
	v.SetDefault("remote.timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("remote.query_retries", 0)
	v.SetDefault("input_dir", constants.DefaultInputDir)
	v.SetDefault("mapping_file", constants.DefaultMappingFile)
	v.SetDefault("workers", constants.DefaultWorkers)
	v.SetDefault("journal_path", journal.DefaultPath())
}

// bindCredentials binds credential keys to the prefixed variables and to the
// unprefixed PODIO_* names used by existing deployments.
func bindCredentials(v *viper.Viper) error {
	bindings := map[string][]string{
		"remote.client_id":     {envPrefix + "_REMOTE_CLIENT_ID", "PODIO_CLIENT_ID"},
		"remote.client_secret": {envPrefix + "_REMOTE_CLIENT_SECRET", "PODIO_CLIENT_SECRET"},
		"remote.app_id":        {envPrefix + "_REMOTE_APP_ID", "PODIO_APP_ID"},
		"remote.app_token":     {envPrefix + "_REMOTE_APP_TOKEN", "PODIO_API_TOKEN"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return errors.NewConfigError("config", "cannot bind "+key, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.NewConfigError("config", "workers must be at least 1", nil)
	}
	if c.Remote.RateLimit < 0 {
		return errors.NewConfigError("config", "remote.rate_limit must not be negative", nil)
	}
	if c.Remote.QueryRetries < 0 {
		return errors.NewConfigError("config", "remote.query_retries must not be negative", nil)
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first so its values win; godotenv never overrides
// variables that are already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
