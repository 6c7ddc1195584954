// Package app provides the application context and dependency management
// for the recordsync CLI. It centralizes configuration, logging, and the
// lazily constructed remote store, mapping and run journal.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/internal/remote"
	"github.com/agentstation/recordsync/internal/transport"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/detector"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
)

// App represents the recordsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer // command output, stdout when nil

	// Lazily initialized, guarded by mu
	mu      sync.Mutex
	store   records.Store
	mapping *mapping.Mapping
	journal *journal.Journal
}

var _ appcontext.Interface = (*App)(nil)

// New creates a new App instance with the given version information.
// The app is initialized with configuration from the environment and the
// default config file locations; options may replace any dependency.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Settings returns the configured run parameters.
func (a *App) Settings() appcontext.Settings {
	return appcontext.Settings{
		InputDir:    a.config.InputDir,
		MappingFile: a.config.MappingFile,
		Workers:     a.config.Workers,
	}
}

// Store returns the remote store, creating and authenticating it on first use.
func (a *App) Store(ctx context.Context) (records.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return a.store, nil
	}
	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *App) newStore(ctx context.Context) (records.Store, error) {
	rc := a.config.Remote

	var auth transport.Authenticator
	if rc.AccessToken != "" {
		auth = transport.TokenAuth{Token: rc.AccessToken}
	} else {
		appAuth := transport.NewAppAuth(transport.AppCredentials{
			ClientID:     rc.ClientID,
			ClientSecret: rc.ClientSecret,
			AppID:        rc.AppID,
			AppToken:     rc.AppToken,
		}, rc.BaseURL+constants.TokenPath, nil)
		if err := appAuth.Authenticate(ctx); err != nil {
			return nil, err
		}
		auth = appAuth
	}

	client, err := transport.New(rc.BaseURL, auth,
		transport.WithTimeout(rc.Timeout),
		transport.WithRateLimit(rc.RateLimit),
		transport.WithUserAgent("recordsync/"+a.version),
	)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("base_url", rc.BaseURL).Str("app_id", rc.AppID).Msg("Remote store ready")
	return remote.New(client, rc.AppID)
}

// Mapping returns the field mapping, loading it on first use. The built-in
// default is used when the configured file does not exist.
func (a *App) Mapping() (*mapping.Mapping, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mapping != nil {
		return a.mapping, nil
	}
	m, isDefault, err := mapping.LoadOrDefault(a.config.MappingFile)
	if err != nil {
		return nil, err
	}
	if isDefault {
		a.logger.Debug().Str("path", a.config.MappingFile).Msg("Mapping file not found, using built-in mapping")
	}
	a.mapping = m
	return m, nil
}

// Detector returns a duplicate detector over the remote store.
func (a *App) Detector(ctx context.Context) (*detector.Detector, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	m, err := a.Mapping()
	if err != nil {
		return nil, err
	}
	resolver, err := m.Resolver()
	if err != nil {
		return nil, err
	}
	return detector.New(store, resolver,
		detector.WithQueryLimit(m.QueryLimit()),
		detector.WithQueryRetries(a.config.Remote.QueryRetries, constants.RetryBackoff),
	), nil
}

// Journal returns the run journal, opening it on first use.
func (a *App) Journal() (*journal.Journal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.journal != nil {
		return a.journal, nil
	}
	j, err := journal.Open(a.config.JournalPath)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

// Shutdown releases resources held by the application.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.journal == nil {
		return nil
	}
	err := a.journal.Close()
	a.journal = nil
	return err
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		logger := NewLogger(config)
		a.logger = &logger
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithStore sets the remote store (useful for testing).
func WithStore(store records.Store) Option {
	return func(a *App) error {
		a.store = store
		return nil
	}
}

// WithMapping sets the field mapping.
func WithMapping(m *mapping.Mapping) Option {
	return func(a *App) error {
		a.mapping = m
		return nil
	}
}
