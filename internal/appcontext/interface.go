// Package appcontext defines the application context that every command
// receives. Commands depend on this interface rather than on the concrete App,
// so they can be exercised against a Mock or a fake remote service.
package appcontext

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/detector"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
)

// Settings are the run parameters commands read from configuration.
type Settings struct {
	InputDir    string
	MappingFile string
	Workers     int
}

// Interface defines the dependencies commands need.
type Interface interface {
	// Store returns the remote record store, authenticating on first use.
	// Authentication failure is returned and is fatal for the command.
	Store(ctx context.Context) (records.Store, error)

	// Detector returns the duplicate detector bound to Store and the mapping.
	Detector(ctx context.Context) (*detector.Detector, error)

	// Mapping returns the loaded field mapping.
	Mapping() (*mapping.Mapping, error)

	// Journal returns the run journal, opening it on first use.
	Journal() (*journal.Journal, error)

	// Settings returns the configured run parameters.
	Settings() Settings

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table, etc).
	OutputFormat() string

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
