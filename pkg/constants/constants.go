// Package constants provides shared constants used throughout recordsync.
// This includes timeouts, limits, file permissions, and defaults that
// should be consistent between the CLI and the library packages.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to the remote service
	DefaultHTTPTimeout = 30 * time.Second

	// ShutdownTimeout bounds cleanup after the root command returns
	ShutdownTimeout = 5 * time.Second

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for retries
	MaxRetryBackoff = 30 * time.Second

	// TokenExpiryMargin is subtracted from token lifetimes so requests never race expiry
	TokenExpiryMargin = 60 * time.Second

	// WatchDebounce is how long a file must be quiet before watch mode ingests it
	WatchDebounce = 2 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like the run journal (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants define various limits and capacities
const (
	// AuthRetries is how many times the startup token request is attempted
	AuthRetries = 3

	// DefaultWorkers is the default number of in-flight row operations per file
	DefaultWorkers = 4

	// DefaultQueryLimit caps results of a single duplicate lookup query
	DefaultQueryLimit = 30

	// DefaultPageSize is the page size used when enumerating the whole remote dataset
	DefaultPageSize = 100

	// DefaultRateLimit is the default number of remote requests per second
	DefaultRateLimit = 10.0
)

// Default locations
const (
	// DefaultBaseURL is the remote API endpoint
	DefaultBaseURL = "https://api.podio.com"

	// TokenPath is the OAuth2 token endpoint relative to the base URL
	TokenPath = "/oauth/token"

	// DefaultInputDir is where CSV files are picked up from
	DefaultInputDir = "./paste_csv_here"

	// DefaultMappingFile is the field mapping file name
	DefaultMappingFile = "mapping.yaml"

	// DefaultJournalFile is the run journal file name under the state directory
	DefaultJournalFile = "journal.db"

	// StateDirName is the per-user state directory under $HOME
	StateDirName = ".recordsync"

	// CSVExtension is the extension of input files
	CSVExtension = ".csv"
)
