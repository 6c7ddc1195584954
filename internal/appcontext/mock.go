package appcontext

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/detector"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
)

// Mock provides a mock implementation of Interface for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
type Mock struct {
	StoreFunc        func(context.Context) (records.Store, error)
	DetectorFunc     func(context.Context) (*detector.Detector, error)
	MappingFunc      func() (*mapping.Mapping, error)
	JournalFunc      func() (*journal.Journal, error)
	SettingsFunc     func() Settings
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

var _ Interface = (*Mock)(nil)

// Store returns a store using the mock function or an error.
func (m *Mock) Store(ctx context.Context) (records.Store, error) {
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx)
	}
	return nil, errors.NewConfigError("mock", "no store configured", nil)
}

// Detector returns a detector using the mock function, or one built over Store
// and Mapping.
func (m *Mock) Detector(ctx context.Context) (*detector.Detector, error) {
	if m.DetectorFunc != nil {
		return m.DetectorFunc(ctx)
	}
	store, err := m.Store(ctx)
	if err != nil {
		return nil, err
	}
	mp, err := m.Mapping()
	if err != nil {
		return nil, err
	}
	resolver, err := mp.Resolver()
	if err != nil {
		return nil, err
	}
	return detector.New(store, resolver, detector.WithQueryLimit(mp.QueryLimit())), nil
}

// Mapping returns the mock mapping or the built-in default.
func (m *Mock) Mapping() (*mapping.Mapping, error) {
	if m.MappingFunc != nil {
		return m.MappingFunc()
	}
	return mapping.Default(), nil
}

// Journal returns the mock journal or an error.
func (m *Mock) Journal() (*journal.Journal, error) {
	if m.JournalFunc != nil {
		return m.JournalFunc()
	}
	return nil, errors.NewConfigError("mock", "no journal configured", nil)
}

// Settings returns the mock settings or zero settings.
func (m *Mock) Settings() Settings {
	if m.SettingsFunc != nil {
		return m.SettingsFunc()
	}
	return Settings{}
}

// Logger returns the mock logger or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	return logging.NewNopLogger()
}

// OutputFormat returns the mock format or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns the mock version or "test".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "test"
}

// Commit returns the mock commit or "test".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "test"
}

// Date returns the mock date or "test".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "test"
}

// BuiltBy returns the mock builder or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}
