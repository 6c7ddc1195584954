package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/agentstation/recordsync/pkg/constants"
)

// Config describes where run logs go and how they look.
type Config struct {
	// Level is one of trace, debug, info, warn, error or off.
	Level string
	// Format is json, console or auto. Auto picks console for a terminal.
	Format string
	// Output is stderr, stdout, discard or a file path. Files are appended to.
	Output string
	// TimeFormat is kitchen, rfc3339, unix or a Go layout.
	TimeFormat string
	NoColor    bool
	AddCaller  bool
	// Fields are attached to every event, e.g. the service name.
	Fields map[string]any
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, DEBUG and NO_COLOR from the
// environment.
func DefaultConfig() *Config {
	level := os.Getenv("LOG_LEVEL")
	if level == "" && os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	return &Config{
		Level:   level,
		Format:  os.Getenv("LOG_FORMAT"),
		Output:  "stderr",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// NewLoggerFromConfig builds a logger. A nil config means DefaultConfig.
// An unusable output file falls back to stderr.
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(cfg.writer()).Level(level).With().Timestamp()
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	for k, v := range cfg.Fields {
		ctx = addFieldToContext(ctx, k, v)
	}
	return ctx.Logger()
}

// Configure replaces the default logger.
func Configure(cfg *Config) {
	SetDefault(NewLoggerFromConfig(cfg))
}

func (c *Config) writer() io.Writer {
	out, terminal := openOutput(c.Output)

	format := strings.ToLower(c.Format)
	if format == "" || format == "auto" {
		format = "json"
		if terminal {
			format = "console"
		}
	}
	if format != "console" && format != "pretty" {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: parseTimeFormat(c.TimeFormat),
		NoColor:    c.NoColor,
	}
}

// openOutput resolves an output name. The flag reports whether the result is
// a terminal.
func openOutput(name string) (io.Writer, bool) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout)
	case "", "stderr":
		return os.Stderr, isTerminal(os.Stderr)
	case "discard", "none":
		return io.Discard, false
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions) // #nosec G304 - operator-supplied log path
	if err != nil {
		return os.Stderr, isTerminal(os.Stderr)
	}
	return f, false
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var levelAliases = map[string]zerolog.Level{
	"":         zerolog.InfoLevel,
	"warning":  zerolog.WarnLevel,
	"none":     zerolog.Disabled,
	"off":      zerolog.Disabled,
	"disabled": zerolog.Disabled,
}

// parseLevel maps a level name to zerolog. Unknown names mean info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if l, ok := levelAliases[level]; ok {
		return l
	}
	if l, err := zerolog.ParseLevel(level); err == nil && l != zerolog.NoLevel {
		return l
	}
	return zerolog.InfoLevel
}

var timeFormats = map[string]string{
	"":        time.Kitchen,
	"kitchen": time.Kitchen,
	"rfc3339": time.RFC3339,
	"unix":    "",
	"epoch":   "",
}

func parseTimeFormat(format string) string {
	if f, ok := timeFormats[strings.ToLower(format)]; ok {
		return f
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}
	return time.Kitchen
}
