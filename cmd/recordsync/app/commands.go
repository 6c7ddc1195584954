package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/recordsync/cmd/recordsync/cmd/completion"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/ingest"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/man"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/mapping"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/report"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/sweep"
	"github.com/agentstation/recordsync/cmd/recordsync/cmd/version"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(ingest.NewCommand(a))
	rootCmd.AddCommand(sweep.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(report.NewCommand(a))
	rootCmd.AddCommand(mapping.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(version.NewCommand(a))
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(man.NewCommand())
}
