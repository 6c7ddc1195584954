// Package mapping implements the mapping command and its subcommands.
package mapping

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/cmd/output"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	pkgmapping "github.com/agentstation/recordsync/pkg/mapping"
)

// NewCommand creates the mapping command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mapping",
		GroupID: "management",
		Short:   "Inspect and validate the CSV to remote field mapping",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newValidateCommand(app))
	cmd.AddCommand(newShowCommand(app))
	cmd.AddCommand(newInitCommand())

	return cmd
}

func newValidateCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a mapping file against the mapping schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.Settings().MappingFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = constants.DefaultMappingFile
			}
			m, err := pkgmapping.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %d fields, %s\n", path, len(m.Fields), describeMatch(m))
			return nil
		},
	}
}

func newShowCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the mapping in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := app.Mapping()
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			w := cmd.OutOrStdout()
			if err := output.Write(w, format, m, output.MappingTable(m)); err != nil {
				return err
			}
			if format.IsTable() {
				fmt.Fprintf(w, "\n%s, %d backfill fields\n", describeMatch(m), len(m.BackfillFields()))
			}
			return nil
		},
	}
}

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the built-in mapping to a file for editing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := constants.DefaultMappingFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.NewValidationError("file", path, "already exists (use --force to overwrite)")
			}
			if err := os.WriteFile(path, pkgmapping.DefaultYAML(), constants.FilePermissions); err != nil {
				return errors.WrapIO("write", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func describeMatch(m *pkgmapping.Mapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "match key %q", m.Match.Primary.Column)
	if alt := m.Match.Alternate; alt != nil {
		fmt.Fprintf(&b, " or %q", alt.Column)
	}
	if m.Match.Normalize != "" {
		fmt.Fprintf(&b, " (%s)", m.Match.Normalize)
	}
	return b.String()
}
