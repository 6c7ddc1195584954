// Package man implements the hidden man command.
package man

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
)

// NewCommand creates the man command. With --dir it writes one page per
// command; otherwise the root page is printed.
func NewCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:    "man",
		Short:  "Generate man pages",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			header := &doc.GenManHeader{
				Title:   "RECORDSYNC",
				Section: "1",
				Source:  "recordsync",
				Manual:  "recordsync Manual",
			}
			root := cmd.Root()
			root.DisableAutoGenTag = true
			if dir == "" {
				return doc.GenMan(root, header, cmd.OutOrStdout())
			}
			if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
				return errors.WrapIO("create", dir, err)
			}
			if err := doc.GenManTree(root, header, dir); err != nil {
				return errors.WrapIO("write", dir, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "write a page per command into this directory")

	return cmd
}
