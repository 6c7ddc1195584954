// Package completion implements the completion command.
package completion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
)

const (
	shellBash = "bash"
	shellZsh  = "zsh"
	shellFish = "fish"
)

// NewCommand creates the completion command. Scripts go to stdout unless
// --install or --uninstall is given.
func NewCommand() *cobra.Command {
	var install, uninstall bool

	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `To load completions for the current session:

  $ source <(recordsync completion bash)
  $ recordsync completion fish | source

To install them for your user:

  $ recordsync completion --install zsh

To remove an installed script:

  $ recordsync completion --uninstall zsh
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{shellBash, shellZsh, shellFish},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			switch {
			case install:
				home, err := os.UserHomeDir()
				if err != nil {
					return errors.WrapIO("resolve", "home directory", err)
				}
				path := Path(home, shell)
				if err := Install(cmd.Root(), shell, path); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s completions to %s\n", shell, path)
				return nil
			case uninstall:
				home, err := os.UserHomeDir()
				if err != nil {
					return errors.WrapIO("resolve", "home directory", err)
				}
				path := Path(home, shell)
				removed, err := Uninstall(path)
				if err != nil {
					return err
				}
				if removed {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No %s completions installed at %s\n", shell, path)
				}
				return nil
			default:
				return Generate(cmd.Root(), shell, cmd.OutOrStdout())
			}
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "write the script to the per-user completion directory")
	cmd.Flags().BoolVar(&uninstall, "uninstall", false, "remove a previously installed script")
	cmd.MarkFlagsMutuallyExclusive("install", "uninstall")

	return cmd
}

// Generate writes the completion script for shell.
func Generate(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case shellBash:
		return root.GenBashCompletionV2(w, true)
	case shellZsh:
		return root.GenZshCompletion(w)
	case shellFish:
		return root.GenFishCompletion(w, true)
	default:
		return errors.NewValidationError("shell", shell, "must be bash, zsh or fish")
	}
}

// Path is the per-user install location for shell under home.
func Path(home, shell string) string {
	switch shell {
	case shellBash:
		return filepath.Join(home, ".local", "share", "bash-completion", "completions", "recordsync")
	case shellZsh:
		return filepath.Join(home, ".zsh", "completions", "_recordsync")
	default:
		return filepath.Join(home, ".config", "fish", "completions", "recordsync.fish")
	}
}

// Install writes the script for shell to path, creating parent directories.
func Install(root *cobra.Command, shell, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	f, err := os.Create(path) // #nosec G304 - path is derived from the home directory
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := Generate(root, shell, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// Uninstall removes the script at path. It reports false when nothing was
// installed.
func Uninstall(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.WrapIO("remove", path, err)
	}
}
