package man

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "recordsync", Short: "test root"}
	root.AddCommand(&cobra.Command{Use: "ingest", Short: "ingest files", Run: func(*cobra.Command, []string) {}})
	root.AddCommand(NewCommand())
	return root
}

func TestManToStdout(t *testing.T) {
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"man"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "RECORDSYNC")
}

func TestManTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "man1")
	root := newRoot()
	root.SetArgs([]string{"man", "--dir", dir})
	require.NoError(t, root.Execute())

	_, err := os.Stat(filepath.Join(dir, "recordsync-ingest.1"))
	assert.NoError(t, err)
}
