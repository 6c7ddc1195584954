package source

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDeliversSettledCSVFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		batches [][]string
	)
	got := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Directory{Path: dir}.Watch(ctx, 50*time.Millisecond, func(_ context.Context, files []string) {
			mu.Lock()
			batches = append(batches, files)
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "b.csv", "Address\n1 Main St\n")
	writeFile(t, dir, "a.csv", "Address\n2 Main St\n")
	writeFile(t, dir, "notes.txt", "ignored")

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	var all []string
	for _, b := range batches {
		all = append(all, b...)
	}
	assert.Contains(t, all, filepath.Join(dir, "a.csv"))
	assert.Contains(t, all, filepath.Join(dir, "b.csv"))
	assert.NotContains(t, all, filepath.Join(dir, "notes.txt"))
}

func TestWatchMissingDir(t *testing.T) {
	err := Directory{Path: filepath.Join(t.TempDir(), "missing")}.Watch(context.Background(), time.Millisecond, func(context.Context, []string) {})
	assert.Error(t, err)
}

func TestSettledDropsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	kept := writeFile(t, dir, "kept.csv", "A\n")
	pending := map[string]struct{}{
		kept:                           {},
		filepath.Join(dir, "gone.csv"): {},
	}
	assert.Equal(t, []string{kept}, settled(pending))
}
