package source

import (
	"context"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
)

// BatchFunc handles a batch of files that settled in a watched directory.
type BatchFunc func(ctx context.Context, files []string)

// Watch calls fn with the CSV files created or written in dir once no event
// has touched them for the debounce period. Batches are delivered one at a
// time, in lexical order, and files removed before they settle are dropped.
// Watch returns nil when ctx is cancelled.
func (d Directory) Watch(ctx context.Context, debounce time.Duration, fn BatchFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapIO("watch", d.Path, err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(d.Path); err != nil {
		return errors.WrapIO("watch", d.Path, err)
	}

	logger := logging.FromContext(ctx)
	logger.Info().Str("dir", d.Path).Dur("debounce", debounce).Msg("Watching for new files")

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !IsCSV(ev.Name) || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("File event")
			pending[ev.Name] = struct{}{}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Watcher error")

		case <-timer.C:
			files := settled(pending)
			clear(pending)
			if len(files) > 0 {
				fn(ctx, files)
			}
		}
	}
}

func settled(pending map[string]struct{}) []string {
	files := slices.Sorted(maps.Keys(pending))
	return slices.DeleteFunc(files, func(path string) bool {
		info, err := os.Stat(path)
		return err != nil || !info.Mode().IsRegular()
	})
}
