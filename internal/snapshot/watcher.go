package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher flushes a Reader's cache whenever the snapshot file is replaced.
type Watcher struct {
	mu      sync.Mutex
	reader  *Reader
	target  string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	doneCh  chan struct{}
	running bool
}

// NewWatcher prepares a watcher over the reader's snapshot directory.
func NewWatcher(reader *Reader, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}
	return &Watcher{
		reader:  reader,
		target:  filepath.Clean(reader.Path()),
		watcher: fw,
		logger:  log,
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching; it does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// The directory is watched rather than the file: publishing renames a new
	// inode over the old one.
	if err := w.watcher.Add(filepath.Dir(w.target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.target), err)
	}
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	err := w.watcher.Close()
	if running {
		<-w.doneCh
	}
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.reader.Flush()
				if w.logger != nil {
					w.logger.Debug("snapshot changed, cache flushed", "path", event.Name, "op", event.Op.String())
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("snapshot watcher error", "error", err)
			}
		}
	}
}
