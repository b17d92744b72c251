package advisory

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Watch loads the advisory file and reloads it whenever it changes on disk.
// The parent directory is watched rather than the file itself so that
// editors which replace the file (write-to-temp + rename) are still seen.
func (b *Book) Watch(path string) error {
	if err := b.LoadFile(path); err != nil {
		return err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create advisory watcher: %w", err)
	}
	if err := fsW.Add(filepath.Dir(path)); err != nil {
		fsW.Close()
		return fmt.Errorf("watch advisory dir: %w", err)
	}

	cancel := make(chan struct{})
	b.watchCancel = cancel
	go b.watchLoop(fsW, path, cancel)
	return nil
}

// Close stops the reload watcher, if one is running.
func (b *Book) Close() {
	if b.watchCancel != nil {
		close(b.watchCancel)
		b.watchCancel = nil
	}
}

// watchLoop processes fsnotify events with debouncing.
func (b *Book) watchLoop(fsW *fsnotify.Watcher, path string, cancel <-chan struct{}) {
	defer fsW.Close()

	var timer *time.Timer

	for {
		select {
		case <-cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fsW.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := b.LoadFile(path); err != nil {
					b.logger.Warn("advisory reload failed, keeping previous entries", zap.Error(err))
					return
				}
				b.logger.Info("advisory entries reloaded", zap.String("path", path))
			})

		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			b.logger.Warn("advisory watcher error", zap.Error(err))
		}
	}
}
