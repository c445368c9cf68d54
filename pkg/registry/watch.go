package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of writes to the mapping file.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the session mapping whenever the mapping file is rewritten,
// for instance by another process sharing the settings directory. It blocks
// until ctx is done. onReload, when non-nil, runs after every reload.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration, onReload func()) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic replaces swap the file's inode.
	if err := watcher.Add(r.settingsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.settingsDir, err)
	}

	target := filepath.Clean(r.MappingPath())
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			if err := r.Reload(); err != nil {
				r.logger.Warnf("Session mapping reload failed: %v", err)
				return
			}
			r.logger.Debugf("Reloaded session mapping after external change")
			if onReload != nil {
				onReload()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warnf("Session mapping watcher error: %v", err)
		}
	}
}
