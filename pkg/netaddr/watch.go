package netaddr

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchDenyList reloads list whenever path is written or recreated. The
// parent directory is watched so editors that replace the file are seen.
// The watcher stops when ctx is cancelled.
func WatchDenyList(ctx context.Context, path string, list *DenyList) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("netaddr: deny watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("netaddr: watch %s: %w", filepath.Dir(path), err)
	}

	name := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if err := list.Load(path); err != nil {
					log.Printf("Deny list reload failed: %v", err)
					continue
				}
				log.Printf("Deny list reloaded from %s: %d entries", path, list.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Deny list watcher error: %v", err)
			}
		}
	}()
	return nil
}
