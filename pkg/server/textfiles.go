package server

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TextFiles holds cached text shown at points in a connection's life.
// Empty entries fall back to the built-in messages.
type TextFiles struct {
	mu      sync.RWMutex
	dir     string
	connect string // connect.txt: welcome screen
	motd    string // motd.txt: shown on entering play
	quit    string // quit.txt: shown when leaving from the menu
	full    string // full.txt: too many connections
	badSite string // badsite.txt: banned site
}

// trackedFiles are the names reloaded when the directory changes.
var trackedFiles = map[string]string{
	"connect.txt": "welcome screen",
	"motd.txt":    "message of the day",
	"quit.txt":    "quit message",
	"full.txt":    "too many connections",
	"badsite.txt": "banned site",
}

func (tf *TextFiles) get(p *string) string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return *p
}

func (tf *TextFiles) Connect() string { return tf.get(&tf.connect) }
func (tf *TextFiles) Motd() string    { return tf.get(&tf.motd) }
func (tf *TextFiles) Quit() string    { return tf.get(&tf.quit) }
func (tf *TextFiles) Full() string    { return tf.get(&tf.full) }
func (tf *TextFiles) BadSite() string { return tf.get(&tf.badSite) }

// loadFile reads a single text file, returning empty string on any error.
func loadFile(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// LoadTextFiles reads text files from dir. Missing files are left empty;
// an empty dir loads nothing.
func LoadTextFiles(dir string) *TextFiles {
	tf := &TextFiles{dir: dir}
	if dir != "" {
		tf.Reload()
	}
	return tf
}

// Reload rereads every file and returns how many were non-empty.
func (tf *TextFiles) Reload() int {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	tf.connect = loadFile(tf.dir, "connect.txt")
	tf.motd = loadFile(tf.dir, "motd.txt")
	tf.quit = loadFile(tf.dir, "quit.txt")
	tf.full = loadFile(tf.dir, "full.txt")
	tf.badSite = loadFile(tf.dir, "badsite.txt")

	count := 0
	for _, v := range []string{tf.connect, tf.motd, tf.quit, tf.full, tf.badSite} {
		if v != "" {
			count++
		}
	}
	log.Printf("Loaded %d text files from %s", count, tf.dir)
	return count
}

// Watch reloads the files whenever a tracked one changes, until ctx ends.
func (tf *TextFiles) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(tf.dir); err != nil {
		watcher.Close()
		return err
	}

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
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				desc, tracked := trackedFiles[filepath.Base(event.Name)]
				if !tracked {
					continue
				}
				log.Printf("Text file changed: %s (%s)", filepath.Base(event.Name), desc)
				tf.Reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Text file watcher error: %v", err)
			}
		}
	}()
	log.Printf("Watching text directory for changes: %s", tf.dir)
	return nil
}
