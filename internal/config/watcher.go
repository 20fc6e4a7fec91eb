package config

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a camera config directory and invokes OnChange with the
// camera id whose file changed, so the supervisor can restart just that
// worker. It does not re-parse or diff the file itself; re-reading the
// file is left to the onChange callback.
type Watcher struct {
	dir      string
	onChange func(cameraID string)
}

// NewWatcher builds a Watcher over dir. onChange is called for every write
// or create event, after a 100 ms pause, with the camera id derived from the file's base name
// (e.g. "register-3.yaml" -> "register-3").
func NewWatcher(dir string, onChange func(cameraID string)) *Watcher {
	return &Watcher{dir: dir, onChange: onChange}
}

// Run blocks, watching until ctx is cancelled. Falls back to a 60s polling
// loop if fsnotify can't watch the directory at all (e.g. unsupported
// filesystem).
func (w *Watcher) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("config watcher: fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(w.dir); err != nil {
		log.Printf("config watcher: failed to watch %s (%v), falling back to polling", w.dir, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					time.Sleep(100 * time.Millisecond)
					w.notify(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher error: %v", err)
			}
		}
	}

	// Polling fallback: can't tell which file changed without a watcher, so
	// a full directory reload is left to the caller via an empty camera id.
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.onChange("")
		}
	}
}

func (w *Watcher) notify(path string) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	w.onChange(name)
}
