package archive

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher ingests spooled change files into a Log. A spool file is named
// "<doc key>#<anything>.change"; producers write the record then rename it
// into the spool directory so the watcher never sees partial content.
type Watcher struct {
	log    *Log
	fsw    *fsnotify.Watcher
	remove bool
	done   chan struct{}
}

// WatchSpool ingests every .change file already in dir, then keeps ingesting
// new ones as they appear. When remove is true, ingested files are deleted.
func WatchSpool(l *Log, dir string, remove bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{log: l, fsw: fsw, remove: remove, done: make(chan struct{})}

	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.ingest(filepath.Join(dir, e.Name()))
		}
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				w.ingest(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("archive watcher: %v", err)
		}
	}
}

func (w *Watcher) ingest(path string) {
	key, ok := spoolKey(path)
	if !ok {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Printf("archive watcher: read %s: %v", path, err)
		return
	}
	if _, err := w.log.Append(key, b); err != nil {
		log.Printf("archive watcher: append %s: %v", path, err)
		return
	}
	if w.remove {
		_ = os.Remove(path) // best-effort cleanup
	}
}

// spoolKey extracts the document key from a spool file name.
func spoolKey(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".change") {
		return "", false
	}
	key, _, ok := strings.Cut(strings.TrimSuffix(base, ".change"), "#")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
