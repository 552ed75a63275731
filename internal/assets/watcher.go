package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher evicts cache entries when their files change on disk, so a
// stimulus swapped between sessions is never served stale.
type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts a filesystem watcher over the stimulus tree. Safe to skip
// entirely; the library works without it.
func (l *Library) Watch() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create asset watcher: %w", err)
	}

	// Watch the root and every subdirectory; fsnotify is not recursive.
	err = filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fs.Add(path)
		}
		return nil
	})
	if err != nil {
		fs.Close()
		return fmt.Errorf("failed to watch asset tree: %w", err)
	}

	w := &watcher{fs: fs, done: make(chan struct{})}
	l.watcher = w

	go l.watchLoop(w)
	return nil
}

func (l *Library) watchLoop(w *watcher) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}
			rel, err := filepath.Rel(l.root, ev.Name)
			if err != nil {
				continue
			}
			l.evict(rel)
			l.log.Debug("asset changed on disk", zap.String("ref", rel), zap.String("op", ev.Op.String()))

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			l.log.Warn("asset watcher error", zap.Error(err))
		}
	}
}

func (w *watcher) close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
