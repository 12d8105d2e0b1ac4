package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Snapshot from path whenever the file changes on
// disk, handing each new Snapshot to onReload. It never blocks the
// caller: reload failures are reported through onReload's error and the
// previous snapshot keeps being served by whoever holds it.
type Watcher struct {
	fsw *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching path for changes, invoking onReload with every
// successfully reloaded Snapshot (or a non-nil error on a failed
// reload). Call Close to stop watching.
func Watch(path string, onReload func(Snapshot, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop(path, onReload)
	return w, nil
}

func (w *Watcher) loop(path string, onReload func(Snapshot, error)) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			snap, err := Load(path)
			onReload(snap, err)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
