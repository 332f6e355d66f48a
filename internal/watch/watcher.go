// Package watch turns filesystem changes on the reloadable config paths
// into ReloadConfig commands on the simulation queue, so a hot edit and a
// client-issued reload take the exact same path into the world (§4.2,
// §6.4).
package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/talgya/shadow-scale/internal/command"
)

// debounceWindow suppresses the burst of events most editors emit for a
// single save.
const debounceWindow = 500 * time.Millisecond

// Target maps one watched file to the config it reloads.
type Target struct {
	Path string
	Kind command.ReloadKind
}

// Watcher owns the fsnotify instance and its pump goroutine.
type Watcher struct {
	queue   *command.Queue
	fsw     *fsnotify.Watcher
	targets map[string]command.ReloadKind

	mu       sync.Mutex
	lastSeen map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a watcher over the given targets. Directories are watched
// rather than files so atomic-rename saves still trigger.
func New(queue *command.Queue, targets []Target) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		queue:    queue,
		fsw:      fsw,
		targets:  make(map[string]command.ReloadKind, len(targets)),
		lastSeen: make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, t := range targets {
		abs, err := filepath.Abs(t.Path)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.targets[abs] = t.Kind
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			slog.Warn("config watch failed, hot reload disabled for directory", "dir", dir, "error", err)
		}
	}
	return w, nil
}

// Start launches the pump goroutine.
func (w *Watcher) Start() {
	go w.pump()
}

// Stop sends the shutdown sentinel and joins the pump (§5 cancellation).
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
	w.fsw.Close()
}

func (w *Watcher) pump() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	kind, watched := w.targets[abs]
	if !watched {
		return
	}

	w.mu.Lock()
	now := time.Now()
	last := w.lastSeen[abs]
	w.lastSeen[abs] = now
	w.mu.Unlock()
	if now.Sub(last) < debounceWindow {
		return
	}

	slog.Info("config file changed, queueing reload", "path", abs, "kind", kind)
	w.queue.Push(command.ReloadConfig{Kind: kind, Path: abs})
}
