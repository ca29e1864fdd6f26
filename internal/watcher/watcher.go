// Package watcher turns server-registered didChangeWatchedFiles glob
// patterns into batched, debounced FileEvent notifications, backed by
// fsnotify rather than polling.
//
// A 1-second tick collects raw filesystem events before matching them
// against registered globs. fsnotify isn't recursive, so Register walks
// the watched root once and Run extends the watch set as new directories
// appear.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/pathutil"
)

// skippedDirs are never descended into, regardless of glob registrations:
// noise no server has a legitimate reason to watch.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

type pattern struct {
	glob string
	base string
	kind lsp.WatchKind
}

// Watcher multiplexes fsnotify events across every server's registered
// glob patterns, batching matches on a 1-second tick into per-server
// FileEvent slices.
type Watcher struct {
	fsw         *fsnotify.Watcher
	patterns    map[docstore.ServerID][]pattern
	watchedDirs map[string]bool
	excludePath string

	raw []fsnotify.Event

	Batches chan map[docstore.ServerID][]lsp.FileEvent
	Errors  chan error
}

// New creates a Watcher. excludePath is never reported even if it falls
// under a watched root — the broker's own log file, which would otherwise
// generate an endless stream of self-inflicted change events.
func New(excludePath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:         fsw,
		patterns:    map[docstore.ServerID][]pattern{},
		watchedDirs: map[string]bool{},
		excludePath: excludePath,
		Batches:     make(chan map[docstore.ServerID][]lsp.FileEvent, 16),
		Errors:      make(chan error, 16),
	}, nil
}

// Register installs sid's compiled glob patterns from a
// client/registerCapability batch and extends the underlying fsnotify
// watch to cover root. A later call for the same sid replaces its
// previous patterns outright — a server re-registering supersedes rather
// than layers.
func (w *Watcher) Register(sid docstore.ServerID, root string, regs []lsp.Registration) error {
	var pats []pattern
	for _, reg := range regs {
		opts, ok := reg.RegisterOptions.(map[string]any)
		if !ok {
			continue
		}
		watchers, _ := opts["watchers"].([]any)
		for _, raw := range watchers {
			wm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			globStr, _ := wm["globPattern"].(string)
			if globStr == "" {
				continue
			}
			if err := pathutil.CompileGlob(globStr); err != nil {
				logging.For("watcher").Warn().Err(err).Str("pattern", globStr).Msg("skipping unsupported glob")
				continue
			}
			kind := lsp.WatchCreate | lsp.WatchChange | lsp.WatchDelete
			if k, ok := wm["kind"].(float64); ok {
				kind = lsp.WatchKind(int(k))
			}
			pats = append(pats, pattern{glob: globStr, base: root, kind: kind})
		}
	}
	w.patterns[sid] = pats
	return w.walkAndWatch(root)
}

// Unregister drops sid's patterns entirely, e.g. once its transport dies;
// the directories it caused to be watched stay watched, since another
// server may still need them.
func (w *Watcher) Unregister(sid docstore.ServerID) {
	delete(w.patterns, sid)
}

func (w *Watcher) walkAndWatch(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if w.watchedDirs[path] {
			return nil
		}
		if err := w.fsw.Add(path); err == nil {
			w.watchedDirs[path] = true
		}
		return nil
	})
}

// Run drains fsnotify until ctx is canceled, extending the watch set when
// a new directory is created and flushing a debounced batch every second
// there's something pending. It owns the fsnotify.Watcher's lifetime and
// closes it on return.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name == w.excludePath {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.walkAndWatch(ev.Name)
				}
			}
			w.raw = append(w.raw, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	if len(w.raw) == 0 {
		return
	}
	events := w.raw
	w.raw = nil

	out := map[docstore.ServerID][]lsp.FileEvent{}
	for _, ev := range events {
		kind := changeType(ev.Op)
		if kind == 0 {
			continue
		}
		for sid, pats := range w.patterns {
			for _, p := range pats {
				if !p.kind.Allows(kind) {
					continue
				}
				if !pathutil.MatchGlob(p.glob, p.base, ev.Name) {
					continue
				}
				out[sid] = append(out[sid], lsp.FileEvent{URI: pathutil.ToURI(ev.Name), Type: kind})
				break
			}
		}
	}
	if len(out) > 0 {
		w.Batches <- out
	}
}

func changeType(op fsnotify.Op) lsp.FileChangeType {
	switch {
	case op&fsnotify.Create != 0:
		return lsp.FileChangeCreated
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return lsp.FileChangeDeleted
	case op&fsnotify.Write != 0, op&fsnotify.Chmod != 0:
		return lsp.FileChangeChanged
	}
	return 0
}
