package watcher

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
)

func TestChangeTypeMapsFsnotifyOps(t *testing.T) {
	assert.Equal(t, lsp.FileChangeCreated, changeType(fsnotify.Create))
	assert.Equal(t, lsp.FileChangeDeleted, changeType(fsnotify.Remove))
	assert.Equal(t, lsp.FileChangeDeleted, changeType(fsnotify.Rename))
	assert.Equal(t, lsp.FileChangeChanged, changeType(fsnotify.Write))
	assert.Equal(t, lsp.FileChangeChanged, changeType(fsnotify.Chmod))
}

func newTestWatcher() *Watcher {
	return &Watcher{
		patterns: map[docstore.ServerID][]pattern{},
		Batches:  make(chan map[docstore.ServerID][]lsp.FileEvent, 4),
		Errors:   make(chan error, 4),
	}
}

func TestFlushMatchesRegisteredGlobAndRespectsWatchKind(t *testing.T) {
	w := newTestWatcher()
	w.patterns[1] = []pattern{{glob: "*.go", base: "/proj", kind: lsp.WatchChange}}

	w.raw = []fsnotify.Event{
		{Name: "/proj/main.go", Op: fsnotify.Write},
		{Name: "/proj/main.go", Op: fsnotify.Create}, // not allowed by WatchChange-only registration
		{Name: "/proj/README.md", Op: fsnotify.Write}, // doesn't match *.go
	}
	w.flush()

	require.Len(t, w.Batches, 1)
	batch := <-w.Batches
	require.Len(t, batch[1], 1)
	assert.Equal(t, lsp.FileChangeChanged, batch[1][0].Type)
}

func TestFlushWithNoMatchesEmitsNoBatch(t *testing.T) {
	w := newTestWatcher()
	w.patterns[1] = []pattern{{glob: "*.go", base: "/proj", kind: lsp.WatchChange}}
	w.raw = []fsnotify.Event{{Name: "/proj/README.md", Op: fsnotify.Write}}
	w.flush()
	assert.Len(t, w.Batches, 0)
}

func TestFlushOnEmptyRawIsNoop(t *testing.T) {
	w := newTestWatcher()
	w.flush()
	assert.Len(t, w.Batches, 0)
}
