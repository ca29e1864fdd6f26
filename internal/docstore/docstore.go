// Package docstore implements the open-document table: absolute path ->
// {version, text, set of servers it has been opened in}.
package docstore

import (
	"github.com/rockerboo/kak-lsp-bridge/internal/rope"
)

// ServerID identifies a language-server instance; defined here rather than
// imported from session to avoid a cycle (session owns the Store).
type ServerID int

// Document is one open buffer.
type Document struct {
	Path    string
	Version int32
	Buffer  *rope.Buffer

	openedIn map[ServerID]struct{}
}

// OpenedIn reports whether a didOpen has been sent to s and not yet
// followed by a didClose.
func (d *Document) OpenedIn(s ServerID) bool {
	_, ok := d.openedIn[s]
	return ok
}

// MarkOpened records that a didOpen was sent to s.
func (d *Document) MarkOpened(s ServerID) {
	if d.openedIn == nil {
		d.openedIn = map[ServerID]struct{}{}
	}
	d.openedIn[s] = struct{}{}
}

// OpenedServers returns the set of servers currently considered to have
// this document open, in no particular order.
func (d *Document) OpenedServers() []ServerID {
	out := make([]ServerID, 0, len(d.openedIn))
	for s := range d.openedIn {
		out = append(out, s)
	}
	return out
}

// Store is the session-wide document table. Only the event-loop goroutine
// mutates it, so no internal locking is needed.
type Store struct {
	docs map[string]*Document
}

func New() *Store {
	return &Store{docs: map[string]*Document{}}
}

// Get returns the document at path, or nil if it isn't open.
func (s *Store) Get(path string) *Document {
	return s.docs[path]
}

// Open creates or replaces the document at path with version/text,
// matching a fresh textDocument/didOpen from the editor. Any previous
// opened_in_servers set is discarded: a didOpen always starts a new
// document lifecycle.
func (s *Store) Open(path string, version int32, text string) *Document {
	d := &Document{Path: path, Version: version, Buffer: rope.New(text)}
	s.docs[path] = d
	return d
}

// Change updates the document's version and text in place, per a
// textDocument/didChange. Returns nil if the document was never opened —
// callers should treat that as a protocol violation from the editor.
func (s *Store) Change(path string, version int32, text string) *Document {
	d := s.docs[path]
	if d == nil {
		return nil
	}
	d.Version = version
	d.Buffer = rope.New(text)
	return d
}

// Close removes the document entirely.
func (s *Store) Close(path string) {
	delete(s.docs, path)
}

// All returns every currently-open document, for iteration (e.g. to
// synthesize didOpen for a server that starts mid-session).
func (s *Store) All() map[string]*Document {
	return s.docs
}
