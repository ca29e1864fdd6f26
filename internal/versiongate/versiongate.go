// Package versiongate implements the document-version gate: a request
// naming a version older than the document's current one dispatches
// immediately (the editor is describing state the broker has already
// moved past, which is still answerable), while a request naming a
// version the broker hasn't seen yet parks until a matching or later
// textDocument/didChange arrives.
//
// Parked continuations are kept per-buffer in arrival order, since a
// real editor can queue several requests against versions still in
// flight and they must release in the order they were admitted.
package versiongate

// exempt lists the methods that bypass version gating entirely: document
// lifecycle notifications (which are what advance the version in the
// first place), shutdown, cancellation, and the one request method that's
// defined to resolve against whatever item was previously returned rather
// than current buffer state.
var exempt = map[string]bool{
	"textDocument/didOpen":             true,
	"textDocument/didChange":           true,
	"textDocument/didClose":            true,
	"textDocument/didSave":             true,
	"workspace/didChangeConfiguration": true,
	"exit":                             true,
	"$/cancelRequest":                  true,
	"completionItem/resolve":           true,
}

// Exempt reports whether method should skip the gate and dispatch
// unconditionally.
func Exempt(method string) bool {
	return exempt[method]
}

type parkedRequest struct {
	version int32
	fn      func()
}

// Gate tracks, per buffer path, the continuations waiting on a version
// that hasn't arrived yet.
type Gate struct {
	parked map[string][]parkedRequest
}

func New() *Gate {
	return &Gate{parked: map[string][]parkedRequest{}}
}

// Admit runs fn immediately if requested <= current (on-time or stale),
// and parks it otherwise, to be run once a didChange brings the buffer's
// version up to at least requested.
func (g *Gate) Admit(path string, requested, current int32, fn func()) {
	if requested <= current {
		fn()
		return
	}
	g.parked[path] = append(g.parked[path], parkedRequest{version: requested, fn: fn})
}

// OnDidChange releases every request parked on path whose requested
// version is now satisfied by newVersion, in arrival order, leaving any
// still-future requests parked behind it.
func (g *Gate) OnDidChange(path string, newVersion int32) {
	pending := g.parked[path]
	if len(pending) == 0 {
		return
	}
	var remaining []parkedRequest
	for _, p := range pending {
		if p.version <= newVersion {
			p.fn()
		} else {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		delete(g.parked, path)
	} else {
		g.parked[path] = remaining
	}
}

// Drop discards every request parked on path without running them, for a
// buffer that closed while requests were still waiting on a future
// version.
func (g *Gate) Drop(path string) {
	delete(g.parked, path)
}

// Pending reports how many requests are currently parked on path.
func (g *Gate) Pending(path string) int {
	return len(g.parked[path])
}
