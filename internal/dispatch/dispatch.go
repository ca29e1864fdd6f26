// Package dispatch fans a single editor request out to one or more
// language servers, correlates their responses (or errors) back into one
// batch, and implements the per-error-class handling rules: a stale
// ContentModified (or the code-action equivalent) is dropped silently, a
// MethodNotFound is reworded rather than surfaced raw, and every other
// error is surfaced to the editor unless the request came from a hook.
//
// A single editor request fans out to every matching server instance,
// so requests are tracked per-batch (one editor request, many JSON-RPC
// ids) rather than one at a time.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/pathutil"
	"github.com/rockerboo/kak-lsp-bridge/internal/transport"
)

// Mode selects how a batch's per-server results are meant to be combined
// once every target has answered; the dispatcher itself always waits for
// every target either way; Mode only annotates BatchResult for the
// feature hook that consumes it.
type Mode int

const (
	// All expects every server's answer to matter (e.g. diagnostics-style
	// fan-out, or a formatting request with one authoritative source).
	All Mode = iota
	// Each treats every server's answer independently (e.g. merging
	// completion items or code actions from every capable server).
	Each
)

// Transports is the subset of the server table the dispatcher needs.
type Transports interface {
	Get(id docstore.ServerID) *transport.Transport
}

// notificationMethods are the editor-issued methods that are themselves
// LSP notifications rather than requests: no server ever replies to them,
// so routing one through Dispatch would wait forever on a response that
// never arrives. This is deliberately narrower than versiongate.Exempt,
// which also exempts completionItem/resolve — a real request that does
// expect a reply and must still go through Dispatch.
var notificationMethods = map[string]bool{
	"textDocument/didOpen":             true,
	"textDocument/didChange":           true,
	"textDocument/didClose":            true,
	"textDocument/didSave":             true,
	"workspace/didChangeConfiguration": true,
	"exit":                             true,
	"$/cancelRequest":                  true,
}

// IsNotification reports whether method is one of the fire-and-forget
// notifications above rather than a correlated request.
func IsNotification(method string) bool {
	return notificationMethods[method]
}

// BatchResult is handed to a batch's completion callback once every
// target server has answered (successfully, with a surfaced error, or
// silently dropped).
type BatchResult struct {
	Method  string
	Mode    Mode
	Results map[docstore.ServerID]json.RawMessage
	Errors  map[docstore.ServerID]error
}

type waitEntry struct {
	batchID  uint64
	serverID docstore.ServerID
}

type batch struct {
	method     string
	mode       Mode
	hook       bool
	want       int
	got        int
	canceled   bool
	results    map[docstore.ServerID]json.RawMessage
	failed     map[docstore.ServerID]error
	onComplete func(*BatchResult)
}

// Dispatcher owns the token allocator and the batch/waitlist correlation
// tables; it is driven entirely from the single event-loop goroutine, so
// none of its state needs locking.
type Dispatcher struct {
	transports Transports
	nextToken  uint64
	waitlist   map[uint64]waitEntry
	batches    map[uint64]*batch
	nextBatch  uint64
}

func New(transports Transports) *Dispatcher {
	return &Dispatcher{
		transports: transports,
		waitlist:   map[uint64]waitEntry{},
		batches:    map[uint64]*batch{},
	}
}

// Dispatch issues method against every server in targets, building each
// server's params via paramsFor, and invokes onComplete once every target
// has answered (or been dropped/errored). It returns a batch id that can
// be passed to Cancel. hook marks the originating request as a hook
// invocation, which suppresses surfacing non-silent errors back to the
// editor (a hook firing has no user waiting on an error message).
func (d *Dispatcher) Dispatch(ctx context.Context, targets []docstore.ServerID, method string, mode Mode, hook bool, paramsFor func(docstore.ServerID) any, onComplete func(*BatchResult)) uint64 {
	d.nextBatch++
	batchID := d.nextBatch

	b := &batch{
		method:     method,
		mode:       mode,
		hook:       hook,
		want:       len(targets),
		results:    map[docstore.ServerID]json.RawMessage{},
		failed:     map[docstore.ServerID]error{},
		onComplete: onComplete,
	}
	d.batches[batchID] = b

	if len(targets) == 0 {
		delete(d.batches, batchID)
		if onComplete != nil {
			onComplete(&BatchResult{Method: method, Mode: mode, Results: b.results, Errors: b.failed})
		}
		return batchID
	}

	for _, sid := range targets {
		t := d.transports.Get(sid)
		if t == nil {
			b.failed[sid] = fmt.Errorf("server %d has no live transport", sid)
			b.got++
			continue
		}
		d.nextToken++
		token := d.nextToken
		d.waitlist[token] = waitEntry{batchID: batchID, serverID: sid}
		t.CallAsync(ctx, token, method, paramsFor(sid))
	}

	d.maybeComplete(batchID)
	return batchID
}

// Notify sends method as a fire-and-forget notification to every target,
// with no batch bookkeeping (there is no response to correlate).
func (d *Dispatcher) Notify(ctx context.Context, targets []docstore.ServerID, method string, paramsFor func(docstore.ServerID) any) {
	for _, sid := range targets {
		if t := d.transports.Get(sid); t != nil {
			if err := t.Notify(ctx, method, paramsFor(sid)); err != nil {
				logging.For("dispatch").Debug().Err(err).Str("method", method).Msg("notify failed")
			}
		}
	}
}

// EnsureDidOpen sends a synthetic textDocument/didOpen to sid if doc isn't
// already marked open there, so a server that joined mid-session (or a
// buffer that was only ever implicitly tracked) sees the document before
// any feature request about it.
func (d *Dispatcher) EnsureDidOpen(ctx context.Context, doc *docstore.Document, sid docstore.ServerID, languageID string) {
	if doc.OpenedIn(sid) {
		return
	}
	t := d.transports.Get(sid)
	if t == nil {
		return
	}
	_ = t.Notify(ctx, "textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        pathutil.ToURI(doc.Path),
			LanguageID: languageID,
			Version:    doc.Version,
			Text:       doc.Buffer.Text(),
		},
	})
	doc.MarkOpened(sid)
}

// Cancel marks a batch canceled; any outcomes that arrive for it afterward
// are discarded rather than completing it twice.
func (d *Dispatcher) Cancel(batchID uint64) {
	if b, ok := d.batches[batchID]; ok {
		b.canceled = true
		delete(d.batches, batchID)
	}
}

// HandleOutcome applies a transport.Outcome to its waiting batch entry,
// classifying any error and completing the batch once every target has
// answered.
func (d *Dispatcher) HandleOutcome(o transport.Outcome) {
	entry, ok := d.waitlist[o.Token]
	if !ok {
		return // unknown or already-canceled token
	}
	delete(d.waitlist, o.Token)

	b := d.batches[entry.batchID]
	if b == nil || b.canceled {
		return
	}

	if o.Err != nil {
		switch classifyError(o.Err) {
		case errSilentDrop:
			// ContentModified (or a code-action equivalent): the server is
			// telling us our snapshot is stale; drop this server's answer
			// without surfacing anything beyond a debug log line.
			logging.For("dispatch").Debug().Err(o.Err).Str("method", b.method).Msg("dropping stale response")
		case errMethodNotSupported:
			b.failed[entry.serverID] = fmt.Errorf("%s: method not supported by this server", b.method)
		default:
			if !b.hook {
				b.failed[entry.serverID] = o.Err
			}
		}
	} else {
		b.results[entry.serverID] = o.Result
	}

	b.got++
	d.maybeComplete(entry.batchID)
}

func (d *Dispatcher) maybeComplete(batchID uint64) {
	b := d.batches[batchID]
	if b == nil || b.got < b.want {
		return
	}
	delete(d.batches, batchID)
	if b.onComplete != nil {
		b.onComplete(&BatchResult{Method: b.method, Mode: b.mode, Results: b.results, Errors: b.failed})
	}
}

type errClass int

const (
	errSurface errClass = iota
	errSilentDrop
	errMethodNotSupported
)

// classifyError inspects a response error for the two well-known LSP error
// codes the dispatcher treats specially: ContentModified (a server
// declining to answer against a stale snapshot, which self-resolves on
// the next request) and MethodNotFound (the server genuinely doesn't
// implement the capability, which gets a clearer message instead of the
// server's own wording).
func classifyError(err error) errClass {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case lsp.ErrCodeContentModified:
			return errSilentDrop
		case lsp.ErrCodeMethodNotFound:
			return errMethodNotSupported
		}
	}
	return errSurface
}
