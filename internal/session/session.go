// Package session wires every other package into the broker's single
// cooperative event loop: one goroutine owns all session state (documents,
// server table, routing, pending/parked requests) and communicates with
// its helper goroutines — per-server transports, the editor FIFO channel,
// the file watcher — only over channels, selected fairly via
// reflect.Select so no one source can starve another.
//
// The select set is rebuilt every iteration from the current server
// table, since servers are spawned and torn down over the session's
// lifetime, plus a fixed set of sources: the editor channel, the file
// watcher's batch and error channels, the idle timer, and the cancellation
// of Run's context.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/kak-lsp-bridge/internal/config"
	"github.com/rockerboo/kak-lsp-bridge/internal/dispatch"
	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/editorconn"
	"github.com/rockerboo/kak-lsp-bridge/internal/fifo"
	"github.com/rockerboo/kak-lsp-bridge/internal/initializer"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/lspcaps"
	"github.com/rockerboo/kak-lsp-bridge/internal/parking"
	"github.com/rockerboo/kak-lsp-bridge/internal/pathutil"
	"github.com/rockerboo/kak-lsp-bridge/internal/position"
	"github.com/rockerboo/kak-lsp-bridge/internal/rope"
	"github.com/rockerboo/kak-lsp-bridge/internal/router"
	"github.com/rockerboo/kak-lsp-bridge/internal/serverreq"
	"github.com/rockerboo/kak-lsp-bridge/internal/transport"
	"github.com/rockerboo/kak-lsp-bridge/internal/versiongate"
	"github.com/rockerboo/kak-lsp-bridge/internal/watcher"
)

// IdleTimeout is how long the loop waits with nothing to do before Run
// returns an idle-timeout error (after sending `exit` to every server): a
// broker with no editor attached and no server traffic has no reason to
// keep running.
const IdleTimeout = 30 * time.Minute

// Session owns every piece of mutable broker state. Only the goroutine
// running Run ever touches it, so none of its fields need locking.
type Session struct {
	cfg *config.File

	docs       *docstore.Store
	transports map[docstore.ServerID]*transport.Transport
	nextServer docstore.ServerID

	router     *router.Router
	caps       *initializer.Table
	gate       *versiongate.Gate
	dispatcher *dispatch.Dispatcher
	serverReq  *serverreq.Handler
	watch      *watcher.Watcher

	initParking *parking.Queue[docstore.ServerID]

	editor *editorconn.Channel

	lastClient string
	debug      bool

	log zerolog.Logger
}

// New constructs a Session wired to cfg and the already-open editor
// channel. The file watcher is always created here; it watches nothing
// until a server registers didChangeWatchedFiles patterns.
func New(cfg *config.File, editor *editorconn.Channel, logPath string) (*Session, error) {
	s := &Session{
		cfg:         cfg,
		docs:        docstore.New(),
		transports:  map[docstore.ServerID]*transport.Transport{},
		caps:        initializer.NewTable(),
		gate:        versiongate.New(),
		initParking: parking.NewQueue[docstore.ServerID](),
		editor:      editor,
		log:         logging.For("session"),
	}
	s.dispatcher = dispatch.New(s)
	s.router = router.New(s.spawnServer, s.serverSupportsWorkspaceFolders, s.addWorkspaceFolder)
	s.serverReq = serverreq.New(serverreq.Hooks{
		ApplyEdit:        s.applyWorkspaceEdit,
		RegisterWatchers: s.onRegisterWatchers,
		SettingsFor:      s.settingsFor,
		ClearRefreshed:   s.clearRefreshed,
	})

	w, err := watcher.New(logPath)
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	s.watch = w

	return s, nil
}

// Get satisfies dispatch.Transports.
func (s *Session) Get(id docstore.ServerID) *transport.Transport {
	return s.transports[id]
}

func (s *Session) serverSupportsWorkspaceFolders(id docstore.ServerID) bool {
	return lspcaps.Supports(s.caps.Capabilities(id), lspcaps.WorkspaceFolders)
}

func (s *Session) addWorkspaceFolder(id docstore.ServerID, root string) {
	t := s.transports[id]
	if t == nil {
		return
	}
	_ = t.Notify(context.Background(), "workspace/didChangeWorkspaceFolders", map[string]any{
		"event": map[string]any{
			"added":   []lsp.WorkspaceFolder{{URI: pathutil.ToURI(root), Name: root}},
			"removed": []lsp.WorkspaceFolder{},
		},
	})
}

func (s *Session) onRegisterWatchers(id docstore.ServerID, regs []lsp.Registration) {
	// Re-registration always targets whatever root the server was spawned
	// with; a server with multiple workspace folders only gets the
	// primary one watched, a known simplification over watching every
	// folder it has been folded into.
	name, root := s.instanceNameAndRoot(id)
	if root == "" {
		return
	}
	if err := s.watch.Register(id, root, regs); err != nil {
		s.log.Warn().Err(err).Str("server", name).Msg("failed to register file watch")
	}
}

func (s *Session) settingsFor(id docstore.ServerID, section string) any {
	name, _ := s.instanceNameAndRoot(id)
	sc, ok := s.cfg.LanguageServers[name]
	if !ok {
		return map[string]any{}
	}
	if section == "" {
		return sc.Settings
	}
	if v, ok := sc.Settings[section]; ok {
		return v
	}
	return map[string]any{}
}

// instanceNameAndRoot is a small linear scan over the transport table;
// the session is expected to hold at most a handful of server instances,
// so this isn't worth a reverse index.
func (s *Session) instanceNameAndRoot(id docstore.ServerID) (string, string) {
	t := s.transports[id]
	if t == nil {
		return "", ""
	}
	return t.Name, t.Dir()
}

func (s *Session) spawnServer(name string, cfg config.ServerConfig, root string, initOptions map[string]any) (docstore.ServerID, error) {
	s.nextServer++
	id := s.nextServer

	env := make([]string, 0, len(cfg.Envs))
	for k, v := range cfg.Envs {
		env = append(env, k+"="+v)
	}

	t, err := transport.Spawn(id, name, transport.Spec{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     env,
		Dir:     root,
	})
	if err != nil {
		return 0, err
	}
	s.transports[id] = t

	params := initializer.BuildParams(root, nil, config.DeepMerge(copyMap(cfg.InitOptions), initOptions))
	s.dispatcher.Dispatch(context.Background(), []docstore.ServerID{id}, "initialize", dispatch.All, false,
		func(docstore.ServerID) any { return params },
		func(res *dispatch.BatchResult) {
			s.onInitializeComplete(id, res)
		},
	)

	return id, nil
}

func (s *Session) onInitializeComplete(id docstore.ServerID, res *dispatch.BatchResult) {
	t := s.transports[id]
	if t == nil {
		return
	}
	if err := res.Errors[id]; err != nil {
		s.log.Warn().Err(err).Str("server", t.Name).Msg("initialize failed")
		delete(s.transports, id)
		return
	}
	raw, ok := res.Results[id]
	if !ok {
		return
	}
	var result lsp.InitializeResult
	if err := unmarshalInto(raw, &result); err != nil {
		s.log.Warn().Err(err).Str("server", t.Name).Msg("malformed initialize result")
		return
	}
	s.caps.Negotiate(id, &result)
	_ = t.Notify(context.Background(), "initialized", lsp.InitializedParams{})
	s.initParking.Release(id)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Run drives the event loop until the editor channel closes, a
// kakoune/exit request arrives, or ctx is canceled. It always sends
// `exit` to every live server transport before returning.
func (s *Session) Run(ctx context.Context) error {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go s.watch.Run(watchCtx)

	idle := time.NewTimer(IdleTimeout)
	defer idle.Stop()

	for {
		cases, handlers := s.buildSelectCases(idle.C)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
		handlers = append(handlers, func(reflect.Value, bool) error { return ctx.Err() })
		chosen, recv, recvOK := reflect.Select(cases)

		idle.Stop()
		idle.Reset(IdleTimeout)

		if !recvOK {
			// A source channel closed out from under us (editor FIFO gone,
			// or a transport's Inbound/Outcomes drained after it died);
			// treat it the same as that source's own event.
			if err := handlers[chosen](reflect.Value{}, false); err != nil {
				s.shutdownAllServers()
				return err
			}
			continue
		}

		if err := handlers[chosen](recv, true); err != nil {
			s.shutdownAllServers()
			return err
		}
	}
}

// selectHandler processes one received value (or a closed-channel
// notification when ok is false) and returns a non-nil error only when
// the event loop should exit.
type selectHandler func(v reflect.Value, ok bool) error

func (s *Session) buildSelectCases(idleC <-chan time.Time) ([]reflect.SelectCase, []selectHandler) {
	var cases []reflect.SelectCase
	var handlers []selectHandler

	add := func(ch any, h selectHandler) {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		handlers = append(handlers, h)
	}

	add(s.editor.Requests, func(v reflect.Value, ok bool) error {
		if !ok {
			return fmt.Errorf("editor channel closed")
		}
		req, _ := v.Interface().(*editorconn.EditorRequest)
		return s.handleEditorRequest(req)
	})

	add(s.watch.Batches, func(v reflect.Value, ok bool) error {
		if !ok {
			return nil
		}
		batch, _ := v.Interface().(map[docstore.ServerID][]lsp.FileEvent)
		s.handleWatchBatch(batch)
		return nil
	})

	add(s.watch.Errors, func(v reflect.Value, ok bool) error {
		if ok {
			err, _ := v.Interface().(error)
			s.log.Warn().Err(err).Msg("file watcher error")
		}
		return nil
	})

	add(idleC, func(reflect.Value, bool) error {
		return fmt.Errorf("idle timeout after %s with no activity", IdleTimeout)
	})

	for id, t := range s.transports {
		id, t := id, t
		add(t.Inbound, func(v reflect.Value, ok bool) error {
			if !ok {
				return s.onTransportDied(id)
			}
			ev, _ := v.Interface().(transport.InboundEvent)
			s.handleInbound(id, ev)
			return nil
		})
		add(t.Outcomes, func(v reflect.Value, ok bool) error {
			if !ok {
				return nil
			}
			o, _ := v.Interface().(transport.Outcome)
			s.dispatcher.HandleOutcome(o)
			return nil
		})
		add(t.Disconnected(), func(reflect.Value, bool) error {
			return s.onTransportDied(id)
		})
	}

	return cases, handlers
}

func (s *Session) onTransportDied(id docstore.ServerID) error {
	t := s.transports[id]
	if t == nil {
		return nil
	}
	s.log.Warn().Str("server", t.Name).Msg("transport disconnected")
	delete(s.transports, id)
	s.watch.Unregister(id)
	return fmt.Errorf("server %s: transport disconnected", t.Name)
}

func (s *Session) shutdownAllServers() {
	ctx := context.Background()
	for id, t := range s.transports {
		_ = t.Notify(ctx, "exit", nil)
		_ = t.Close()
		delete(s.transports, id)
	}
}

func (s *Session) handleInbound(id docstore.ServerID, ev transport.InboundEvent) {
	if ev.Reply != nil {
		s.serverReq.Handle(id, ev.Method, ev.Params, func(result any, err *jsonrpc2.Error) {
			ev.Reply(result, err)
		})
		return
	}

	switch ev.Method {
	case "textDocument/publishDiagnostics":
		// Received and not acted on: this package neither stores
		// diagnostics nor relays them to the editor.
	case "$/progress":
		// Progress notifications are UI-only; nothing in the core needs to
		// track them beyond what serverreq's workDoneProgress/create
		// already recorded.
	}
}

func (s *Session) handleWatchBatch(batch map[docstore.ServerID][]lsp.FileEvent) {
	ctx := context.Background()
	for id, events := range batch {
		t := s.transports[id]
		if t == nil {
			continue
		}
		_ = t.Notify(ctx, "workspace/didChangeWatchedFiles", lsp.DidChangeWatchedFilesParams{Changes: events})
	}
}

func (s *Session) handleEditorRequest(req *editorconn.EditorRequest) error {
	switch req.Method {
	case editorconn.MethodExit:
		return fmt.Errorf("received $exit")
	case editorconn.MethodKakouneExit:
		return fmt.Errorf("received kakoune/exit")
	case editorconn.MethodDidChangeOption:
		if len(req.Params) > 0 {
			s.debug = req.Params[0] == "true"
		}
		return nil
	}

	s.lastClient = req.Client

	switch req.Method {
	case "textDocument/didOpen":
		s.docs.Open(req.Buffile, req.Version, req.BufferText)
	case "textDocument/didChange":
		doc := s.docs.Change(req.Buffile, req.Version, req.BufferText)
		if doc != nil {
			s.gate.OnDidChange(req.Buffile, req.Version)
		}
	case "textDocument/didClose":
		s.docs.Close(req.Buffile)
		s.gate.Drop(req.Buffile)
	}

	targets, err := s.resolveTargets(req)
	if err != nil {
		s.log.Debug().Err(err).Str("method", req.Method).Msg("routing failed")
		return nil
	}
	if len(targets) == 0 {
		return nil
	}

	if versiongate.Exempt(req.Method) {
		s.dispatchToTargets(req, targets)
		return nil
	}

	doc := s.docs.Get(req.Buffile)
	current := req.Version
	if doc != nil {
		current = doc.Version
	}
	s.gate.Admit(req.Buffile, req.Version, current, func() {
		s.dispatchToTargets(req, targets)
	})
	return nil
}

func (s *Session) resolveTargets(req *editorconn.EditorRequest) ([]docstore.ServerID, error) {
	targets := make([]docstore.ServerID, 0, len(req.Servers))
	for name, cfg := range req.Servers {
		inst, err := s.router.Resolve(name, cfg, req.Buffile, req.Hook, req.ServerInitOptions[name])
		if err != nil {
			s.log.Debug().Err(err).Str("server", name).Msg("could not route request")
			continue
		}
		targets = append(targets, inst.ID)
	}
	return targets, nil
}

func (s *Session) dispatchToTargets(req *editorconn.EditorRequest, targets []docstore.ServerID) {
	ready := make([]docstore.ServerID, 0, len(targets))
	for _, id := range targets {
		if s.caps.Initialized(id) {
			ready = append(ready, id)
			continue
		}
		// Park a retry under the first not-yet-ready server; once it
		// finishes initializing, rerun this check over the same targets
		// so any other server that became ready meanwhile is included too.
		s.initParking.Park(id, func() {
			s.dispatchToTargets(req, targets)
		})
		return
	}

	doc := s.docs.Get(req.Buffile)
	if doc != nil {
		for _, id := range ready {
			s.dispatcher.EnsureDidOpen(context.Background(), doc, id, req.LanguageID)
		}
	}

	if dispatch.IsNotification(req.Method) {
		s.notifyTargets(req, doc, ready)
		s.deliverResult(req, nil)
		return
	}

	mode := dispatch.All
	s.dispatcher.Dispatch(context.Background(), ready, req.Method, mode, req.Hook,
		func(docstore.ServerID) any { return s.buildParams(req) },
		func(res *dispatch.BatchResult) {
			s.deliverResult(req, res)
		},
	)
}

// notifyTargets sends a document- or session-lifecycle method to ready as
// a fire-and-forget notification, built with its real LSP wire shape
// instead of buildParams's generic placeholder. No server ever answers
// these, so they never go through Dispatch/CallAsync.
func (s *Session) notifyTargets(req *editorconn.EditorRequest, doc *docstore.Document, ready []docstore.ServerID) {
	ctx := context.Background()
	switch req.Method {
	case "textDocument/didOpen":
		// EnsureDidOpen above already sent a correctly-shaped didOpen
		// (languageId, version, full text) to every target that hadn't
		// seen this buffer yet; sending it again here would duplicate it.
	case "textDocument/didChange":
		if doc == nil {
			return
		}
		params := didChangeParams(req.Buffile, doc)
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any { return params })
	case "textDocument/didClose":
		params := lsp.DidCloseTextDocumentParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: pathutil.ToURI(req.Buffile)},
		}
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any { return params })
	case "textDocument/didSave":
		params := lsp.DidSaveTextDocumentParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: pathutil.ToURI(req.Buffile)},
		}
		if doc != nil {
			text := doc.Buffer.Text()
			params.Text = &text
		}
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any { return params })
	case "workspace/didChangeConfiguration":
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any {
			return map[string]any{"settings": req.ConfigBlob}
		})
	case "exit":
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any { return nil })
	case "$/cancelRequest":
		var id any
		if len(req.Params) > 0 {
			id = req.Params[0]
		}
		s.dispatcher.Notify(ctx, ready, req.Method, func(docstore.ServerID) any {
			return map[string]any{"id": id}
		})
	}
}

// didChangeParams builds a full-document-sync DidChangeTextDocumentParams
// from doc's current text: this broker never tracks incremental ranges,
// so every change replaces a server's whole view of the buffer.
func didChangeParams(path string, doc *docstore.Document) lsp.DidChangeTextDocumentParams {
	return lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: pathutil.ToURI(path)},
			Version:                doc.Version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: doc.Buffer.Text()}},
	}
}

// buildParams builds wire params for feature requests (hover, completion,
// definition, and the like) — the only methods that still reach this
// function, since dispatchToTargets routes every document- and
// session-lifecycle notification through notifyTargets instead. It
// remains a deliberately generic placeholder: the wire shape of each
// individual LSP feature's params is out of scope for the
// routing/lifecycle/dispatch core this package implements. Feature-
// specific encoders live alongside the feature hooks that actually know
// each method's shape.
func (s *Session) buildParams(req *editorconn.EditorRequest) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": pathutil.ToURI(req.Buffile)},
		"params":       req.Params,
	}
}

// deliverResult honors the synchronous "is-sync" contract: the editor is
// blocked reading req.ResponseFIFO and must see something written to it
// regardless of what res holds. Encoding res into an editor-script
// command is a feature-hook concern layered above this package; what this
// guarantees is that the sync caller always unblocks, writing the literal
// "nop" when there is nothing more specific to say.
func (s *Session) deliverResult(req *editorconn.EditorRequest, res *dispatch.BatchResult) {
	if !req.Sync || req.ResponseFIFO == "" {
		return
	}
	w, err := fifo.OpenWriter(req.ResponseFIFO)
	if err != nil {
		s.log.Warn().Err(err).Str("fifo", req.ResponseFIFO).Msg("failed to open sync response fifo")
		return
	}
	defer w.Close()
	if err := w.WriteString("nop"); err != nil {
		s.log.Warn().Err(err).Str("fifo", req.ResponseFIFO).Msg("failed to write sync response")
	}
}

// applyWorkspaceEdit applies a server-initiated workspace/applyEdit
// against the in-memory buffers it names, committing each changed
// document through docs.Change and broadcasting the result as a
// textDocument/didChange to every server that has it open (the one that
// sent the edit included), so the edit doesn't leave servers disagreeing
// about a buffer's content.
// DocumentChanges-style resource operations (create/rename/delete) are
// not handled: only the classic Changes map is applied.
func (s *Session) applyWorkspaceEdit(id docstore.ServerID, edit lsp.WorkspaceEdit) error {
	enc := s.caps.Encoding(id)
	for uri, edits := range edit.Changes {
		path, err := pathutil.FromURI(string(uri))
		if err != nil {
			return fmt.Errorf("applyEdit: %w", err)
		}
		doc := s.docs.Get(path)
		if doc == nil {
			return fmt.Errorf("applyEdit: %s is not open", path)
		}
		text := applyTextEdits(doc.Buffer, edits, enc)
		newVersion := doc.Version + 1
		doc = s.docs.Change(path, newVersion, text)
		s.gate.OnDidChange(path, newVersion)
		s.broadcastDidChange(path, doc)
	}
	return nil
}

// broadcastDidChange tells every server that currently has path open,
// including the one whose edit produced this text, that the buffer
// changed, keeping every server's view of the document (and its version)
// in sync with an edit none of them originated a didChange for themselves.
func (s *Session) broadcastDidChange(path string, doc *docstore.Document) {
	if doc == nil {
		return
	}
	ctx := context.Background()
	params := didChangeParams(path, doc)
	for sid, t := range s.transports {
		if t == nil || !doc.OpenedIn(sid) {
			continue
		}
		_ = t.Notify(ctx, "textDocument/didChange", params)
	}
}

// applyTextEdits splices a list of TextEdits into buf's text. Edits are
// applied in descending start-offset order so an earlier edit's offsets
// never shift out from under a later one still pending.
func applyTextEdits(buf *rope.Buffer, edits []lsp.TextEdit, enc position.Encoding) string {
	type span struct {
		start, end int
		text       string
	}
	spans := make([]span, 0, len(edits))
	for _, e := range edits {
		spans = append(spans, span{
			start: position.LSPPositionToByteOffset(buf, e.Range.Start, enc),
			end:   position.LSPPositionToByteOffset(buf, e.Range.End, enc),
			text:  e.NewText,
		})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start > spans[j].start })
	out := buf.Text()
	for _, sp := range spans {
		out = out[:sp.start] + sp.text + out[sp.end:]
	}
	return out
}

// clearRefreshed answers a server's codeLens/inlayHint/semanticTokens
// refresh request. The feature hooks that would actually re-issue those
// requests to the editor live outside this package, so this records the
// request rather than acting on it; a future feature-hook wiring pass can
// hang an invalidation flag off this instead of a bare log line.
func (s *Session) clearRefreshed(id docstore.ServerID, kind string) {
	name, _ := s.instanceNameAndRoot(id)
	s.log.Debug().Str("server", name).Str("kind", kind).Msg("server requested a feature refresh")
}

func unmarshalInto(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
