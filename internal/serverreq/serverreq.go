// Package serverreq answers the handful of requests and notifications a
// language server sends back to its client: workspace/applyEdit,
// client/registerCapability (most importantly dynamic
// didChangeWatchedFiles registration), window/workDoneProgress/create,
// workspace/configuration, window/showMessageRequest, and the
// codeLens/inlayHint/semanticTokens refresh triad.
//
// workDoneProgress/create tolerates a duplicate token (a server creating
// a progress handle it already holds is not an error), and
// registerCapability only honors didChangeWatchedFiles registrations —
// other dynamic registrations are acknowledged but otherwise ignored.
package serverreq

import (
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
)

// QueuedMessage is one pending window/showMessageRequest, kept until the
// editor-side modeline counter prompts the user and ShowNext dequeues it.
type QueuedMessage struct {
	ServerID docstore.ServerID
	Params   lsp.ShowMessageRequestParams
	reply    func(choice *lsp.MessageActionItem)
}

// Respond answers the underlying request with the user's chosen action
// (or nil, meaning the request is dismissed without a selection).
func (m *QueuedMessage) Respond(choice *lsp.MessageActionItem) {
	m.reply(choice)
}

// Hooks are the session-level callbacks serverreq needs but doesn't own:
// applying an edit happens against the editor's buffers, watch
// registration happens in the watcher package, and settings/refresh live
// on the session.
type Hooks struct {
	ApplyEdit        func(id docstore.ServerID, edit lsp.WorkspaceEdit) error
	RegisterWatchers func(id docstore.ServerID, regs []lsp.Registration)
	SettingsFor      func(id docstore.ServerID, section string) any
	ClearRefreshed   func(id docstore.ServerID, kind string)
}

// Handler answers server-initiated requests for every server instance,
// keeping one progress-token set per server and one showMessageRequest
// queue shared across all of them (the editor's modeline has one counter,
// not one per server).
type Handler struct {
	hooks Hooks

	progressTokens map[docstore.ServerID]map[string]bool
	messages       []*QueuedMessage
}

func New(hooks Hooks) *Handler {
	return &Handler{
		hooks:          hooks,
		progressTokens: map[docstore.ServerID]map[string]bool{},
	}
}

// Handle dispatches one transport.InboundEvent-shaped request to the
// matching answer function, replying via reply (nil for notifications).
// method and params come straight off the wire; unknown methods get a
// MethodNotFound reply so the server can fall back to its own defaults.
func (h *Handler) Handle(id docstore.ServerID, method string, params json.RawMessage, reply func(result any, err *jsonrpc2.Error)) {
	log := logging.For("serverreq")

	switch method {
	case "workspace/applyEdit":
		h.applyEdit(id, params, reply)
	case "client/registerCapability":
		h.registerCapability(id, params, reply)
	case "window/workDoneProgress/create":
		h.createProgress(id, params, reply)
	case "workspace/configuration":
		h.configuration(id, params, reply)
	case "window/showMessageRequest":
		h.showMessageRequest(id, params, reply)
	case "workspace/codeLens/refresh", "workspace/inlayHint/refresh", "workspace/semanticTokens/refresh":
		h.refresh(id, method, reply)
	case "workspace/didChangeWorkspaceFolders":
		// Informational only; the server is telling itself about folders we
		// already manage, not asking us to change anything.
		if reply != nil {
			reply(nil, nil)
		}
	default:
		log.Warn().Str("method", method).Msg("unhandled server-initiated request")
		if reply != nil {
			reply(nil, &jsonrpc2.Error{Code: lsp.ErrCodeMethodNotFound, Message: "method not handled: " + method})
		}
	}
}

func (h *Handler) applyEdit(id docstore.ServerID, raw json.RawMessage, reply func(any, *jsonrpc2.Error)) {
	var params lsp.ApplyWorkspaceEditParams
	if err := json.Unmarshal(raw, &params); err != nil {
		reply(nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}
	var applyErr error
	if h.hooks.ApplyEdit != nil {
		applyErr = h.hooks.ApplyEdit(id, params.Edit)
	}
	reply(lsp.ApplyWorkspaceEditResult{Applied: applyErr == nil}, nil)
}

func (h *Handler) registerCapability(id docstore.ServerID, raw json.RawMessage, reply func(any, *jsonrpc2.Error)) {
	var params lsp.RegistrationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		reply(nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}

	var watchRegs []lsp.Registration
	for _, reg := range params.Registrations {
		switch reg.Method {
		case "workspace/didChangeWatchedFiles":
			watchRegs = append(watchRegs, reg)
		case "workspace/didChangeWorkspaceFolders", "textDocument/semanticTokens":
			// Accepted silently: folders are already tracked by the router,
			// and a dynamic semanticTokens registration just confirms what
			// the static capability already advertised.
		default:
			logging.For("serverreq").Debug().Str("method", reg.Method).Msg("registerCapability for unmanaged method, ignoring")
		}
	}
	if len(watchRegs) > 0 && h.hooks.RegisterWatchers != nil {
		h.hooks.RegisterWatchers(id, watchRegs)
	}
	reply(nil, nil)
}

// createProgress tolerates a duplicate token: the protocol allows a server
// to race window/workDoneProgress/create against its own $/progress(begin)
// for the same token, so a second create for a known token is answered
// successfully rather than rejected.
func (h *Handler) createProgress(id docstore.ServerID, raw json.RawMessage, reply func(any, *jsonrpc2.Error)) {
	var params lsp.WorkDoneProgressCreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		reply(nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}
	tokens := h.progressTokens[id]
	if tokens == nil {
		tokens = map[string]bool{}
		h.progressTokens[id] = tokens
	}
	tokens[fmt.Sprint(params.Token)] = true
	reply(nil, nil)
}

func (h *Handler) configuration(id docstore.ServerID, raw json.RawMessage, reply func(any, *jsonrpc2.Error)) {
	var params lsp.ConfigurationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		reply(nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}
	out := make([]any, len(params.Items))
	for i, item := range params.Items {
		if h.hooks.SettingsFor != nil {
			out[i] = h.hooks.SettingsFor(id, item.Section)
		} else {
			out[i] = map[string]any{}
		}
	}
	reply(out, nil)
}

func (h *Handler) showMessageRequest(id docstore.ServerID, raw json.RawMessage, reply func(any, *jsonrpc2.Error)) {
	var params lsp.ShowMessageRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		reply(nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}
	msg := &QueuedMessage{
		ServerID: id,
		Params:   params,
		reply: func(choice *lsp.MessageActionItem) {
			reply(choice, nil)
		},
	}
	h.messages = append(h.messages, msg)
}

func (h *Handler) refresh(id docstore.ServerID, method string, reply func(any, *jsonrpc2.Error)) {
	kind := refreshKind(method)
	if h.hooks.ClearRefreshed != nil {
		h.hooks.ClearRefreshed(id, kind)
	}
	reply(nil, nil)
}

func refreshKind(method string) string {
	switch method {
	case "workspace/codeLens/refresh":
		return "codeLens"
	case "workspace/inlayHint/refresh":
		return "inlayHint"
	case "workspace/semanticTokens/refresh":
		return "semanticTokens"
	}
	return ""
}

// PendingMessageCount is what the editor modeline displays: the number of
// showMessageRequest prompts still waiting on a user choice.
func (h *Handler) PendingMessageCount() int {
	return len(h.messages)
}

// ShowNext dequeues the oldest pending message, or returns nil if none are
// queued. The caller is responsible for presenting it to the user and
// eventually calling its Respond method.
func (h *Handler) ShowNext() *QueuedMessage {
	if len(h.messages) == 0 {
		return nil
	}
	msg := h.messages[0]
	h.messages = h.messages[1:]
	return msg
}
