package serverreq

import (
	"encoding/json"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
)

func TestApplyEditReportsAppliedOnSuccess(t *testing.T) {
	h := New(Hooks{ApplyEdit: func(docstore.ServerID, lsp.WorkspaceEdit) error { return nil }})
	raw, _ := json.Marshal(lsp.ApplyWorkspaceEditParams{Edit: lsp.WorkspaceEdit{}})

	var result any
	var rerr *jsonrpc2.Error
	h.Handle(1, "workspace/applyEdit", raw, func(r any, e *jsonrpc2.Error) { result, rerr = r, e })

	require.Nil(t, rerr)
	res, ok := result.(lsp.ApplyWorkspaceEditResult)
	require.True(t, ok)
	assert.True(t, res.Applied)
}

func TestRegisterCapabilityForwardsWatchedFilesOnly(t *testing.T) {
	var forwarded []lsp.Registration
	h := New(Hooks{RegisterWatchers: func(id docstore.ServerID, regs []lsp.Registration) { forwarded = regs }})

	raw, _ := json.Marshal(lsp.RegistrationParams{Registrations: []lsp.Registration{
		{Method: "workspace/didChangeWatchedFiles"},
		{Method: "workspace/didChangeWorkspaceFolders"},
	}})

	var replied bool
	h.Handle(1, "client/registerCapability", raw, func(any, *jsonrpc2.Error) { replied = true })

	assert.True(t, replied)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "workspace/didChangeWatchedFiles", forwarded[0].Method)
}

func TestCreateProgressToleratesDuplicateToken(t *testing.T) {
	h := New(Hooks{})
	raw, _ := json.Marshal(lsp.WorkDoneProgressCreateParams{Token: "tok-1"})

	var calls int
	reply := func(any, *jsonrpc2.Error) { calls++ }
	h.Handle(1, "window/workDoneProgress/create", raw, reply)
	h.Handle(1, "window/workDoneProgress/create", raw, reply)

	assert.Equal(t, 2, calls)
}

func TestShowMessageRequestQueuesUntilShowNext(t *testing.T) {
	h := New(Hooks{})
	raw, _ := json.Marshal(lsp.ShowMessageRequestParams{Message: "pick one"})

	var responded any
	h.Handle(1, "window/showMessageRequest", raw, func(r any, e *jsonrpc2.Error) { responded = r })

	require.Equal(t, 1, h.PendingMessageCount())
	assert.Nil(t, responded) // reply fires only once ShowNext's caller responds

	queued := h.ShowNext()
	require.NotNil(t, queued)
	assert.Equal(t, "pick one", queued.Params.Message)
	assert.Equal(t, 0, h.PendingMessageCount())

	choice := &lsp.MessageActionItem{Title: "OK"}
	queued.Respond(choice)
	assert.Equal(t, choice, responded)
}

func TestUnhandledMethodRepliesMethodNotFound(t *testing.T) {
	h := New(Hooks{})
	var rerr *jsonrpc2.Error
	h.Handle(1, "workspace/weirdExtension", json.RawMessage(`{}`), func(r any, e *jsonrpc2.Error) { rerr = e })
	require.NotNil(t, rerr)
	assert.EqualValues(t, lsp.ErrCodeMethodNotFound, rerr.Code)
}
