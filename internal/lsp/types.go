// Package lsp re-exports the LSP 3.17 wire types the broker needs from
// lsprotocol-go, plus a handful of broker-local aliases for values the
// protocol leaves untyped (JSON-RPC ids, raw params).
package lsp

import (
	protocol "github.com/myleshyson/lsprotocol-go/protocol"
)

type (
	Position                      = protocol.Position
	Range                         = protocol.Range
	Location                      = protocol.Location
	TextDocumentItem              = protocol.TextDocumentItem
	TextDocumentIdentifier        = protocol.TextDocumentIdentifier
	VersionedTextDocumentIdentifier = protocol.VersionedTextDocumentIdentifier
	TextDocumentContentChangeEvent = protocol.TextDocumentContentChangeEvent
	DidOpenTextDocumentParams     = protocol.DidOpenTextDocumentParams
	DidChangeTextDocumentParams   = protocol.DidChangeTextDocumentParams
	DidCloseTextDocumentParams    = protocol.DidCloseTextDocumentParams
	DidSaveTextDocumentParams     = protocol.DidSaveTextDocumentParams
	WorkspaceFolder               = protocol.WorkspaceFolder
	InitializeParams              = protocol.InitializeParams
	InitializeResult              = protocol.InitializeResult
	InitializedParams             = protocol.InitializedParams
	ClientCapabilities            = protocol.ClientCapabilities
	ServerCapabilities            = protocol.ServerCapabilities
	Diagnostic                    = protocol.Diagnostic
	PublishDiagnosticsParams      = protocol.PublishDiagnosticsParams
	FileEvent                     = protocol.FileEvent
	FileChangeType                = protocol.FileChangeType
	DidChangeWatchedFilesParams   = protocol.DidChangeWatchedFilesParams
	FileSystemWatcher             = protocol.FileSystemWatcher
	Registration                  = protocol.Registration
	RegistrationParams            = protocol.RegistrationParams
	ApplyWorkspaceEditParams      = protocol.ApplyWorkspaceEditParams
	ApplyWorkspaceEditResult      = protocol.ApplyWorkspaceEditResult
	WorkspaceEdit                 = protocol.WorkspaceEdit
	TextEdit                      = protocol.TextEdit
	MessageActionItem             = protocol.MessageActionItem
	ShowMessageRequestParams      = protocol.ShowMessageRequestParams
	ConfigurationParams           = protocol.ConfigurationParams
	ConfigurationItem             = protocol.ConfigurationItem
	WorkDoneProgressCreateParams  = protocol.WorkDoneProgressCreateParams
	ProgressParams                = protocol.ProgressParams
	WorkDoneProgressBegin         = protocol.WorkDoneProgressBegin
	PositionEncodingKind          = protocol.PositionEncodingKind

	GeneralClientCapabilities            = protocol.GeneralClientCapabilities
	TextDocumentClientCapabilities        = protocol.TextDocumentClientCapabilities
	TextDocumentSyncClientCapabilities    = protocol.TextDocumentSyncClientCapabilities
	HoverClientCapabilities               = protocol.HoverClientCapabilities
	CompletionClientCapabilities          = protocol.CompletionClientCapabilities
	DefinitionClientCapabilities          = protocol.DefinitionClientCapabilities
	ReferenceClientCapabilities           = protocol.ReferenceClientCapabilities
	DocumentSymbolClientCapabilities      = protocol.DocumentSymbolClientCapabilities
	DocumentFormattingClientCapabilities  = protocol.DocumentFormattingClientCapabilities
	DocumentRangeFormattingClientCapabilities = protocol.DocumentRangeFormattingClientCapabilities
	RenameClientCapabilities              = protocol.RenameClientCapabilities
	CodeActionClientCapabilities          = protocol.CodeActionClientCapabilities
	CodeLensClientCapabilities            = protocol.CodeLensClientCapabilities
	SelectionRangeClientCapabilities      = protocol.SelectionRangeClientCapabilities
	SemanticTokensClientCapabilities      = protocol.SemanticTokensClientCapabilities
	InlayHintClientCapabilities           = protocol.InlayHintClientCapabilities
	CallHierarchyClientCapabilities       = protocol.CallHierarchyClientCapabilities
	PublishDiagnosticsClientCapabilities  = protocol.PublishDiagnosticsClientCapabilities
	WorkspaceClientCapabilities           = protocol.WorkspaceClientCapabilities
	DidChangeWatchedFilesClientCapabilities = protocol.DidChangeWatchedFilesClientCapabilities
	WorkspaceSymbolClientCapabilities     = protocol.WorkspaceSymbolClientCapabilities
	WindowClientCapabilities              = protocol.WindowClientCapabilities
	ShowMessageRequestClientCapabilities  = protocol.ShowMessageRequestClientCapabilities
)

const (
	PositionEncodingUTF8  PositionEncodingKind = "utf-8"
	PositionEncodingUTF16 PositionEncodingKind = "utf-16"
)

const (
	FileChangeCreated FileChangeType = 1
	FileChangeChanged FileChangeType = 2
	FileChangeDeleted FileChangeType = 3
)

// LSP error codes used by the dispatcher.
const (
	ErrCodeContentModified = -32801
	ErrCodeMethodNotFound  = -32601
)

// WatchKind mirrors the LSP WatchKind bitmask (Create=1, Change=2, Delete=4).
type WatchKind int

const (
	WatchCreate WatchKind = 1
	WatchChange WatchKind = 2
	WatchDelete WatchKind = 4
)

func (k WatchKind) Allows(t FileChangeType) bool {
	switch t {
	case FileChangeCreated:
		return k&WatchCreate != 0
	case FileChangeChanged:
		return k&WatchChange != 0
	case FileChangeDeleted:
		return k&WatchDelete != 0
	}
	return false
}
