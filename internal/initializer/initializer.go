// Package initializer builds the broker's fixed client-capability
// advertisement, negotiates a server's offset encoding, and stores the
// resulting ServerCapabilities once `initialize` completes. Each server
// negotiates its own encoding independently, since positionEncoding is
// per-server, not global.
package initializer

import (
	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/lsp"
	"github.com/rockerboo/kak-lsp-bridge/internal/pathutil"
	"github.com/rockerboo/kak-lsp-bridge/internal/position"
)

// Table tracks negotiated capabilities and encodings per server instance.
// It does not hold requests that arrive before initialize completes; the
// caller parks those until Initialized reports true.
type Table struct {
	caps      map[docstore.ServerID]*lsp.ServerCapabilities
	encodings map[docstore.ServerID]position.Encoding
}

func NewTable() *Table {
	return &Table{
		caps:      map[docstore.ServerID]*lsp.ServerCapabilities{},
		encodings: map[docstore.ServerID]position.Encoding{},
	}
}

// Initialized reports whether id has completed its initialize/initialized
// handshake; requests against it should park until this is true.
func (t *Table) Initialized(id docstore.ServerID) bool {
	_, ok := t.caps[id]
	return ok
}

// Capabilities returns the stored ServerCapabilities for id, or nil before
// initialize completes.
func (t *Table) Capabilities(id docstore.ServerID) *lsp.ServerCapabilities {
	return t.caps[id]
}

// Encoding returns the negotiated character encoding for id, defaulting to
// UTF-16 (the LSP default) before negotiation has happened.
func (t *Table) Encoding(id docstore.ServerID) position.Encoding {
	if e, ok := t.encodings[id]; ok {
		return e
	}
	return position.UTF16
}

// ClientCapabilities is the fixed advertisement sent with every
// `initialize` request, describing the feature set the event loop and its
// feature hooks actually implement.
func ClientCapabilities() *lsp.ClientCapabilities {
	boolTrue := true
	return &lsp.ClientCapabilities{
		General: &lsp.GeneralClientCapabilities{
			PositionEncodings: []lsp.PositionEncodingKind{
				lsp.PositionEncodingUTF8,
				lsp.PositionEncodingUTF16,
			},
		},
		TextDocument: &lsp.TextDocumentClientCapabilities{
			Synchronization: &lsp.TextDocumentSyncClientCapabilities{
				DidSave: &boolTrue,
			},
			Hover:              &lsp.HoverClientCapabilities{},
			Completion:         &lsp.CompletionClientCapabilities{},
			Definition:         &lsp.DefinitionClientCapabilities{},
			References:         &lsp.ReferenceClientCapabilities{},
			DocumentSymbol:     &lsp.DocumentSymbolClientCapabilities{},
			Formatting:         &lsp.DocumentFormattingClientCapabilities{},
			RangeFormatting:    &lsp.DocumentRangeFormattingClientCapabilities{},
			Rename:             &lsp.RenameClientCapabilities{},
			CodeAction:         &lsp.CodeActionClientCapabilities{},
			CodeLens:           &lsp.CodeLensClientCapabilities{},
			SelectionRange:     &lsp.SelectionRangeClientCapabilities{},
			SemanticTokens:     &lsp.SemanticTokensClientCapabilities{},
			InlayHint:          &lsp.InlayHintClientCapabilities{},
			CallHierarchy:      &lsp.CallHierarchyClientCapabilities{},
			PublishDiagnostics: &lsp.PublishDiagnosticsClientCapabilities{},
		},
		Workspace: &lsp.WorkspaceClientCapabilities{
			Configuration:          &boolTrue,
			WorkspaceFolders:       &boolTrue,
			ApplyEdit:              &boolTrue,
			DidChangeWatchedFiles:  &lsp.DidChangeWatchedFilesClientCapabilities{DynamicRegistration: &boolTrue},
			Symbol:                 &lsp.WorkspaceSymbolClientCapabilities{},
		},
		Window: &lsp.WindowClientCapabilities{
			WorkDoneProgress: &boolTrue,
			ShowMessage:      &lsp.ShowMessageRequestClientCapabilities{},
		},
	}
}

// BuildParams constructs the InitializeParams for a fresh server instance
// rooted at root, folding in any extra roots already routed to it as
// workspace folders, plus initOptions as the initializationOptions. The
// caller merges config's initialization_options with the editor's
// per-request overrides before passing them in.
func BuildParams(root string, extraRoots []string, initOptions map[string]any) *lsp.InitializeParams {
	folders := make([]lsp.WorkspaceFolder, 0, 1+len(extraRoots))
	folders = append(folders, lsp.WorkspaceFolder{URI: pathutil.ToURI(root), Name: root})
	for _, r := range extraRoots {
		folders = append(folders, lsp.WorkspaceFolder{URI: pathutil.ToURI(r), Name: r})
	}

	rootURI := pathutil.ToURI(root)
	return &lsp.InitializeParams{
		RootURI:               &rootURI,
		Capabilities:          *ClientCapabilities(),
		WorkspaceFolders:      folders,
		InitializationOptions: initOptions,
	}
}

// Negotiate picks the encoding to use for id from the server's
// initialize result and stores both it and the server's capabilities.
// It prefers the LSP 3.17 `positionEncoding` field when the server chose
// one we advertised, falling back to UTF-16 (the wire default every server
// must support) otherwise.
func (t *Table) Negotiate(id docstore.ServerID, result *lsp.InitializeResult) position.Encoding {
	t.caps[id] = &result.Capabilities

	enc := position.UTF16
	if result.Capabilities.PositionEncoding != nil {
		switch *result.Capabilities.PositionEncoding {
		case lsp.PositionEncodingUTF8:
			enc = position.UTF8
		case lsp.PositionEncodingUTF16:
			enc = position.UTF16
		default:
			logging.For("initializer").Warn().
				Str("encoding", string(*result.Capabilities.PositionEncoding)).
				Msg("server chose an unsupported position encoding, falling back to utf-16")
		}
	}
	t.encodings[id] = enc
	return enc
}
