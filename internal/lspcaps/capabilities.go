// Package lspcaps implements the per-server capability lookup table and
// quirk-flag bookkeeping: whether a server, once initialized, advertises
// a given feature, plus static per-server workarounds known ahead of
// negotiation.
package lspcaps

import "github.com/rockerboo/kak-lsp-bridge/internal/lsp"

// Capability names the broker cares about.
type Capability string

const (
	Hover                  Capability = "hover"
	Completion             Capability = "completion"
	Definition             Capability = "definition"
	References             Capability = "references"
	DocumentSymbol         Capability = "documentSymbol"
	Formatting             Capability = "formatting"
	RangeFormatting        Capability = "rangeFormatting"
	Rename                 Capability = "rename"
	CodeAction             Capability = "codeAction"
	CodeLens               Capability = "codeLens"
	SelectionRange         Capability = "selectionRange"
	SemanticTokens         Capability = "semanticTokens"
	InlayHint              Capability = "inlayHint"
	CallHierarchy          Capability = "callHierarchy"
	WorkspaceSymbol        Capability = "workspaceSymbol"
	DidChangeWatchedFiles  Capability = "didChangeWatchedFiles"
	WorkspaceFolders       Capability = "workspaceFolders"
)

// table maps a capability to a predicate over ServerCapabilities. Every
// lookup goes through this table rather than ad-hoc optional-field checks
// scattered through feature code.
var table = map[Capability]func(*lsp.ServerCapabilities) bool{
	Hover:                 func(c *lsp.ServerCapabilities) bool { return c.HoverProvider != nil },
	Completion:            func(c *lsp.ServerCapabilities) bool { return c.CompletionProvider != nil },
	Definition:            func(c *lsp.ServerCapabilities) bool { return c.DefinitionProvider != nil },
	References:            func(c *lsp.ServerCapabilities) bool { return c.ReferencesProvider != nil },
	DocumentSymbol:        func(c *lsp.ServerCapabilities) bool { return c.DocumentSymbolProvider != nil },
	Formatting:            func(c *lsp.ServerCapabilities) bool { return c.DocumentFormattingProvider != nil },
	RangeFormatting:       func(c *lsp.ServerCapabilities) bool { return c.DocumentRangeFormattingProvider != nil },
	Rename:                func(c *lsp.ServerCapabilities) bool { return c.RenameProvider != nil },
	CodeAction:            func(c *lsp.ServerCapabilities) bool { return c.CodeActionProvider != nil },
	CodeLens:              func(c *lsp.ServerCapabilities) bool { return c.CodeLensProvider != nil },
	SelectionRange:        func(c *lsp.ServerCapabilities) bool { return c.SelectionRangeProvider != nil },
	SemanticTokens:        func(c *lsp.ServerCapabilities) bool { return c.SemanticTokensProvider != nil },
	InlayHint:             func(c *lsp.ServerCapabilities) bool { return c.InlayHintProvider != nil },
	CallHierarchy:         func(c *lsp.ServerCapabilities) bool { return c.CallHierarchyProvider != nil },
	WorkspaceSymbol:       func(c *lsp.ServerCapabilities) bool { return c.WorkspaceSymbolProvider != nil },
	DidChangeWatchedFiles: func(c *lsp.ServerCapabilities) bool { return true }, // negotiated via dynamic registration, not a static capability
	WorkspaceFolders: func(c *lsp.ServerCapabilities) bool {
		if c.Workspace == nil || c.Workspace.WorkspaceFolders == nil {
			return false
		}
		supported := c.Workspace.WorkspaceFolders.Supported
		return supported != nil && *supported
	},
}

// Supports reports whether a server, once initialized, advertises the given
// capability. A nil ServerCapabilities (not yet initialized) never supports
// anything — callers should have already parked the request until
// initialization completes rather than calling Supports early.
func Supports(caps *lsp.ServerCapabilities, c Capability) bool {
	if caps == nil {
		return false
	}
	pred, ok := table[c]
	if !ok {
		return false
	}
	return pred(caps)
}

// Quirks holds per-server feature-flag booleans for known workarounds.
// They are set from a static table (known server name -> known quirk)
// rather than negotiated, since some servers misreport or omit
// capabilities a workaround still needs to account for.
type Quirks struct {
	// SynthesizeWatchedFiles marks servers that don't dynamically
	// register workspace/didChangeWatchedFiles but still want file-change
	// notifications. No code in the broker reads this flag; QuirksFor
	// only reports it.
	SynthesizeWatchedFiles bool
	// SkipSemanticTokensFullDelta marks servers whose
	// semanticTokens/full/delta is known to be broken. No code in the
	// broker reads this flag either.
	SkipSemanticTokensFullDelta bool
}

// quirksByServerName is the static workaround table. Empty today; entries
// accrete as specific servers are found to need them.
var quirksByServerName = map[string]Quirks{}

// QuirksFor returns the known quirks for a configured server name.
func QuirksFor(name string) Quirks {
	return quirksByServerName[name]
}
