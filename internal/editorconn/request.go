package editorconn

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rockerboo/kak-lsp-bridge/internal/config"
	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
)

// mapEndSentinel terminates the variadic server_init_options field in the
// control-FIFO prologue.
const mapEndSentinel = "map-end"

// EditorRequest is one parsed editor request: a fixed prologue plus a
// method tag and its method-specific remaining tokens. The event loop
// dispatches on Method for the handful of lifecycle-significant methods
// it understands (didOpen, didChange, …) and otherwise hands Params
// through unexamined to whatever handles that Method.
type EditorRequest struct {
	Session    string
	Client     string
	Hook       bool
	Sourcing   bool
	Buffile    string
	Version    int32
	Filetype   string
	LanguageID string

	Servers            map[string]config.ServerConfig
	SemanticTokenFaces []string
	ConfigBlob         map[string]any
	ServerInitOptions  map[string]map[string]any

	Method string
	Params []string

	Sync         bool
	ResponseFIFO string

	// BufferText is filled in by the channel reader from the buffer FIFO
	// when the method declares a line count; empty otherwise.
	BufferText string

	// TargetServers is attached by the router once roots are resolved;
	// empty until then.
	TargetServers []docstore.ServerID
}

// Methods the event loop itself terminates on, rather than routing.
const (
	MethodExit           = "$exit"
	MethodKakouneExit    = "kakoune/exit"
	MethodDidChangeOption = "kakoune/did-change-option"
)

// ParseRequest consumes the fixed prologue fields from tokens (as produced
// by repeated Tokenizer.Next calls for one request), then the method name,
// then whatever remains as method params — except a trailing `is-sync
// <path>` pair, which is peeled off first.
func ParseRequest(tokens []string) (*EditorRequest, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty request")
	}

	// $exit is a bare sentinel: first token is the literal, not a session id.
	if tokens[0] == MethodExit {
		return &EditorRequest{Method: MethodExit}, nil
	}

	r := &EditorRequest{}
	i := 0
	next := func(name string) (string, error) {
		if i >= len(tokens) {
			return "", fmt.Errorf("truncated request: missing %s", name)
		}
		v := tokens[i]
		i++
		return v, nil
	}

	var err error
	if r.Session, err = next("session"); err != nil {
		return nil, err
	}
	if r.Client, err = next("client"); err != nil {
		return nil, err
	}
	hookTok, err := next("hook")
	if err != nil {
		return nil, err
	}
	r.Hook = hookTok == "true"
	sourcingTok, err := next("sourcing")
	if err != nil {
		return nil, err
	}
	r.Sourcing = sourcingTok == "true"
	if r.Buffile, err = next("buffile"); err != nil {
		return nil, err
	}
	versionTok, err := next("version")
	if err != nil {
		return nil, err
	}
	v, convErr := strconv.ParseInt(versionTok, 10, 32)
	if convErr != nil {
		return nil, fmt.Errorf("bad version %q: %w", versionTok, convErr)
	}
	r.Version = int32(v)
	if r.Filetype, err = next("filetype"); err != nil {
		return nil, err
	}
	if r.LanguageID, err = next("language_id"); err != nil {
		return nil, err
	}

	serversBlob, err := next("lsp_servers")
	if err != nil {
		return nil, err
	}
	r.Servers, err = parseServersTOML(serversBlob)
	if err != nil {
		return nil, fmt.Errorf("lsp_servers: %w", err)
	}

	semTokBlob, err := next("lsp_semantic_tokens")
	if err != nil {
		return nil, err
	}
	r.SemanticTokenFaces, err = parseSemanticTokensFragment(semTokBlob)
	if err != nil {
		return nil, fmt.Errorf("lsp_semantic_tokens: %w", err)
	}

	configBlob, err := next("lsp_config")
	if err != nil {
		return nil, err
	}
	r.ConfigBlob, err = parseConfigBlob(configBlob)
	if err != nil {
		return nil, fmt.Errorf("lsp_config: %w", err)
	}

	r.ServerInitOptions = map[string]map[string]any{}
	for {
		tok, err := next("server_init_options")
		if err != nil {
			return nil, err
		}
		if tok == mapEndSentinel {
			break
		}
		blob, err := next("server_init_options value")
		if err != nil {
			return nil, err
		}
		opts, err := config.ParseTOMLFragment(blob)
		if err != nil {
			return nil, fmt.Errorf("server_init_options[%s]: %w", tok, err)
		}
		r.ServerInitOptions[tok] = opts
	}

	if r.Method, err = next("method"); err != nil {
		return nil, err
	}

	rest := tokens[i:]
	if len(rest) >= 2 && rest[len(rest)-2] == "is-sync" {
		r.Sync = true
		r.ResponseFIFO = rest[len(rest)-1]
		rest = rest[:len(rest)-2]
	}
	r.Params = rest

	return r, nil
}

func parseServersTOML(blob string) (map[string]config.ServerConfig, error) {
	out := map[string]config.ServerConfig{}
	if strings.TrimSpace(blob) == "" {
		return out, nil
	}
	if _, err := toml.Decode(blob, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseSemanticTokensFragment(blob string) ([]string, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, nil
	}
	var wrapper struct {
		Faces []string `toml:"faces"`
	}
	if _, err := toml.Decode(blob, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Faces, nil
}

// parseConfigBlob accepts either TOML or JSON, trying JSON first since a
// JSON object reliably fails TOML decoding (TOML top-level must be a
// table of key=value lines, not `{`).
func parseConfigBlob(blob string) (map[string]any, error) {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m, nil
		}
	}
	return config.ParseTOMLFragment(blob)
}
