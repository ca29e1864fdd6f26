// Package router resolves which running server instance a request for a
// given configured server name and buffer should go to: it computes the
// project root, matches or spawns an instance for (name, root), and
// remembers failed spawns so repeated requests don't retry a dead command.
//
// Instances are keyed by (server name, project root) since a single
// broker process juggles many concurrent projects and language servers
// at once, not just one running server per name.
package router

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rockerboo/kak-lsp-bridge/internal/config"
	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/pathutil"
)

// ErrNotAbsolute is returned when a buffer path fails the absolute-path
// check.
var ErrNotAbsolute = errors.New("router: buffer path is not absolute")

// ErrTombstoned is returned for (name, root) pairs whose spawn already
// failed once this session.
var ErrTombstoned = errors.New("router: server instance is tombstoned")

// Instance describes one resolved server instance's routing key, returned
// alongside its ID so callers can log which root/name a request landed on.
type Instance struct {
	ID   docstore.ServerID
	Name string
	Root string
}

type instanceKey struct {
	name string
	root string
}

// SpawnFunc starts a new server instance for name at root and returns its
// assigned ID; the router has no opinion on how spawning works, only on
// when to call it. initOptions carries the requesting editor request's
// per-call server_init_options override, layered on top of cfg's static
// initialization_options by the caller.
type SpawnFunc func(name string, cfg config.ServerConfig, root string, initOptions map[string]any) (docstore.ServerID, error)

// WorkspaceFoldersFunc reports whether a running instance advertised
// workspace/workspaceFolders support, which lets the router fold a new
// root into that instance instead of spawning a second process.
type WorkspaceFoldersFunc func(id docstore.ServerID) bool

// AddFolderFunc notifies an instance being folded into via
// workspace/workspaceFolders that it has gained a new root.
type AddFolderFunc func(id docstore.ServerID, root string)

// Router owns the (name, root) -> instance routing table.
type Router struct {
	instances  map[instanceKey]docstore.ServerID
	tombstoned map[instanceKey]bool

	spawn             SpawnFunc
	supportsWorkspace WorkspaceFoldersFunc
	addFolder         AddFolderFunc
}

func New(spawn SpawnFunc, supportsWorkspace WorkspaceFoldersFunc, addFolder AddFolderFunc) *Router {
	return &Router{
		instances:         map[instanceKey]docstore.ServerID{},
		tombstoned:        map[instanceKey]bool{},
		spawn:             spawn,
		supportsWorkspace: supportsWorkspace,
		addFolder:         addFolder,
	}
}

// Resolve returns the instance to route a request for server name to,
// given its config entry and the buffer's absolute path. hook requests
// skip the absolute-path rejection, matching a hook firing for a buffer
// that has no associated file yet. initOptions is only consulted the
// first time (name, root) is spawned; a request that joins an
// already-running instance can't retroactively change what it was
// initialized with.
func (r *Router) Resolve(name string, cfg config.ServerConfig, buffile string, hook bool, initOptions map[string]any) (Instance, error) {
	if !hook && !pathutil.IsAbsolute(buffile) {
		return Instance{}, ErrNotAbsolute
	}

	root, err := r.resolveRoot(cfg, buffile)
	if err != nil {
		return Instance{}, fmt.Errorf("resolve root for %s: %w", name, err)
	}

	key := instanceKey{name: name, root: root}
	if r.tombstoned[key] {
		return Instance{}, ErrTombstoned
	}
	if id, ok := r.instances[key]; ok {
		return Instance{ID: id, Name: name, Root: root}, nil
	}

	// Prefer folding into an existing instance of the same name that
	// advertised workspace/workspaceFolders support, rather than spawning
	// a second process for a sibling project root.
	for k, id := range r.instances {
		if k.name == name && r.supportsWorkspace(id) {
			r.instances[key] = id
			r.addFolder(id, root)
			return Instance{ID: id, Name: name, Root: root}, nil
		}
	}

	id, err := r.spawn(name, cfg, root, initOptions)
	if err != nil {
		r.tombstoned[key] = true
		return Instance{}, fmt.Errorf("spawn %s at %s: %w", name, root, err)
	}
	r.instances[key] = id
	return Instance{ID: id, Name: name, Root: root}, nil
}

// Tombstone marks (name, root) as permanently unroutable, e.g. after a
// running instance's transport dies mid-session.
func (r *Router) Tombstone(name, root string) {
	r.tombstoned[instanceKey{name: name, root: root}] = true
}

func (r *Router) resolveRoot(cfg config.ServerConfig, buffile string) (string, error) {
	if cfg.Root != "" {
		return cfg.Root, nil
	}
	dir := filepath.Dir(buffile)
	if len(cfg.RootGlobs) == 0 {
		return dir, nil
	}
	root, err := pathutil.FindRootUpward(dir, cfg.RootGlobs)
	if err != nil {
		return "", err
	}
	if root == "" {
		return dir, nil
	}
	return root, nil
}
