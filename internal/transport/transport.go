// Package transport owns one language server's child process and its
// JSON-RPC 2.0 connection over stdio, framed with Content-Length headers.
// Each configured server gets its own Transport instance, started with
// exec.Command over StdinPipe/StdoutPipe and wrapped in a standard
// JSON-RPC 2.0 codec rather than a hand-rolled framing loop.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/kak-lsp-bridge/internal/docstore"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
)

// InboundEvent is a request or notification arriving from the server.
// Responses to our own outbound Calls are NOT delivered here; they surface
// on Outcomes, matched by the Token the caller supplied to CallAsync.
type InboundEvent struct {
	Method string
	Params json.RawMessage
	Notif  bool
	// Reply answers a server-initiated request; nil for notifications.
	Reply func(result any, err *jsonrpc2.Error)
}

// Outcome is the result of a previously issued CallAsync, delivered
// asynchronously so the event loop never blocks on a server round trip.
type Outcome struct {
	Token  uint64
	Result json.RawMessage
	Err    error
}

// Transport is a running language server child process plus its
// connection.
type Transport struct {
	ID   docstore.ServerID
	Name string

	cmd  *exec.Cmd
	conn *jsonrpc2.Conn
	dir  string

	Inbound  chan InboundEvent
	Outcomes chan Outcome

	log zerolog.Logger
}

// Dir returns the working directory (project root) the child process was
// started in.
func (t *Transport) Dir() string { return t.dir }

// rwcloser adapts a child process's separate stdin/stdout pipes into a
// single io.ReadWriteCloser, which jsonrpc2.NewBufferedStream requires.
type rwcloser struct {
	stdout io.ReadCloser
	stdin  io.WriteCloser
}

func (c *rwcloser) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *rwcloser) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *rwcloser) Close() error {
	err1 := c.stdin.Close()
	err2 := c.stdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Spec describes how to start a server's process.
type Spec struct {
	Command string
	Args    []string
	Env     []string // additional KEY=VALUE entries, appended to os.Environ()
	Dir     string    // project root, used as the child's working directory
}

// Spawn starts the child process and wires up the JSON-RPC connection
// over its stdin/stdout pipes.
func Spawn(id docstore.ServerID, name string, spec Spec) (*Transport, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", name, err)
	}

	log := logging.For("transport." + name)
	if stderr, err := cmd.StderrPipe(); err == nil {
		go logChildStderr(log, stderr)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	t := &Transport{
		ID:       id,
		Name:     name,
		cmd:      cmd,
		dir:      spec.Dir,
		Inbound:  make(chan InboundEvent, 1024),
		Outcomes: make(chan Outcome, 1024),
		log:      log,
	}

	stream := jsonrpc2.NewBufferedStream(&rwcloser{stdout: stdout, stdin: stdin}, jsonrpc2.VSCodeObjectCodec{})
	t.conn = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(t.handle))
	return t, nil
}

// Disconnected fires when the connection is torn down (EOF, broken pipe,
// process exit) — "Transport I/O mid-session -> self-exit".
func (t *Transport) Disconnected() <-chan struct{} {
	return t.conn.DisconnectNotify()
}

// CallAsync issues a request and reports its outcome on t.Outcomes tagged
// with token, without blocking the caller (the core thread never
// blocks on a server round trip).
func (t *Transport) CallAsync(ctx context.Context, token uint64, method string, params any) {
	go func() {
		var raw json.RawMessage
		err := t.conn.Call(ctx, method, params, &raw)
		t.Outcomes <- Outcome{Token: token, Result: raw, Err: err}
	}()
}

// Notify sends a fire-and-forget notification.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	return t.conn.Notify(ctx, method, params)
}

// Close sends no further protocol messages; the caller is expected to have
// already sent `exit` via Notify. Closing the connection closes the
// child's stdin, which most servers treat as a signal to terminate.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Kill forcibly terminates the child process, for use when a clean exit
// notification doesn't result in the process exiting promptly.
func (t *Transport) Kill() error {
	if t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}

// handle implements jsonrpc2.HandlerWithError for inbound server requests
// and notifications: it hands the message to the event loop via Inbound
// and, for requests, blocks this per-request goroutine (not the event
// loop) until the event loop calls ev.Reply.
func (t *Transport) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	ev := InboundEvent{Method: req.Method, Notif: req.Notif}
	if req.Params != nil {
		ev.Params = *req.Params
	}

	if req.Notif {
		t.Inbound <- ev
		return nil, nil
	}

	done := make(chan struct{})
	var result any
	var rerr *jsonrpc2.Error
	ev.Reply = func(res any, err *jsonrpc2.Error) {
		result, rerr = res, err
		close(done)
	}

	t.Inbound <- ev
	<-done
	if rerr != nil {
		return nil, rerr
	}
	return result, nil
}

func logChildStderr(log zerolog.Logger, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			log.Debug().Msg(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
