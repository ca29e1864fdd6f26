package editorconn

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rockerboo/kak-lsp-bridge/internal/fifo"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
)

// lineCounted lists the methods whose params carry a leading line-count
// token; the channel reads that many newline-terminated lines out of the
// buffer FIFO and attaches them as BufferText before handing the request to
// the core. Every other method's buffer text is empty: it either needs no
// document text (most requests) or gets it from the already-tracked
// document store instead.
var lineCounted = map[string]bool{
	"textDocument/didOpen":   true,
	"textDocument/didChange": true,
}

// Channel drives one editor session's pair of FIFOs, emitting one
// EditorRequest per control-FIFO line on Requests until the control FIFO
// is closed or a fatal read error occurs, at which point it closes
// Requests and records the error in Err.
type Channel struct {
	ctrl *fifo.Reader
	buf  *fifo.Reader
	tok  *Tokenizer

	Requests chan *EditorRequest
	Err      error
}

// Open creates (if needed) and opens both FIFOs and returns a Channel ready
// to be driven by Run.
func Open(ctrlPath, bufPath string) (*Channel, error) {
	ctrl, err := fifo.OpenReader(ctrlPath)
	if err != nil {
		return nil, fmt.Errorf("open control fifo: %w", err)
	}
	buf, err := fifo.OpenReader(bufPath)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("open buffer fifo: %w", err)
	}
	c := &Channel{
		ctrl:     ctrl,
		buf:      buf,
		Requests: make(chan *EditorRequest, 64),
	}
	c.tok = NewTokenizer(ctrl)
	return c, nil
}

// Run reads requests until the control FIFO yields a fatal error (not
// ErrEndOfRequest, which just ends one request), a buffer-FIFO read fails,
// or the parsed request is the $exit sentinel, which is forwarded once and
// then Run returns.
func (c *Channel) Run() {
	defer close(c.Requests)
	log := logging.For("editorconn")

	for {
		tokens, err := c.readTokens()
		if err != nil {
			c.Err = err
			log.Debug().Msg("control fifo closed: " + err.Error())
			return
		}
		if len(tokens) == 0 {
			continue
		}

		req, err := ParseRequest(tokens)
		if err != nil {
			log.Debug().Msg("malformed request: " + err.Error())
			continue
		}

		if lineCounted[req.Method] && len(req.Params) > 0 {
			n, text, err := c.readCountedLines(req.Params[0])
			if err != nil {
				c.Err = err
				log.Debug().Msg("buffer fifo read failed: " + err.Error())
				return
			}
			req.BufferText = text
			_ = n
		}

		c.Requests <- req
		if req.Method == MethodExit {
			return
		}
	}
}

// readTokens accumulates one request's worth of tokens, stopping at
// ErrEndOfRequest.
func (c *Channel) readTokens() ([]string, error) {
	var tokens []string
	for {
		tk, err := c.tok.Next()
		if err == ErrEndOfRequest {
			return tokens, nil
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tk)
	}
}

// readCountedLines reads from the buffer FIFO until it has accumulated at
// least n newline-terminated lines (n parsed from the declared count
// token), trimming any excess tail past the n-th newline, tolerating short
// reads and the non-blocking retry fifo.Reader already performs
// internally.
func (c *Channel) readCountedLines(countTok string) (int, string, error) {
	n, err := parseCount(countTok)
	if err != nil {
		return 0, "", err
	}
	if n <= 0 {
		return 0, "", nil
	}

	var out bytes.Buffer
	seen := 0
	buf := make([]byte, 4096)
	for seen < n {
		read, err := c.buf.ReadUpTo(buf)
		if err != nil {
			return seen, out.String(), err
		}
		chunk := buf[:read]
		for _, b := range chunk {
			out.WriteByte(b)
			if b == '\n' {
				seen++
				if seen == n {
					break
				}
			}
		}
	}
	return seen, out.String(), nil
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("bad line count %q: %w", s, err)
	}
	return n, nil
}

// Close releases both FIFO descriptors.
func (c *Channel) Close() {
	c.ctrl.Close()
	c.buf.Close()
}
