// Package fifo opens and reads the two named pipes the editor channel
// uses: a control FIFO carrying tokenized requests and a buffer FIFO
// carrying raw document text. Reads must tolerate short reads and EAGAIN
// on non-blocking descriptors.
package fifo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Create makes a FIFO at path if one doesn't already exist, matching mode
// 0600 (editor-local, single-user pipes).
func Create(path string) error {
	err := unix.Mkfifo(path, 0600)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("mkfifo %q: %w", path, err)
	}
	return nil
}

// Reader wraps a FIFO opened for non-blocking reads, retrying on EAGAIN
// with a short backoff rather than busy-spinning.
type Reader struct {
	f    *os.File
	path string
}

// OpenReader creates the FIFO if needed and opens it non-blocking for
// reading. Opening is itself blocking until a writer attaches unless
// O_NONBLOCK is set on open too, which is why readers open with
// O_RDONLY|O_NONBLOCK rather than os.Open.
func OpenReader(path string) (*Reader, error) {
	if err := Create(path); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return &Reader{f: os.NewFile(uintptr(fd), path), path: path}, nil
}

// ReadByte reads a single byte, blocking (via short retry sleeps) until one
// is available or the FIFO is closed by every writer (returns io.EOF, at
// which point the caller should reopen — a FIFO with no writers reads EOF
// forever until a new writer opens it).
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := r.f.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		return 0, err
	}
}

// ReadUpTo reads at most len(buf) bytes, retrying on EAGAIN/short reads
// until at least one byte is available or a real error/EOF occurs.
func (r *Reader) ReadUpTo(buf []byte) (int, error) {
	for {
		n, err := r.f.Read(buf)
		if n > 0 {
			return n, nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		return 0, err
	}
}

// Close closes the underlying file descriptor.
func (r *Reader) Close() error { return r.f.Close() }

// Writer is a blocking writer to a FIFO, used by the broker to send
// synchronous responses back through an editor-supplied response FIFO
// path ("is-sync").
type Writer struct {
	f *os.File
}

func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open writer %q: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) WriteString(s string) error {
	_, err := io.WriteString(w.f, s)
	return err
}

func (w *Writer) Close() error { return w.f.Close() }
