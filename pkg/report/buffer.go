// Package report holds a captured job log until it is shipped and computes
// where it goes.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
)

// Buffer is a single-use local copy of a job log backed by a temp file.
type Buffer struct {
	StripANSI bool

	path   string
	size   int64
	filled bool
}

// NewBuffer creates the backing file in dir (os.TempDir() when empty).
func NewBuffer(dir string, stripANSI bool) (*Buffer, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("scanjob-%s-*.log", uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("create log buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("create log buffer: %w", err)
	}

	return &Buffer{StripANSI: stripANSI, path: f.Name()}, nil
}

// Fill copies r into the buffer. It may be called once.
func (b *Buffer) Fill(r io.Reader) error {
	if b.filled {
		return errors.New("log buffer is already filled")
	}
	b.filled = true

	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open log buffer: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if b.StripANSI {
		b.size, err = copyStripped(w, r)
	} else {
		b.size, err = io.Copy(w, r)
	}
	if err != nil {
		return fmt.Errorf("read log stream: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write log buffer: %w", err)
	}

	return f.Close()
}

func copyStripped(w io.Writer, r io.Reader) (int64, error) {
	var written int64
	br := bufio.NewReader(r)

	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			n, err := io.WriteString(w, stripansi.Strip(line))
			written += int64(n)
			if err != nil {
				return written, err
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func (b *Buffer) Size() int64 {
	return b.size
}

func (b *Buffer) Empty() bool {
	return b.size == 0
}

func (b *Buffer) Path() string {
	return b.path
}

// Open returns a reader over the captured content.
func (b *Buffer) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("open log buffer: %w", err)
	}
	return f, nil
}

func (b *Buffer) Remove() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log buffer %s: %w", b.path, err)
	}
	return nil
}
