package runner

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/fdlab/fdlab/core/redirect"
)

// fileHandle backs a descriptor slot with a real file. ownClose marks
// handles the plan created, as opposed to inherited stdio.
type fileHandle struct {
	file     *os.File
	ownClose bool
}

func (h *fileHandle) Close() error {
	if !h.ownClose {
		return nil
	}
	return h.file.Close()
}

// streamHandle backs a slot with plain Go streams. Used when the
// runner's stdio isn't a real file, e.g. inside an SSH session.
type streamHandle struct {
	r io.Reader
	w io.Writer
}

func (h *streamHandle) Close() error { return nil }

func wrapReader(r io.Reader) redirect.Handle {
	if f, ok := r.(*os.File); ok {
		return &fileHandle{file: f}
	}
	return &streamHandle{r: r}
}

func wrapWriter(w io.Writer) redirect.Handle {
	if f, ok := w.(*os.File); ok {
		return &fileHandle{file: f}
	}
	return &streamHandle{w: w}
}

// system is the real redirect.System: opens hit the filesystem and
// dups are actual dup(2) calls, so duplicated slots genuinely share
// one open file description (offset, append mode and all).
type system struct {
	dir string
}

var _ redirect.System = (*system)(nil)

func (s *system) Open(path string, flags int, perm os.FileMode) (redirect.Handle, error) {
	f, err := os.OpenFile(resolve(s.dir, path), flags, perm)
	if err != nil {
		return nil, err
	}
	return &fileHandle{file: f, ownClose: true}, nil
}

func (s *system) Dup(h redirect.Handle) (redirect.Handle, error) {
	switch h := h.(type) {
	case *fileHandle:
		nfd, err := unix.Dup(int(h.file.Fd()))
		if err != nil {
			return nil, err
		}
		return &fileHandle{file: os.NewFile(uintptr(nfd), h.file.Name()), ownClose: true}, nil
	case *streamHandle:
		// No kernel descriptor to duplicate; sharing the stream is the
		// closest equivalent and still issues zero opens.
		return &streamHandle{r: h.r, w: h.w}, nil
	default:
		return nil, os.ErrInvalid
	}
}
