package tempfiles

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Create makes a temp file in the provided directory, creating the directory if needed.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// Spooled is a fully written temp file opened for random access. Close
// removes it from disk.
type Spooled struct {
	file *os.File
	size int64
	once sync.Once
}

// Spool copies r into a new temp file under dir. A non-positive maxSize
// means no limit.
func Spool(dir, pattern string, r io.Reader, maxSize int64) (*Spooled, error) {
	f, err := Create(dir, pattern)
	if err != nil {
		return nil, err
	}
	s := &Spooled{file: f}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("spool to temp file: %w", err)
	}
	if maxSize > 0 && n > maxSize {
		_ = s.Close()
		return nil, fmt.Errorf("download exceeds maximum size of %d bytes", maxSize)
	}
	s.size = n
	return s, nil
}

// ReadAt implements io.ReaderAt.
func (s *Spooled) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the number of bytes spooled.
func (s *Spooled) Size() int64 { return s.size }

// Reader returns a reader over the whole spooled content.
func (s *Spooled) Reader() io.Reader {
	return io.NewSectionReader(s.file, 0, s.size)
}

func (s *Spooled) Close() error {
	var closeErr, removeErr error
	s.once.Do(func() {
		closeErr = s.file.Close()
		if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) {
			removeErr = err
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
