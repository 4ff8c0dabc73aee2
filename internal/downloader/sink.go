package downloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	partSuffix = ".part"
)

// Sink receives committed chunks in order and hands off the finished file.
// Append must either store the whole chunk or leave the sink unchanged.
type Sink interface {
	Append(chunk []byte) error
	// Size is the number of bytes appended so far.
	Size() int64
	// Finalize is called once after the content was verified.
	Finalize() error
	// Reset discards everything appended so far.
	Reset() error
}

// MemorySink keeps the chunks in memory.
type MemorySink struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int64
	done   bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = append(s.chunks, bytes.Clone(chunk))
	s.size += int64(len(chunk))

	return nil
}

func (s *MemorySink) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

func (s *MemorySink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true

	return nil
}

func (s *MemorySink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = nil
	s.size = 0
	s.done = false

	return nil
}

// Chunks returns the number of chunks received.
func (s *MemorySink) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.chunks)
}

// Bytes concatenates the chunks received so far.
func (s *MemorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Join(s.chunks, nil)
}

// Finalized reports whether the content was handed off.
func (s *MemorySink) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// FileSink appends to <path>.part and renames it to path on Finalize, so the
// target path only ever holds verified content.
type FileSink struct {
	path string
	part string
	f    *os.File
	size int64
}

// NewFileSink creates (or truncates) the partial file next to path.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	part := path + partSuffix

	f, err := os.OpenFile(part, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial file: %w", err)
	}

	return &FileSink{path: path, part: part, f: f}, nil
}

// Path returns the final target path.
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Append(chunk []byte) error {
	if s.f == nil {
		return fmt.Errorf("sink for %s is closed", s.path)
	}

	n, err := s.f.WriteAt(chunk, s.size)
	if err != nil {
		// Undo a partial write so the file keeps exactly the committed bytes.
		if n > 0 {
			if truncErr := s.f.Truncate(s.size); truncErr != nil {
				return errors.Join(err, truncErr)
			}
		}

		return err
	}

	s.size += int64(n)

	return nil
}

func (s *FileSink) Size() int64 {
	return s.size
}

func (s *FileSink) Finalize() error {
	if s.f == nil {
		return fmt.Errorf("sink for %s is closed", s.path)
	}

	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync partial file: %w", err)
	}

	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close partial file: %w", err)
	}

	s.f = nil

	if err := os.Rename(s.part, s.path); err != nil {
		return fmt.Errorf("failed to move partial file into place: %w", err)
	}

	return nil
}

func (s *FileSink) Reset() error {
	if s.f == nil {
		f, err := os.OpenFile(s.part, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePerm)
		if err != nil {
			return fmt.Errorf("failed to recreate partial file: %w", err)
		}

		s.f = f
		s.size = 0

		return nil
	}

	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate partial file: %w", err)
	}

	s.size = 0

	return nil
}

// Close releases the partial file without publishing it. The .part file is
// kept on disk.
func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}

	err := s.f.Close()
	s.f = nil

	return err
}

// Discard closes the sink and removes the partial file.
func (s *FileSink) Discard() error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := os.Remove(s.part); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// WriterSink streams chunks straight into w. What was written cannot be
// taken back, so Reset fails once anything was appended.
type WriterSink struct {
	w    io.Writer
	size int64
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Append(chunk []byte) error {
	n, err := s.w.Write(chunk)
	s.size += int64(n)

	if err == nil && n != len(chunk) {
		err = io.ErrShortWrite
	}

	return err
}

func (s *WriterSink) Size() int64 {
	return s.size
}

func (s *WriterSink) Finalize() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}

	return nil
}

func (s *WriterSink) Reset() error {
	if s.size > 0 {
		return ErrNotResettable
	}

	return nil
}
