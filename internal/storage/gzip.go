package storage

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GzipFileStorage writes one event per line to a single gzip-compressed
// JSONL file, for callers that want the whole lifetime of a session in
// one archive rather than FileStorage's rotation.
type GzipFileStorage struct {
	mu       sync.Mutex
	file     *os.File
	gz       *gzip.Writer
	buf      *bufio.Writer
	path     string
	count    int64
	stopped  bool
}

// NewGzipFileStorage creates the output directory if needed and opens
// path for gzip-compressed writing.
func NewGzipFileStorage(path string) (*GzipFileStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	gz := gzip.NewWriter(f)
	return &GzipFileStorage{
		file: f,
		gz:   gz,
		buf:  bufio.NewWriter(gz),
		path: path,
	}, nil
}

// Write appends v as one JSON line.
func (s *GzipFileStorage) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("storage: write to closed gzip file %s", s.path)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := s.buf.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}

	s.count++
	return nil
}

// Close flushes and closes the buffered writer, gzip writer, and
// underlying file, in that order.
func (s *GzipFileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := s.gz.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return s.file.Close()
}

// MessageCount returns the number of events written so far.
func (s *GzipFileStorage) MessageCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Path returns the output file path.
func (s *GzipFileStorage) Path() string {
	return s.path
}
