package storage

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGzipFileStorage_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl.gz")

	s, err := NewGzipFileStorage(path)
	if err != nil {
		t.Fatalf("NewGzipFileStorage: %v", err)
	}

	type event struct {
		Seq int `json:"seq"`
	}

	for i := 0; i < 3; i++ {
		if err := s.Write(event{Seq: i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if got := s.MessageCount(); got != 3 {
		t.Errorf("MessageCount = %d, want 3", got)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening written file: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()

	var seqs []int
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var e event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshaling line %q: %v", sc.Text(), err)
		}
		seqs = append(seqs, e.Seq)
	}

	if len(seqs) != 3 {
		t.Fatalf("got %d lines, want 3", len(seqs))
	}
	for i, seq := range seqs {
		if seq != i {
			t.Errorf("line %d: seq = %d, want %d", i, seq, i)
		}
	}
}

func TestGzipFileStorage_WriteAfterCloseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.gz")

	s, err := NewGzipFileStorage(path)
	if err != nil {
		t.Fatalf("NewGzipFileStorage: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Write(map[string]string{"k": "v"}); err == nil {
		t.Error("expected error writing after Close, got nil")
	}
}

func TestGzipFileStorage_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.gz")

	s, err := NewGzipFileStorage(path)
	if err != nil {
		t.Fatalf("NewGzipFileStorage: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}
