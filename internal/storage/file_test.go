package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStorage_WritesOneJSONLinePerEvent(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStorage(dir, 0)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	defer s.Close()

	type event struct {
		AssetID string `json:"asset_id"`
	}

	if err := s.Write(event{AssetID: "a1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(event{AssetID: "a2"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := s.MessageCount(); got != 2 {
		t.Errorf("MessageCount = %d, want 2", got)
	}

	data, err := os.ReadFile(s.CurrentPath())
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var decoded event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshaling line: %v", err)
	}
	if decoded.AssetID != "a1" {
		t.Errorf("first line asset_id = %q, want a1", decoded.AssetID)
	}
}

func TestFileStorage_RotatesOnInterval(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStorage(dir, 1*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	defer s.Close()

	first := s.CurrentPath()
	time.Sleep(5 * time.Millisecond)

	if err := s.Write(map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if s.CurrentPath() == first {
		t.Error("expected rotation to produce a new file path")
	}
	if s.MessageCount() != 1 {
		t.Errorf("MessageCount after rotation = %d, want 1", s.MessageCount())
	}
}

func TestFileStorage_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")

	s, err := NewFileStorage(dir, 0)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
}

func TestNullStorage_DiscardsEverything(t *testing.T) {
	s := NewNullStorage()
	if err := s.Write(map[string]string{"k": "v"}); err != nil {
		t.Errorf("Write returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
