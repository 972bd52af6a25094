package sbforensics

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestBuildFileBlockMap(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "b.bin"), bytes.Repeat([]byte("b"), 9))
	writeTestFile(t, filepath.Join(root, "a.bin"), bytes.Repeat([]byte("a"), 4))
	writeTestFile(t, filepath.Join(root, "empty"), nil)
	writeTestFile(t, filepath.Join(root, "sub", "c.bin"), []byte("c"))
	writeTestFile(t, filepath.Join(root, "sub", "deeper", "empty"), nil)

	fbm, err := BuildFileBlockMap(root, 4, nil)
	if err != nil {
		t.Fatalf("BuildFileBlockMap failed: %v", err)
	}

	expected := []FileBlocks{
		{Path: filepath.Join(root, "a.bin"), BlockCount: 1},
		{Path: filepath.Join(root, "b.bin"), BlockCount: 3},
		{Path: filepath.Join(root, "sub", "c.bin"), BlockCount: 1},
	}
	if len(fbm.Files) != len(expected) {
		t.Fatalf("Expected %d files, got %d: %+v", len(expected), len(fbm.Files), fbm.Files)
	}
	for i := range expected {
		if fbm.Files[i] != expected[i] {
			t.Errorf("File %d: expected %+v, got %+v", i, expected[i], fbm.Files[i])
		}
	}
	if fbm.TotalBlocks != 5 {
		t.Errorf("Expected 5 total blocks, got %d", fbm.TotalBlocks)
	}
}

func TestBuildFileBlockMapErrors(t *testing.T) {
	root := t.TempDir()
	file := writeTestFile(t, filepath.Join(root, "f"), []byte("x"))

	if _, err := BuildFileBlockMap(file, 4096, nil); err == nil {
		t.Error("Expected an error when the root is a file")
	}
	if _, err := BuildFileBlockMap(filepath.Join(root, "missing"), 4096, nil); err == nil {
		t.Error("Expected an error when the root does not exist")
	}
	if _, err := BuildFileBlockMap(root, 0, nil); err == nil {
		t.Error("Expected an error for block size 0")
	}
}

func TestBuildFileBlockMapInterrupted(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "f"), []byte("x"))

	shutdown := make(chan struct{})
	close(shutdown)

	if _, err := BuildFileBlockMap(root, 4096, shutdown); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Expected ErrInterrupted, got %v", err)
	}
}
