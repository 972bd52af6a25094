package sbforensics

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHumanSize(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"4096", 4096, false},
		{"4K", 4096, false},
		{"4k", 4096, false},
		{"4KB", 4096, false},
		{"4KiB", 4096, false},
		{"1.5M", 1572864, false},
		{"1G", 1 << 30, false},
		{"512B", 512, false},
		{"", 0, true},
		{"K", 0, true},
		{"0", 0, true},
		{"12Q", 0, true},
	}

	for _, tc := range testCases {
		got, err := ParseHumanSize(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHumanSize(%q): expected error, got %d", tc.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHumanSize(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseHumanSize(%q) = %d, expected %d", tc.input, got, tc.expected)
		}
	}
}

func TestFormatHumanSizeRoundTrip(t *testing.T) {
	for _, size := range []int64{1, 512, 1000, 4096, 65536, 1 << 20, 3 << 30} {
		formatted := FormatHumanSize(size)
		parsed, err := ParseHumanSize(formatted)
		if err != nil {
			t.Errorf("ParseHumanSize(FormatHumanSize(%d) = %q) failed: %v", size, formatted, err)
			continue
		}
		if int64(parsed) != size {
			t.Errorf("Round trip of %d via %q gave %d", size, formatted, parsed)
		}
	}
}

func TestBlockCountForSize(t *testing.T) {
	testCases := []struct {
		size      int64
		blockSize int
		expected  int64
	}{
		{0, 4096, 0},
		{1, 4096, 1},
		{4096, 4096, 1},
		{4097, 4096, 2},
		{8192, 4096, 2},
		{10, 3, 4},
		{100, 0, 0},
	}

	for _, tc := range testCases {
		if got := blockCountForSize(tc.size, tc.blockSize); got != tc.expected {
			t.Errorf("blockCountForSize(%d, %d) = %d, expected %d", tc.size, tc.blockSize, got, tc.expected)
		}
	}
}

func TestPathWithin(t *testing.T) {
	root := t.TempDir()
	known := filepath.Join(root, "known")
	if err := os.MkdirAll(filepath.Join(known, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	link := filepath.Join(root, "link")
	if err := os.Symlink(known, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	testCases := []struct {
		path     string
		expected bool
	}{
		{known, true},
		{filepath.Join(known, "idx.db"), true},
		{filepath.Join(known, "sub", "idx.db"), true},
		{filepath.Join(known, "..", "known", "idx.db"), true},
		{filepath.Join(link, "idx.db"), true},
		{filepath.Join(root, "idx.db"), false},
		{filepath.Join(root, "known-other", "idx.db"), false},
		{filepath.Join(root, "knownidx.db"), false},
	}

	for _, tc := range testCases {
		if got := pathWithin(tc.path, known); got != tc.expected {
			t.Errorf("pathWithin(%s, %s) = %t, expected %t", tc.path, known, got, tc.expected)
		}
	}
}
