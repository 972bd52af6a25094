package sbforensics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

// IndexEntry is one known-content block: its fingerprint and where it was first seen
type IndexEntry struct {
	Fingerprint Fingerprint
	SourcePath  string
	BlockNum    int64
}

// IndexLocation is the attribution stored for a fingerprint
type IndexLocation struct {
	SourcePath string
	BlockNum   int64
}

// ContentIndex is a content-addressed store mapping fingerprint to the first
// known-content block that produced it.
//
// InsertMany is idempotent: a fingerprint that is already present keeps its
// existing attribution. Each call commits atomically.
type ContentIndex interface {
	InsertMany(entries []IndexEntry) error
	Lookup(fp Fingerprint) (IndexLocation, bool, error)
	Count() (int64, error)
	ForEachFingerprint(fn func(fp Fingerprint) bool) error
	GetMeta(key string) (string, bool, error)
	SetMeta(key, value string) error
	Close() error
}

// IndexOptions selects and configures an index backend
type IndexOptions struct {
	Path     string
	Backend  string
	PoolSize int // sqlite connection pool size
	Logger   *logrus.Logger
}

// OpenIndex opens the index at opts.Path, creating an empty one when nothing is there
func OpenIndex(opts IndexOptions) (ContentIndex, error) {
	defer VerboseEnter()()

	backend := opts.Backend
	if backend == "" {
		backend = BackendSQLite
	}
	if backend != BackendMemory && opts.Path == "" {
		return nil, fmt.Errorf("index path is required for the %s backend", backend)
	}
	if IsDebugEnabled("index") {
		VerboseLog(2, "opening %s index at %s", backend, opts.Path)
	}

	switch backend {
	case BackendSQLite:
		return openSQLiteIndex(opts)
	case BackendBadger:
		return openBadgerIndex(opts)
	case BackendMemory:
		return newMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// IndexExists reports whether path holds a previously built index for backend
func IndexExists(path, backend string) bool {
	switch backend {
	case BackendSQLite, "":
		return isFilePath(path)
	case BackendBadger:
		return isDirPath(path) && isFilePath(filepath.Join(path, "MANIFEST"))
	default:
		return false
	}
}

// RemoveIndex discards a prior build at path so the next build starts clean
func RemoveIndex(path, backend string) error {
	switch backend {
	case BackendSQLite, "":
		for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
		return nil
	case BackendBadger:
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// dedupeBatch drops repeated fingerprints inside one batch, keeping the first
func dedupeBatch(entries []IndexEntry) []IndexEntry {
	seen := make(map[Fingerprint]struct{}, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if _, ok := seen[e.Fingerprint]; ok {
			continue
		}
		seen[e.Fingerprint] = struct{}{}
		out = append(out, e)
	}
	return out
}

// bindIndexParams records the block size and hash of a fresh index, or checks
// that a reused index was built with the same ones.
func bindIndexParams(idx ContentIndex, blockSize int, hashName string) error {
	want := map[string]string{
		metaKeyBlockSize: strconv.Itoa(blockSize),
		metaKeyHashName:  hashName,
	}
	for _, key := range []string{metaKeyBlockSize, metaKeyHashName} {
		got, ok, err := idx.GetMeta(key)
		if err != nil {
			return fmt.Errorf("failed to read index metadata %s: %w", key, err)
		}
		if !ok {
			if err := idx.SetMeta(key, want[key]); err != nil {
				return fmt.Errorf("failed to write index metadata %s: %w", key, err)
			}
			continue
		}
		if got != want[key] {
			return fmt.Errorf("%w: %s is %s, requested %s", ErrIndexMismatch, key, got, want[key])
		}
	}
	return nil
}
