package sbforensics

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBlocks is one non-empty regular file and its block count
type FileBlocks struct {
	Path       string
	BlockCount int64
}

// FileBlockMap is the block population of a directory tree in traversal order
type FileBlockMap struct {
	Files       []FileBlocks
	TotalBlocks int64
}

// scannedFile is a regular, non-empty file found during traversal
type scannedFile struct {
	Path string
	Size int64
}

// walkRegularFiles visits every non-empty regular file under root in lexical order.
// Directories that cannot be read are skipped with a warning; symlinks, devices
// and other non-regular entries are never opened.
func walkRegularFiles(root string, shutdownChan <-chan struct{}, fn func(f scannedFile) error) error {
	defer VerboseEnter()()

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if interrupted(shutdownChan) {
			return ErrInterrupted
		}
		if err != nil {
			if path == root {
				return err
			}
			Logger().WithError(err).WithField("path", path).Warn("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// vanished between readdir and stat; it was never opened
			if IsDebugEnabled("scan") {
				VerboseLog(3, "walkRegularFiles: skipping %s: %v", path, err)
			}
			return nil
		}
		if fi.Size() == 0 {
			return nil
		}
		return fn(scannedFile{Path: path, Size: fi.Size()})
	})
}

// BuildFileBlockMap computes the block population of every non-empty regular
// file under root, in traversal order.
func BuildFileBlockMap(root string, blockSize int, shutdownChan <-chan struct{}) (*FileBlockMap, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	fbm := &FileBlockMap{}
	err := walkRegularFiles(root, shutdownChan, func(f scannedFile) error {
		count := blockCountForSize(f.Size, blockSize)
		fbm.Files = append(fbm.Files, FileBlocks{Path: f.Path, BlockCount: count})
		fbm.TotalBlocks += count
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map blocks under %s: %w", root, err)
	}

	VerboseLog(1, "%s: %d files, %d blocks of %d bytes", root, len(fbm.Files), fbm.TotalBlocks, blockSize)
	return fbm, nil
}
