package sbforensics

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// errBlockOutOfRange is returned by ReadBlock for a block past the end of the file
var errBlockOutOfRange = errors.New("block number out of range")

// BlockSource gives random access to the fixed-size blocks of one file.
// The slice returned by ReadBlock is only valid until the next ReadBlock or Close.
type BlockSource interface {
	Path() string
	BlockSize() int
	BlockCount() int64
	ReadBlock(blockNum int64) ([]byte, error)
	Close() error
}

// OpenBlockSource opens path for block reads using the given read mode
func OpenBlockSource(path string, blockSize int, mode string) (BlockSource, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	switch mode {
	case ReadModeMmap:
		src, err := newMmapSource(file, stat.Size(), blockSize)
		if err != nil {
			file.Close()
			return nil, err
		}
		return src, nil
	case ReadModePread, "":
		return &preadSource{
			file:      file,
			path:      path,
			size:      stat.Size(),
			blockSize: blockSize,
			buf:       make([]byte, blockSize),
		}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported read mode: %s (supported: pread, mmap)", mode)
	}
}

// IterateBlocks calls fn for every block of path in increasing block number order.
// A zero-length file produces no calls.
func IterateBlocks(path string, blockSize int, mode string, fn func(blockNum int64, data []byte) error) error {
	src, err := OpenBlockSource(path, blockSize, mode)
	if err != nil {
		return err
	}
	defer src.Close()

	count := src.BlockCount()
	for n := int64(0); n < count; n++ {
		data, err := src.ReadBlock(n)
		if errors.Is(err, errBlockOutOfRange) {
			return nil // truncated while iterating
		}
		if err != nil {
			return err
		}
		if err := fn(n, data); err != nil {
			return err
		}
	}
	return nil
}

// blockBounds returns the byte range of blockNum inside a file of the given size
func blockBounds(blockNum int64, blockSize int, size int64) (int64, int64, error) {
	count := blockCountForSize(size, blockSize)
	if blockNum < 0 || blockNum >= count {
		return 0, 0, fmt.Errorf("%w: block %d of %d", errBlockOutOfRange, blockNum, count)
	}
	start := blockNum * int64(blockSize)
	end := start + int64(blockSize)
	if end > size {
		end = size
	}
	return start, end, nil
}

// preadSource reads blocks with positioned reads into a reused buffer
type preadSource struct {
	file      *os.File
	path      string
	size      int64
	blockSize int
	buf       []byte
}

func (s *preadSource) Path() string      { return s.path }
func (s *preadSource) BlockSize() int    { return s.blockSize }
func (s *preadSource) BlockCount() int64 { return blockCountForSize(s.size, s.blockSize) }

func (s *preadSource) ReadBlock(blockNum int64) ([]byte, error) {
	start, end, err := blockBounds(blockNum, s.blockSize, s.size)
	if err != nil {
		return nil, err
	}

	n, err := s.file.ReadAt(s.buf[:end-start], start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read block %d of %s: %w", blockNum, s.path, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: block %d of %s starts past the current end", errBlockOutOfRange, blockNum, s.path)
	}
	// a short read means the file shrank after Stat; hash what is there
	return s.buf[:n], nil
}

func (s *preadSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// mmapSource serves blocks straight out of a read-only mapping. The file stays
// open so every read can check the current size first: touching a mapped page
// past the end of a truncated file raises SIGBUS.
type mmapSource struct {
	file      *os.File
	data      []byte
	path      string
	size      int64
	blockSize int
}

func newMmapSource(file *os.File, size int64, blockSize int) (*mmapSource, error) {
	src := &mmapSource{
		file:      file,
		path:      file.Name(),
		size:      size,
		blockSize: blockSize,
	}
	if size == 0 {
		return src, nil // mmap of length 0 is EINVAL
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s: %w", file.Name(), err)
	}
	// Advisory only
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	src.data = data
	return src, nil
}

func (s *mmapSource) Path() string      { return s.path }
func (s *mmapSource) BlockSize() int    { return s.blockSize }
func (s *mmapSource) BlockCount() int64 { return blockCountForSize(s.size, s.blockSize) }

func (s *mmapSource) ReadBlock(blockNum int64) ([]byte, error) {
	start, end, err := blockBounds(blockNum, s.blockSize, s.size)
	if err != nil {
		return nil, err
	}

	// A truncation between this check and the copy below can still fault;
	// pread mode has no such window.
	stat, err := s.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	current := stat.Size()
	if current <= start {
		return nil, fmt.Errorf("%w: block %d of %s starts past the current end", errBlockOutOfRange, blockNum, s.path)
	}
	if end > current {
		end = current
	}
	return s.data[start:end], nil
}

func (s *mmapSource) Close() error {
	var err error
	if s.data != nil {
		if uerr := unix.Munmap(s.data); uerr != nil {
			err = fmt.Errorf("failed to unmap %s: %w", s.path, uerr)
		}
		s.data = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.file = nil
	}
	return err
}
