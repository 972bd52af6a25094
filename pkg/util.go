package sbforensics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseHumanSize parses a size such as "4096", "4K", "1.5M" or "2GB" into bytes
func ParseHumanSize(sizeStr string) (int, error) {
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	// Extract numeric part and suffix
	var numPart string
	var suffix string
	for i, char := range sizeStr {
		if char >= '0' && char <= '9' || char == '.' {
			numPart += string(char)
		} else {
			suffix = strings.TrimSpace(sizeStr[i:])
			break
		}
	}

	if numPart == "" {
		return 0, fmt.Errorf("no numeric part in size string: %s", sizeStr)
	}

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric part in size string %s: %w", sizeStr, err)
	}

	var multiplier int64
	switch suffix {
	case "", "B":
		multiplier = 1
	case "K", "KB", "KIB":
		multiplier = 1024
	case "M", "MB", "MIB":
		multiplier = 1024 * 1024
	case "G", "GB", "GIB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}

	result := int64(num * float64(multiplier))
	if result <= 0 {
		return 0, fmt.Errorf("size must be positive: %s", sizeStr)
	}
	if result > int64(^uint(0)>>1) { // Check for int overflow
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}

	return int(result), nil
}

// FormatHumanSize renders a byte count the way ParseHumanSize accepts it back
func FormatHumanSize(size int64) string {
	const unit = 1024
	switch {
	case size >= unit*unit*unit && size%(unit*unit*unit) == 0:
		return fmt.Sprintf("%dG", size/(unit*unit*unit))
	case size >= unit*unit && size%(unit*unit) == 0:
		return fmt.Sprintf("%dM", size/(unit*unit))
	case size >= unit && size%unit == 0:
		return fmt.Sprintf("%dK", size/unit)
	default:
		return strconv.FormatInt(size, 10)
	}
}

// blockCountForSize returns ceil(size / blockSize); zero-length files have no blocks
func blockCountForSize(size int64, blockSize int) int64 {
	if size <= 0 || blockSize <= 0 {
		return 0
	}
	bs := int64(blockSize)
	return (size + bs - 1) / bs
}

// isDirPath reports whether path names an existing directory
func isDirPath(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isFilePath reports whether path names an existing regular file
func isFilePath(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// pathWithin reports whether path is dir itself or lies somewhere below it.
// Symlinks are resolved where the path exists, so a link into dir counts.
func pathWithin(path, dir string) bool {
	p, err := resolvePath(path)
	if err != nil {
		return false
	}
	d, err := resolvePath(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolvePath returns the absolute, symlink-free form of path. A missing final
// element is allowed so output paths can be checked before they are created.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return abs, nil
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}
