package sbforensics

import (
	"strings"
)

// Skiplist context constants for the in-memory index
const (
	KnownContext = "known"
	ProbeContext = "probe"
)

// Index backend names
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Block read modes
const (
	ReadModePread = "pread"
	ReadModeMmap  = "mmap"
)

// Output formats
const (
	FormatHuman    = "human"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
)

// Defaults applied when neither the config file nor the caller supplies a value
const (
	DefaultBlockSize         = 4096
	DefaultTargetProbability = 0.95
	DefaultBatchSize         = 4096
	DefaultBloomFPRate       = 0.001
	DefaultHashWorkers       = 4
	DefaultProbeWorkers      = 1
	DefaultListenAddr        = "127.0.0.1:5000"
)

// FingerprintSize is the width of every block fingerprint in bytes (128 bits)
const FingerprintSize = 16

// Hash type constants
const (
	HashTypeXXH3   uint16 = 1 // xxh3-128
	HashTypeMD5    uint16 = 2 // MD5 (128 bits)
	HashTypeBLAKE3 uint16 = 3 // BLAKE3 truncated to 128 bits
)

// HashTypeName returns the human-readable name for a hash type
func HashTypeName(hashType uint16) string {
	switch hashType {
	case HashTypeXXH3:
		return "xxh3"
	case HashTypeMD5:
		return "md5"
	case HashTypeBLAKE3:
		return "blake3"
	default:
		return "unknown"
	}
}

// HashTypeFromName returns the hash type constant from a name (case-insensitive)
func HashTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "xxh3":
		return HashTypeXXH3, true
	case "md5":
		return HashTypeMD5, true
	case "blake3":
		return HashTypeBLAKE3, true
	default:
		return 0, false
	}
}

// Metadata keys stored alongside the fingerprints of every index
const (
	metaKeyBlockSize = "block_size"
	metaKeyHashName  = "hash"
)
