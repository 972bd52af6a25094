package sbforensics

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

// Fingerprint is the 128-bit content digest of one block
type Fingerprint [FingerprintSize]byte

// String returns the lowercase hex form of the fingerprint
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint parses a 32-character hex string into a Fingerprint
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != FingerprintSize {
		return fp, fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), FingerprintSize)
	}
	copy(fp[:], decoded)
	return fp, nil
}

// fingerprintFromBytes copies a stored key back into a Fingerprint
func fingerprintFromBytes(b []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(b) != FingerprintSize {
		return fp, fmt.Errorf("stored fingerprint is %d bytes, want %d", len(b), FingerprintSize)
	}
	copy(fp[:], b)
	return fp, nil
}

// HashAlgorithm represents a block fingerprint algorithm
type HashAlgorithm struct {
	Name   string
	TypeID uint16
	Sum    func(data []byte) Fingerprint
}

// HashBlock fingerprints exactly the bytes of one block. The empty block hashes
// like any other input.
func (a *HashAlgorithm) HashBlock(data []byte) Fingerprint {
	return a.Sum(data)
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "", "xxh3":
		return &HashAlgorithm{
			Name:   "xxh3",
			TypeID: HashTypeXXH3,
			Sum: func(data []byte) Fingerprint {
				return Fingerprint(xxh3.Hash128(data).Bytes())
			},
		}, nil
	case "md5":
		return &HashAlgorithm{
			Name:   "md5",
			TypeID: HashTypeMD5,
			Sum: func(data []byte) Fingerprint {
				return Fingerprint(md5.Sum(data))
			},
		}, nil
	case "blake3":
		return &HashAlgorithm{
			Name:   "blake3",
			TypeID: HashTypeBLAKE3,
			Sum: func(data []byte) Fingerprint {
				sum := blake3.Sum256(data)
				var fp Fingerprint
				copy(fp[:], sum[:FingerprintSize])
				return fp
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownHash, name)
	}
}

// GetHashAlgorithmByType returns the hash algorithm configuration for the given type ID
func GetHashAlgorithmByType(typeID uint16) (*HashAlgorithm, error) {
	name := HashTypeName(typeID)
	if name == "unknown" {
		return nil, fmt.Errorf("%w: type id %d", ErrUnknownHash, typeID)
	}
	return GetHashAlgorithm(name)
}

// DefaultHashAlgorithm returns the xxh3 algorithm
func DefaultHashAlgorithm() *HashAlgorithm {
	alg, _ := GetHashAlgorithm("xxh3")
	return alg
}
