package sbforensics

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomIndex wraps a ContentIndex with a Bloom filter over its fingerprints.
// A negative filter answer skips the store lookup entirely; a positive answer
// (true or false positive) falls through to the store, so results are unchanged.
type BloomIndex struct {
	ContentIndex
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	skips  atomic.Int64
}

// NewBloomIndex primes a filter with every fingerprint currently in idx
func NewBloomIndex(idx ContentIndex, fpRate float64) (*BloomIndex, error) {
	count, err := idx.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to size bloom filter: %w", err)
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultBloomFPRate
	}
	capacity := uint(count)
	if capacity == 0 {
		capacity = 1
	}

	filter := bloom.NewWithEstimates(capacity, fpRate)
	err = idx.ForEachFingerprint(func(fp Fingerprint) bool {
		filter.Add(fp[:])
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prime bloom filter: %w", err)
	}

	VerboseLog(2, "bloom prefilter primed with %d fingerprints (%d bits, %d hashes)", count, filter.Cap(), filter.K())
	return &BloomIndex{ContentIndex: idx, filter: filter}, nil
}

// InsertMany writes through to the store and records the new fingerprints
func (b *BloomIndex) InsertMany(entries []IndexEntry) error {
	if err := b.ContentIndex.InsertMany(entries); err != nil {
		return err
	}
	b.mu.Lock()
	for _, e := range entries {
		b.filter.Add(e.Fingerprint[:])
	}
	b.mu.Unlock()
	return nil
}

func (b *BloomIndex) Lookup(fp Fingerprint) (IndexLocation, bool, error) {
	b.mu.RLock()
	maybe := b.filter.Test(fp[:])
	b.mu.RUnlock()
	if !maybe {
		b.skips.Add(1)
		return IndexLocation{}, false, nil
	}
	return b.ContentIndex.Lookup(fp)
}

// Skipped returns how many lookups the filter answered without the store
func (b *BloomIndex) Skipped() int64 {
	return b.skips.Load()
}
