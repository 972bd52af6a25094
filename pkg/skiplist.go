package sbforensics

import (
	"strings"
	"sync"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// memoryEntry is the item stored in the in-memory index skiplist
type memoryEntry struct {
	key string // raw fingerprint bytes
	loc IndexLocation
}

// memoryIndex is a non-persistent ContentIndex ordered by fingerprint.
// It is used for ephemeral triage runs and by tests.
type memoryIndex struct {
	mu       sync.RWMutex
	skiplist *zcsl.ZeroCopySkiplist[memoryEntry, string, string]
	meta     map[string]string
}

func newMemoryIndex() *memoryIndex {
	getKeyFromItem := func(e *memoryEntry) string {
		return e.key
	}
	getItemSize := func(e *memoryEntry) int {
		return len(e.key) + len(e.loc.SourcePath) + 8
	}

	return &memoryIndex{
		skiplist: zcsl.MakeZeroCopySkiplist[memoryEntry, string, string](
			16,
			getKeyFromItem,
			getItemSize,
			strings.Compare,
		),
		meta: make(map[string]string),
	}
}

// InsertMany holds the write lock for the whole batch, so a batch is visible all at once
func (m *memoryIndex) InsertMany(entries []IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		key := string(e.Fingerprint[:])
		if item, _ := m.skiplist.Find(key); item != nil {
			continue // first write wins
		}
		m.skiplist.Insert(&memoryEntry{
			key: key,
			loc: IndexLocation{SourcePath: e.SourcePath, BlockNum: e.BlockNum},
		}, KnownContext)
	}
	return nil
}

func (m *memoryIndex) Lookup(fp Fingerprint) (IndexLocation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, _ := m.skiplist.Find(string(fp[:]))
	if item == nil {
		return IndexLocation{}, false, nil
	}
	return item.Item().loc, true, nil
}

func (m *memoryIndex) Count() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(m.skiplist.Length()), nil
}

// ForEachFingerprint walks the skiplist in fingerprint order
func (m *memoryIndex) ForEachFingerprint(fn func(fp Fingerprint) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for current := m.skiplist.First(); current != nil; current = current.Next() {
		fp, err := fingerprintFromBytes([]byte(current.Item().key))
		if err != nil {
			return err
		}
		if !fn(fp) {
			break
		}
	}
	return nil
}

func (m *memoryIndex) GetMeta(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[key]
	return v, ok, nil
}

func (m *memoryIndex) SetMeta(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *memoryIndex) Close() error {
	return nil
}
