package sbforensics

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Key prefixes inside the badger keyspace
var (
	badgerFingerprintPrefix = []byte{'f'}
	badgerMetaPrefix        = []byte{'m'}
)

// maxConflictRetries bounds how often a batch is re-run after losing a write race
const maxConflictRetries = 16

// badgerIndex keeps the index in a badger directory
type badgerIndex struct {
	db   *badger.DB
	path string
	log  *logrus.Logger
}

func openBadgerIndex(opts IndexOptions) (*badgerIndex, error) {
	logger := loggerOr(opts.Logger)

	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(logger).
		WithLoggingLevel(badger.WARNING)
	bopts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB value log files
	bopts.SyncWrites = false

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger index %s: %w", opts.Path, err)
	}

	logger.WithField("path", opts.Path).Debug("badger index opened")
	return &badgerIndex{db: db, path: opts.Path, log: logger}, nil
}

func badgerFingerprintKey(fp Fingerprint) []byte {
	key := make([]byte, 0, len(badgerFingerprintPrefix)+FingerprintSize)
	key = append(key, badgerFingerprintPrefix...)
	return append(key, fp[:]...)
}

func badgerMetaKey(name string) []byte {
	return append(append([]byte{}, badgerMetaPrefix...), name...)
}

func encodeLocation(blockNum int64, sourcePath string) []byte {
	buf := binary.AppendVarint(make([]byte, 0, binary.MaxVarintLen64+len(sourcePath)), blockNum)
	return append(buf, sourcePath...)
}

func decodeLocation(val []byte) (IndexLocation, error) {
	blockNum, n := binary.Varint(val)
	if n <= 0 {
		return IndexLocation{}, fmt.Errorf("corrupt index value (%d bytes)", len(val))
	}
	return IndexLocation{SourcePath: string(val[n:]), BlockNum: blockNum}, nil
}

// InsertMany writes every fingerprint that is not already present in one
// transaction. A conflicting concurrent commit makes badger reject the whole
// transaction; re-running it then sees the winner's keys and skips them.
func (b *badgerIndex) InsertMany(entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	entries = dedupeBatch(entries)

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			for _, e := range entries {
				key := badgerFingerprintKey(e.Fingerprint)
				_, getErr := txn.Get(key)
				if getErr == nil {
					continue
				}
				if !errors.Is(getErr, badger.ErrKeyNotFound) {
					return getErr
				}
				if setErr := txn.Set(key, encodeLocation(e.BlockNum, e.SourcePath)); setErr != nil {
					return setErr
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		if IsDebugEnabled("index") {
			VerboseLog(2, "badger insert batch conflicted, retrying (attempt %d)", attempt+1)
		}
	}
	if err != nil {
		return fmt.Errorf("badger insert batch of %d: %w", len(entries), err)
	}
	return nil
}

func (b *badgerIndex) Lookup(fp Fingerprint) (IndexLocation, bool, error) {
	var loc IndexLocation
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerFingerprintKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			loc, decErr = decodeLocation(val)
			found = decErr == nil
			return decErr
		})
	})
	if err != nil {
		return IndexLocation{}, false, fmt.Errorf("lookup %s: %w", fp, err)
	}
	return loc, found, nil
}

func (b *badgerIndex) Count() (int64, error) {
	var count int64
	err := b.ForEachFingerprint(func(Fingerprint) bool {
		count++
		return true
	})
	return count, err
}

func (b *badgerIndex) ForEachFingerprint(fn func(fp Fingerprint) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerFingerprintPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(badgerFingerprintPrefix); it.Next() {
			key := it.Item().Key()
			fp, err := fingerprintFromBytes(key[len(badgerFingerprintPrefix):])
			if err != nil {
				return err
			}
			if !fn(fp) {
				break
			}
		}
		return nil
	})
}

func (b *badgerIndex) GetMeta(key string) (string, bool, error) {
	var value string
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerMetaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, found = string(val), true
		return nil
	})
	return value, found, err
}

func (b *badgerIndex) SetMeta(key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerMetaKey(key), []byte(value))
	})
}

func (b *badgerIndex) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing badger index %s: %w", b.path, err)
	}
	b.log.WithField("path", b.path).Debug("badger index closed")
	return nil
}
