package sbforensics

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	fingerprint BLOB PRIMARY KEY,
	source_path TEXT NOT NULL,
	block_num   INTEGER NOT NULL
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// sqliteIndex keeps the index in a single SQLite file
type sqliteIndex struct {
	pool *sqlitex.Pool
	path string
	log  *logrus.Logger
}

func openSQLiteIndex(opts IndexOptions) (*sqliteIndex, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(opts.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", opts.Path, err)
	}

	idx := &sqliteIndex{pool: pool, path: opts.Path, log: loggerOr(opts.Logger)}

	// Force schema creation now so a corrupt file fails at open, not at first query
	conn, err := idx.take()
	if err != nil {
		pool.Close()
		return nil, err
	}
	idx.pool.Put(conn)

	idx.log.WithFields(logrus.Fields{"path": opts.Path, "pool_size": poolSize}).Debug("sqlite index opened")
	return idx, nil
}

// prepareSQLiteConn applies the pragmas every connection uses, then the schema
func prepareSQLiteConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA cache_size=-16384",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("creating index schema: %w", err)
	}
	return nil
}

func (s *sqliteIndex) take() (*sqlite.Conn, error) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("sqlite index %s: take: %w", s.path, err)
	}
	return conn, nil
}

// InsertMany inserts the batch in one immediate transaction; INSERT OR IGNORE
// keeps the first attribution of a fingerprint.
func (s *sqliteIndex) InsertMany(entries []IndexEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	entries = dedupeBatch(entries)

	conn, err := s.take()
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer endFn(&err)

	for _, e := range entries {
		fp := e.Fingerprint
		err = sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO blocks (fingerprint, source_path, block_num) VALUES (?, ?, ?);`,
			&sqlitex.ExecOptions{Args: []any{fp[:], e.SourcePath, e.BlockNum}})
		if err != nil {
			return fmt.Errorf("insert %s: %w", fp, err)
		}
	}
	return nil
}

func (s *sqliteIndex) Lookup(fp Fingerprint) (IndexLocation, bool, error) {
	conn, err := s.take()
	if err != nil {
		return IndexLocation{}, false, err
	}
	defer s.pool.Put(conn)

	var loc IndexLocation
	found := false
	err = sqlitex.Execute(conn,
		`SELECT source_path, block_num FROM blocks WHERE fingerprint = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{fp[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				loc.SourcePath = stmt.ColumnText(0)
				loc.BlockNum = stmt.ColumnInt64(1)
				found = true
				return nil
			},
		})
	if err != nil {
		return IndexLocation{}, false, fmt.Errorf("lookup %s: %w", fp, err)
	}
	return loc, found, nil
}

func (s *sqliteIndex) Count() (int64, error) {
	conn, err := s.take()
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM blocks;`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// errStopIteration ends a ResultFunc loop early without reporting a failure
var errStopIteration = errors.New("stop iteration")

func (s *sqliteIndex) ForEachFingerprint(fn func(fp Fingerprint) bool) error {
	conn, err := s.take()
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	buf := make([]byte, FingerprintSize)
	err = sqlitex.Execute(conn, `SELECT fingerprint FROM blocks;`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnLen(0) != FingerprintSize {
				return fmt.Errorf("stored fingerprint is %d bytes, want %d", stmt.ColumnLen(0), FingerprintSize)
			}
			stmt.ColumnBytes(0, buf)
			fp, err := fingerprintFromBytes(buf)
			if err != nil {
				return err
			}
			if !fn(fp) {
				return errStopIteration
			}
			return nil
		},
	})
	if errors.Is(err, errStopIteration) {
		return nil
	}
	return err
}

func (s *sqliteIndex) GetMeta(key string) (string, bool, error) {
	conn, err := s.take()
	if err != nil {
		return "", false, err
	}
	defer s.pool.Put(conn)

	var value string
	found := false
	err = sqlitex.Execute(conn, `SELECT value FROM meta WHERE key = ?;`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	return value, found, err
}

func (s *sqliteIndex) SetMeta(key, value string) error {
	conn, err := s.take()
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value;`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
}

func (s *sqliteIndex) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("closing sqlite index %s: %w", s.path, err)
	}
	s.log.WithField("path", s.path).Debug("sqlite index closed")
	return nil
}
