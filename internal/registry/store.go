package registry

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps version history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the history database at path.
// ":memory:" keeps history for the life of the process only.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS model_versions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  version TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  storage_path TEXT NOT NULL DEFAULT '',
  device_target TEXT NOT NULL DEFAULT '',
  loaded_at_ns INTEGER NOT NULL DEFAULT 0,
  last_accessed_at_ns INTEGER NOT NULL DEFAULT 0,
  access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS model_versions_name ON model_versions(name, id);
`)
	return err
}

// Append implements HistoryStore.
func (s *SQLiteStore) Append(ctx context.Context, info ModelInfo, keep int) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO model_versions(name, version, type, size_bytes, storage_path, device_target, loaded_at_ns, last_accessed_at_ns, access_count)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, info.Name, info.Version, info.Type, int64(info.SizeBytes), info.StoragePath, info.DeviceTarget,
		info.LoadedAt.UnixNano(), info.LastAccessedAt.UnixNano(), info.AccessCount)
	if err != nil {
		return err
	}
	if keep > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM model_versions
WHERE name=? AND id NOT IN (
  SELECT id FROM model_versions WHERE name=? ORDER BY id DESC LIMIT ?
);
`, info.Name, info.Name, keep)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load implements HistoryStore.
func (s *SQLiteStore) Load(ctx context.Context, keep int) (map[string][]ModelInfo, error) {
	out := make(map[string][]ModelInfo)
	if s.db == nil {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT name, version, type, size_bytes, storage_path, device_target, loaded_at_ns, last_accessed_at_ns, access_count
FROM model_versions
ORDER BY name ASC, id ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var info ModelInfo
		var size, loadedNs, accessedNs int64
		if err := rows.Scan(&info.Name, &info.Version, &info.Type, &size, &info.StoragePath, &info.DeviceTarget,
			&loadedNs, &accessedNs, &info.AccessCount); err != nil {
			return nil, err
		}
		info.SizeBytes = uint64(size)
		info.LoadedAt = time.Unix(0, loadedNs)
		info.LastAccessedAt = time.Unix(0, accessedNs)
		out[info.Name] = append(out[info.Name], info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if keep > 0 {
		for name, h := range out {
			if len(h) > keep {
				out[name] = h[len(h)-keep:]
			}
		}
	}
	return out, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
