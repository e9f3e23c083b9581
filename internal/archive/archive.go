// Package archive persists store keys in SQLite as the chunk sequences
// produced by Store.ScanDump, and restores them through Store.LoadChunk.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jcalabro/sketchkv"
)

// ErrExportNotFound is returned by Import and Delete for unknown export ids.
var ErrExportNotFound = errors.New("export not found")

// Export describes one archived snapshot.
type Export struct {
	ID        string    `json:"id"`
	Keys      int       `json:"keys"`
	Bytes     int64     `json:"bytes"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive stores exports of a sketchkv.Store in a SQLite database.
type Archive struct {
	db    *sql.DB
	store *sketchkv.Store
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string, store *sketchkv.Store) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// one writer at a time; sqlite serializes them anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure archive tables: %w", err)
	}
	return &Archive{db: db, store: store}, nil
}

// EnsureSchema creates the archive tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS skv_exports (
			id TEXT PRIMARY KEY,
			key_count INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS skv_chunks (
			export_id TEXT NOT NULL REFERENCES skv_exports(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			iterator INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (export_id, key, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Export writes the chunks of every key in keys to a new export. With no
// keys it archives every key of the store, skipping keys deleted while the
// export runs.
func (a *Archive) Export(ctx context.Context, keys []string) (Export, error) {
	explicit := len(keys) > 0
	if !explicit {
		keys = a.store.Keys()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Export{}, err
	}
	defer tx.Rollback()

	exp := Export{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO skv_exports(id, key_count, bytes, created_at) VALUES(?, 0, 0, ?)`,
		exp.ID, exp.CreatedAt.Unix()); err != nil {
		return Export{}, err
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO skv_chunks(export_id, key, seq, iterator, data) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return Export{}, err
	}
	defer insert.Close()

	for _, key := range keys {
		n, err := a.exportKey(ctx, insert, exp.ID, key)
		if errors.Is(err, sketchkv.ErrKeyNotFound) && !explicit {
			continue
		}
		if err != nil {
			return Export{}, fmt.Errorf("export %q: %w", key, err)
		}
		exp.Keys++
		exp.Bytes += n
	}

	if _, err := tx.ExecContext(ctx, `UPDATE skv_exports SET key_count = ?, bytes = ? WHERE id = ?`,
		exp.Keys, exp.Bytes, exp.ID); err != nil {
		return Export{}, err
	}
	if err := tx.Commit(); err != nil {
		return Export{}, err
	}
	exp.Size = humanize.Bytes(uint64(exp.Bytes))
	return exp, nil
}

func (a *Archive) exportKey(ctx context.Context, insert *sql.Stmt, id, key string) (int64, error) {
	var total int64
	for seq, it := 0, int64(0); ; seq++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		next, data, err := a.store.ScanDump(key, it)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return total, nil
		}
		if _, err := insert.ExecContext(ctx, id, key, seq, next, data); err != nil {
			return 0, err
		}
		total += int64(len(data))
		it = next
	}
}

// Import replays the export with the given id into the store and returns
// the restored keys. Existing keys of the same kind are replaced.
func (a *Archive) Import(ctx context.Context, id string) ([]string, error) {
	if err := a.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `SELECT key, iterator, data FROM skv_chunks WHERE export_id = ? ORDER BY key, seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var (
			key  string
			it   int64
			data []byte
		)
		if err := rows.Scan(&key, &it, &data); err != nil {
			return nil, err
		}
		if len(keys) == 0 || keys[len(keys)-1] != key {
			keys = append(keys, key)
		}
		if err := a.store.LoadChunk(key, it, data); err != nil {
			return nil, fmt.Errorf("import %q: %w", key, err)
		}
	}
	return keys, rows.Err()
}

// List returns every export, newest first.
func (a *Archive) List(ctx context.Context) ([]Export, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, key_count, bytes, created_at FROM skv_exports ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exports := []Export{}
	for rows.Next() {
		var (
			exp     Export
			created int64
		)
		if err := rows.Scan(&exp.ID, &exp.Keys, &exp.Bytes, &created); err != nil {
			return nil, err
		}
		exp.CreatedAt = time.Unix(created, 0).UTC()
		exp.Size = humanize.Bytes(uint64(exp.Bytes))
		exports = append(exports, exp)
	}
	return exports, rows.Err()
}

// Delete removes an export and its chunks.
func (a *Archive) Delete(ctx context.Context, id string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skv_chunks WHERE export_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM skv_exports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrExportNotFound, id)
	}
	return tx.Commit()
}

func (a *Archive) exists(ctx context.Context, id string) error {
	var one int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM skv_exports WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrExportNotFound, id)
	}
	return err
}
