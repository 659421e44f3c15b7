// Package sqlite implements the record store on an embedded SQLite
// database (ncruces/go-sqlite3, no cgo).
//
// The database runs with WAL enabled so a long-lived server process and a
// CLI invocation can hold the store open at the same time; SQLite's own
// locking replaces the mtime heuristics the flat-log store relies on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
)

// DB is the SQLite implementation of store.Store.
type DB struct {
	conn *sql.DB
	path string
}

var _ store.Store = (*DB)(nil)

// Open creates or opens the database at path. The caller must CleanUp when
// done so the WAL is checkpointed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = db.CleanUp()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.CleanUp()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL DEFAULT '',
		in_at INTEGER,
		out_at INTEGER,
		rate REAL NOT NULL DEFAULT 0,
		comments TEXT,
		created_at INTEGER,
		updated_at INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_punches_project ON punches(project);
	CREATE INDEX IF NOT EXISTS idx_punches_running ON punches(deleted, out_at);
	CREATE INDEX IF NOT EXISTS idx_punches_in ON punches(in_at);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save implements store.Store.
func (db *DB) Save(p *punch.Punch) error {
	return db.saveContext(context.Background(), p)
}

func (db *DB) saveContext(ctx context.Context, p *punch.Punch) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid punch: %w", err)
	}

	var comments []byte
	if !p.Deleted {
		var err error
		comments, err = json.Marshal(p.Comments)
		if err != nil {
			return fmt.Errorf("failed to marshal comments: %w", err)
		}
	}

	query := `
	INSERT INTO punches (id, project, in_at, out_at, rate, comments, created_at, updated_at, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		project = excluded.project,
		in_at = excluded.in_at,
		out_at = excluded.out_at,
		rate = excluded.rate,
		comments = excluded.comments,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		deleted = excluded.deleted
	`

	_, err := db.conn.ExecContext(ctx, query,
		p.ID,
		p.Project,
		millisOrNull(p.In),
		millisPtrOrNull(p.Out),
		p.Rate,
		nullableString(comments),
		millisOrNull(p.Created),
		p.UpdatedMillis(),
		boolToInt(p.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert punch %s: %w", p.ID, err)
	}
	return nil
}

// Current implements store.Store.
func (db *DB) Current(project string) (*punch.Punch, error) {
	query := `SELECT id, project, in_at, out_at, rate, comments, created_at, updated_at, deleted
	          FROM punches WHERE deleted = 0 AND out_at IS NULL`
	args := []any{}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY in_at DESC LIMIT 1`
	return db.queryOne(query, args...)
}

// Latest implements store.Store.
func (db *DB) Latest(project string) (*punch.Punch, error) {
	query := `SELECT id, project, in_at, out_at, rate, comments, created_at, updated_at, deleted
	          FROM punches WHERE deleted = 0`
	args := []any{}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY in_at DESC LIMIT 1`
	return db.queryOne(query, args...)
}

// Filter implements store.Store. The predicate runs in Go over a full scan;
// the table is small enough that pushing filters into SQL buys nothing.
func (db *DB) Filter(pred store.Predicate) ([]*punch.Punch, error) {
	all, err := db.scan(`SELECT id, project, in_at, out_at, rate, comments, created_at, updated_at, deleted
	                     FROM punches WHERE deleted = 0 ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	var out []*punch.Punch
	for _, p := range all {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Find implements store.Store.
func (db *DB) Find(pred store.Predicate) (*punch.Punch, error) {
	matches, err := db.Filter(pred)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// Delete implements store.Store.
func (db *DB) Delete(p *punch.Punch) error {
	cp := *p
	cp.MarkDeleted(time.Now())
	return db.Save(&cp)
}

// All implements store.Store.
func (db *DB) All() ([]*punch.Punch, error) {
	return db.scan(`SELECT id, project, in_at, out_at, rate, comments, created_at, updated_at, deleted
	                FROM punches ORDER BY rowid`)
}

// CleanUp implements store.Store. Checkpoints the WAL and closes the
// connection.
func (db *DB) CleanUp() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (db *DB) queryOne(query string, args ...any) (*punch.Punch, error) {
	rows, err := db.scan(query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (db *DB) scan(query string, args ...any) ([]*punch.Punch, error) {
	rows, err := db.conn.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var out []*punch.Punch
	for rows.Next() {
		var (
			p        punch.Punch
			inAt     sql.NullInt64
			outAt    sql.NullInt64
			comments sql.NullString
			created  sql.NullInt64
			updated  int64
			deleted  int
		)
		if err := rows.Scan(&p.ID, &p.Project, &inAt, &outAt, &p.Rate, &comments, &created, &updated, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan punch row: %w", err)
		}
		p.Deleted = deleted != 0
		p.In = timeOrZero(inAt)
		p.Created = timeOrZero(created)
		if updated != 0 {
			p.Updated = time.UnixMilli(updated).UTC()
		}
		if outAt.Valid {
			t := time.UnixMilli(outAt.Int64).UTC()
			p.Out = &t
		}
		if comments.Valid && comments.String != "" {
			if err := json.Unmarshal([]byte(comments.String), &p.Comments); err != nil {
				return nil, fmt.Errorf("failed to decode comments for %s: %w", p.ID, err)
			}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate punch rows: %w", err)
	}
	return out, nil
}

func millisOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func millisPtrOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeOrZero(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}
