package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

const defaultActivityLimit = 50

// Repository stores frozen layouts and the mutation journal.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a shared in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS layouts (
			key TEXT PRIMARY KEY,
			width REAL NOT NULL,
			height REAL NOT NULL,
			nodes_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			op TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_at ON activity(at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// SaveLayout upserts a frozen layout.
func (r *Repository) SaveLayout(ctx context.Context, key string, width, height float64, placements []layout.Placement) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("layout key is required")
	}
	if placements == nil {
		placements = []layout.Placement{}
	}
	encoded, err := json.Marshal(placements)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO layouts(key, width, height, nodes_json, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			nodes_json = excluded.nodes_json,
			created_at = excluded.created_at
	`, key, width, height, string(encoded), ts(r.now()))
	if err != nil {
		return fmt.Errorf("save layout: %w", err)
	}
	return nil
}

// LoadLayout returns the stored layout for key.
func (r *Repository) LoadLayout(ctx context.Context, key string) ([]layout.Placement, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT nodes_json FROM layouts WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load layout: %w", err)
	}
	var placements []layout.Placement
	if err := json.Unmarshal([]byte(raw), &placements); err != nil {
		return nil, false, fmt.Errorf("decode layout: %w", err)
	}
	return placements, true, nil
}

// PruneLayouts deletes layouts created before cutoff.
func (r *Repository) PruneLayouts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM layouts WHERE created_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune layouts: %w", err)
	}
	return res.RowsAffected()
}

// RecordActivity appends one journal entry.
func (r *Repository) RecordActivity(ctx context.Context, a domain.Activity) error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("activity id is required")
	}
	if a.At.IsZero() {
		a.At = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity(id, at, op, target, error) VALUES(?, ?, ?, ?, ?)
	`, a.ID, ts(a.At), a.Op, a.Target, a.Error)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListActivity returns journal entries newest first.
func (r *Repository) ListActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, at, op, target, error FROM activity ORDER BY at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a     domain.Activity
			atRaw string
		)
		if err := rows.Scan(&a.ID, &atRaw, &a.Op, &a.Target, &a.Error); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.At = parseTS(atRaw)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return out, nil
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
