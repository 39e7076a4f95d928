package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcheck/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowcheck.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	if !strings.Contains(dbPath, ":") {
		dbPath = "file:" + dbPath
	}
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Catalog snapshots ---

func (s *LibSQLStore) SaveCatalog(ctx context.Context, snap *CatalogSnapshot) error {
	if snap.Name == "" {
		return schema.NewError(schema.ErrCodeStore, "catalog snapshot name is required")
	}
	if !json.Valid(snap.Content) {
		return schema.NewErrorf(schema.ErrCodeStore, "catalog snapshot %q content is not valid JSON", snap.Name)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (name, source, content, functions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   source=excluded.source, content=excluded.content, functions=excluded.functions,
		   updated_at=excluded.updated_at`,
		snap.Name, nullStr(snap.Source), string(snap.Content), snap.Functions,
		timeOrNow(snap.CreatedAt), timeOrNow(snap.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetCatalog(ctx context.Context, name string) (*CatalogSnapshot, error) {
	c := &CatalogSnapshot{}
	var source sql.NullString
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, source, content, functions, created_at, updated_at FROM catalog_snapshots WHERE name = ?`, name,
	).Scan(&c.Name, &source, &content, &c.Functions, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("catalog", name)
	}
	if err != nil {
		return nil, err
	}
	c.Source = source.String
	c.Content = json.RawMessage(content)
	return c, nil
}

// ListCatalogs returns every snapshot ordered by name. Content is omitted.
func (s *LibSQLStore) ListCatalogs(ctx context.Context) ([]*CatalogSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, source, functions, created_at, updated_at FROM catalog_snapshots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*CatalogSnapshot
	for rows.Next() {
		c := &CatalogSnapshot{}
		var source sql.NullString
		if err := rows.Scan(&c.Name, &source, &c.Functions, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Source = source.String
		snaps = append(snaps, c)
	}
	return snaps, rows.Err()
}

func (s *LibSQLStore) DeleteCatalog(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_snapshots WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "catalog", name)
}

// --- Validation runs ---

// AppendRun records a run with a monotonically increasing per-document sequence.
func (s *LibSQLStore) AppendRun(ctx context.Context, run *ValidationRun) error {
	if run.ID == "" || run.Document == "" {
		return schema.NewError(schema.ErrCodeStore, "validation run id and document are required")
	}
	diags := run.Diagnostics
	if diags == nil {
		diags = []schema.Diagnostic{}
	}
	diagJSON, err := json.Marshal(diags)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	var unverified any
	if len(run.Unverified) > 0 {
		b, err := json.Marshal(run.Unverified)
		if err != nil {
			return fmt.Errorf("marshal unverified: %w", err)
		}
		unverified = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM validation_runs WHERE document = ?`, run.Document,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	run.Sequence = seq
	run.CreatedAt = timeOrNow(run.CreatedAt)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO validation_runs (id, document, sequence, catalog, valid, error_count, diagnostics, unverified, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Document, seq, nullStr(run.Catalog), boolInt(run.Valid), run.ErrorCount,
		string(diagJSON), unverified, run.DurationMs, run.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*ValidationRun, error) {
	var where []string
	var args []any

	if filter.Document != "" {
		where = append(where, "document = ?")
		args = append(args, filter.Document)
	}
	if filter.ValidOnly != nil {
		where = append(where, "valid = ?")
		args = append(args, boolInt(*filter.ValidOnly))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, document, sequence, catalog, valid, error_count, diagnostics, unverified, duration_ms, created_at FROM validation_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, sequence DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ValidationRun
	for rows.Next() {
		r := &ValidationRun{}
		var (
			catalogName, unverified sql.NullString
			diagJSON                string
			valid                   int64
		)
		if err := rows.Scan(&r.ID, &r.Document, &r.Sequence, &catalogName, &valid, &r.ErrorCount,
			&diagJSON, &unverified, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Catalog = catalogName.String
		r.Valid = valid != 0
		if err := json.Unmarshal([]byte(diagJSON), &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics of run %s: %w", r.ID, err)
		}
		if unverified.Valid && unverified.String != "" {
			if err := json.Unmarshal([]byte(unverified.String), &r.Unverified); err != nil {
				return nil, fmt.Errorf("unmarshal unverified of run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
