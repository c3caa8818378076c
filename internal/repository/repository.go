// Package repository persists extraction results. It speaks database/sql
// so the same code runs against PostgreSQL (pgx driver) in production and
// SQLite (modernc driver) for single-binary deployments.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sygefi/ocr-mandats/internal/common"
)

// ResultRecord is one stored extraction result. Metadata and Verdict are
// stored as JSON documents; the reference columns are denormalized for
// listing and lookup.
type ResultRecord struct {
	ID                string
	ContentHash       string
	Filename          string
	Success           bool
	PrimaryEngine     string
	EnginesUsed       []string
	FallbackTriggered bool
	Confidence        float64
	MandatRef         string
	BordereauRef      string
	Exercice          string
	Metadata          json.RawMessage
	Verdict           json.RawMessage
	RawTextPreview    string
	ProcessingMS      int64
	CreatedAt         time.Time
}

// OpenDB opens and pings a database. driver is "pgx" or "sqlite".
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ocr_results (
	id                 TEXT PRIMARY KEY,
	content_hash       TEXT NOT NULL,
	filename           TEXT NOT NULL DEFAULT '',
	success            BOOLEAN NOT NULL DEFAULT FALSE,
	primary_engine     TEXT NOT NULL DEFAULT '',
	engines_used       TEXT NOT NULL DEFAULT '[]',
	fallback_triggered BOOLEAN NOT NULL DEFAULT FALSE,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	mandat_ref         TEXT NOT NULL DEFAULT '',
	bordereau_ref      TEXT NOT NULL DEFAULT '',
	exercice           TEXT NOT NULL DEFAULT '',
	metadata           TEXT NOT NULL DEFAULT '{}',
	verdict            TEXT NOT NULL DEFAULT '{}',
	raw_text_preview   TEXT NOT NULL DEFAULT '',
	processing_ms      BIGINT NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ocr_results_hash ON ocr_results (content_hash);
CREATE INDEX IF NOT EXISTS idx_ocr_results_mandat ON ocr_results (mandat_ref);
`

// Store reads and writes extraction results.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to the default.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// EnsureSchema creates the results table and indexes when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const insertSQL = `INSERT INTO ocr_results
(id, content_hash, filename, success, primary_engine, engines_used, fallback_triggered,
 confidence, mandat_ref, bordereau_ref, exercice, metadata, verdict, raw_text_preview,
 processing_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// Insert stores one result.
func (s *Store) Insert(ctx context.Context, r *ResultRecord) error {
	engines, err := json.Marshal(r.EnginesUsed)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, insertSQL,
		r.ID, r.ContentHash, r.Filename, r.Success, r.PrimaryEngine, string(engines),
		r.FallbackTriggered, r.Confidence, r.MandatRef, r.BordereauRef, r.Exercice,
		string(r.Metadata), string(r.Verdict), r.RawTextPreview, r.ProcessingMS,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const selectCols = `id, content_hash, filename, success, primary_engine, engines_used,
fallback_triggered, confidence, mandat_ref, bordereau_ref, exercice, metadata, verdict,
raw_text_preview, processing_ms, created_at`

// GetByID fetches one result. Returns common.ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM ocr_results WHERE id = $1`, id)
	return scanRecord(row)
}

// GetByHash fetches the most recent result for a content hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM ocr_results WHERE content_hash = $1 ORDER BY created_at DESC LIMIT 1`, hash)
	return scanRecord(row)
}

// List returns results newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*ResultRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM ocr_results ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*ResultRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes one result. Returns common.ErrNotFound when absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ocr_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ResultRecord, error) {
	var (
		r         ResultRecord
		engines   string
		metadata  string
		verdict   string
		createdAt string
	)
	err := row.Scan(&r.ID, &r.ContentHash, &r.Filename, &r.Success, &r.PrimaryEngine,
		&engines, &r.FallbackTriggered, &r.Confidence, &r.MandatRef, &r.BordereauRef,
		&r.Exercice, &metadata, &verdict, &r.RawTextPreview, &r.ProcessingMS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}
	if err := json.Unmarshal([]byte(engines), &r.EnginesUsed); err != nil {
		r.EnginesUsed = nil
	}
	r.Metadata = json.RawMessage(metadata)
	r.Verdict = json.RawMessage(verdict)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}
