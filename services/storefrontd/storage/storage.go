package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storefrontd storage path must be configured")

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

const schema = `
CREATE TABLE IF NOT EXISTS quote_log (
    id TEXT PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    sale_id INTEGER NOT NULL,
    asset TEXT NOT NULL,
    mode TEXT NOT NULL,
    amount TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quote_log_sale_ts ON quote_log(sale_id, ts);
`

// Storage wraps the daemon's append-only quote audit log.
type Storage struct {
	db *sql.DB
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN with sensible
// defaults. Callers must ensure the path is non-empty.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Quote is one served quote appended to the audit log.
type Quote struct {
	ID     string
	At     time.Time
	SaleID uint64
	Asset  string
	Mode   string
	Amount string
}

// RecordQuote appends a served quote and returns the row ID, generating one
// when the caller leaves it blank.
func (s *Storage) RecordQuote(ctx context.Context, quote Quote) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage not configured")
	}
	id := strings.TrimSpace(quote.ID)
	if id == "" {
		id = uuid.NewString()
	}
	at := quote.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO quote_log(id, ts, sale_id, asset, mode, amount)
        VALUES(?, ?, ?, ?, ?, ?)
    `, id, at.UTC(), quote.SaleID,
		strings.ToUpper(strings.TrimSpace(quote.Asset)),
		strings.ToLower(strings.TrimSpace(quote.Mode)),
		strings.TrimSpace(quote.Amount))
	if err != nil {
		return "", fmt.Errorf("insert quote: %w", err)
	}
	return id, nil
}

// RecentQuotes returns the latest quotes served for a sale, newest first.
func (s *Storage) RecentQuotes(ctx context.Context, saleID uint64, limit int) ([]Quote, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, ts, sale_id, asset, mode, amount
        FROM quote_log
        WHERE sale_id = ?
        ORDER BY ts DESC, id DESC
        LIMIT ?
    `, saleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]Quote, 0, limit)
	for rows.Next() {
		var quote Quote
		if err := rows.Scan(&quote.ID, &quote.At, &quote.SaleID, &quote.Asset, &quote.Mode, &quote.Amount); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, quote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return quotes, nil
}
