package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"glint/internal/classify"
	"glint/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the
// schema changes; existing databases must be cleared afterwards.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't
// match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Record is one persisted scan.
type Record struct {
	ID        int64
	ScanID    string
	Text      string
	Format    string
	Category  classify.Category
	DeviceID  string
	Facing    string
	SessionID string
	CreatedAt time.Time
}

// Stats summarizes the stored history.
type Stats struct {
	Total      int
	MaxEntries int
	ByCategory map[classify.Category]int
}

// Health reports database diagnostics.
type Health struct {
	DBPath           string
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalScans       int
	Error            string
}

// Store manages scan history persistence backed by SQLite.
type Store struct {
	db         *sql.DB
	path       string
	maxEntries int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const recordColumns = "id, scan_id, text, format, category, device_id, facing, session_id, created_at"

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxEntries: cfg.History.MaxEntries}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'glint history clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// AddScan inserts a scan and evicts the oldest rows past the cap in
// the same transaction, keeping the FIFO bound atomic with the insert.
func (s *Store) AddScan(ctx context.Context, rec Record) (*Record, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(rec.Text) == "" {
		return nil, errors.New("scan text is required")
	}
	if rec.ScanID == "" {
		rec.ScanID = uuid.NewString()
	}
	if rec.Category == "" {
		rec.Category = classify.CategoryText
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO scans (scan_id, text, format, category, device_id, facing, session_id, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ScanID,
			rec.Text,
			rec.Format,
			string(rec.Category),
			nullableString(rec.DeviceID),
			nullableString(rec.Facing),
			nullableString(rec.SessionID),
			createdAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if s.maxEntries > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM scans WHERE id NOT IN (SELECT id FROM scans ORDER BY id DESC LIMIT ?)`,
				s.maxEntries,
			); err != nil {
				return fmt.Errorf("evict overflow: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a scan by row identifier. A missing row yields
// (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM scans WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit scans, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = s.maxEntries
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM scans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return records, nil
}

// Remove deletes a single scan by row identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove scan: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all stored scans and reports how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM scans`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return removed, nil
}

// Stats returns aggregate history counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{MaxEntries: s.maxEntries, ByCategory: make(map[classify.Category]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(1) FROM scans GROUP BY category`)
	if err != nil {
		return Stats{}, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByCategory[classify.Category(category)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// CheckHealth runs integrity diagnostics against the database.
func (s *Store) CheckHealth(ctx context.Context) Health {
	ctx = ensureContext(ctx)
	health := Health{DBPath: s.path}

	if err := s.db.PingContext(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = fmt.Sprintf("read schema version: %v", err)
		return health
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM scans").Scan(&health.TotalScans); err != nil {
		health.Error = fmt.Sprintf("count scans: %v", err)
		return health
	}
	return health
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		category  string
		deviceID  sql.NullString
		facing    sql.NullString
		sessionID sql.NullString
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.ScanID, &rec.Text, &rec.Format, &category,
		&deviceID, &facing, &sessionID, &createdAt); err != nil {
		return nil, err
	}
	rec.Category = classify.Category(category)
	rec.DeviceID = deviceID.String
	rec.Facing = facing.String
	rec.SessionID = sessionID.String
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	return &rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
