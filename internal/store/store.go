// Package store is the sole owner of the targets and content_items tables.
// It enforces native-id uniqueness for content and handle uniqueness for
// targets; callers always read through, never cache.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrUnavailable marks a failure to reach the underlying database. Fatal at
// startup, a log-and-skip condition everywhere else.
var ErrUnavailable = errors.New("store unavailable")

// ErrNotFound is returned by write paths that address a missing row.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id TEXT PRIMARY KEY,
	handle TEXT UNIQUE NOT NULL,
	case_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS content_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id TEXT NOT NULL REFERENCES targets(id),
	native_id TEXT UNIQUE NOT NULL,
	kind TEXT NOT NULL,
	captured_at TIMESTAMP NOT NULL,
	locator TEXT NOT NULL,
	caption TEXT,
	summary TEXT,
	full_analysis TEXT
);
CREATE INDEX IF NOT EXISTS idx_content_items_target ON content_items(target_id);
CREATE INDEX IF NOT EXISTS idx_content_items_pending ON content_items(kind) WHERE full_analysis IS NULL;
`

// Store wraps the SQLite database holding targets and content items.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open initializes the database at path (":memory:" for tests) and ensures
// the schema exists.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w: %w", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", ErrUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w: %w", ErrUnavailable, err)
	}

	log.Debug("store opened", zap.String("path", path))
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const caseIDLen = 12

const caseIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCaseID mints the external-facing dossier identifier: 12 random
// alphanumerics, matching the shape the case frontend expects.
func newCaseID() (string, error) {
	out := make([]byte, caseIDLen)
	max := big.NewInt(int64(len(caseIDAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate case id: %w", err)
		}
		out[i] = caseIDAlphabet[n.Int64()]
	}
	return string(out), nil
}

// RegisterTarget creates a target for handle, or returns the existing one.
// Re-registering is always safe; the original case id is preserved.
func (s *Store) RegisterTarget(ctx context.Context, handle string) (Target, error) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return Target{}, fmt.Errorf("empty handle")
	}

	if existing, ok, err := s.FindTarget(ctx, normalized); err != nil {
		return Target{}, err
	} else if ok {
		s.log.Debug("target already registered", zap.String("handle", normalized))
		return existing, nil
	}

	caseID, err := newCaseID()
	if err != nil {
		return Target{}, err
	}
	now := s.now().UTC()
	t := Target{
		ID:        uuid.NewString(),
		Handle:    normalized,
		CaseID:    caseID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targets (id, handle, case_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Handle, t.CaseID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Target{}, fmt.Errorf("register target %s: %w: %w", normalized, ErrUnavailable, err)
	}

	s.log.Info("target registered",
		zap.String("handle", t.Handle), zap.String("case_id", t.CaseID))
	return t, nil
}

// ListTargets returns all registered targets, newest first.
func (s *Store) ListTargets(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, case_id, created_at, updated_at FROM targets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ID, &t.Handle, &t.CaseID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// FindTarget looks up a target by handle.
func (s *Store) FindTarget(ctx context.Context, handle string) (Target, bool, error) {
	var t Target
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, case_id, created_at, updated_at FROM targets WHERE handle = ?`,
		NormalizeHandle(handle)).
		Scan(&t.ID, &t.Handle, &t.CaseID, &t.CreatedAt, &t.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Target{}, false, nil
	case err != nil:
		return Target{}, false, fmt.Errorf("find target %s: %w: %w", handle, ErrUnavailable, err)
	}
	return t, true, nil
}

// ItemExists reports whether a content item with the platform-native id is
// already stored. The native id is the deduplication key.
func (s *Store) ItemExists(ctx context.Context, nativeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM content_items WHERE native_id = ?`, nativeID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("item exists %s: %w: %w", nativeID, ErrUnavailable, err)
	}
	return true, nil
}

// SaveItemParams carries a new content item into SaveItem.
type SaveItemParams struct {
	TargetID   string
	NativeID   string
	Kind       Kind
	CapturedAt time.Time
	Locator    string
	Caption    string
}

// SaveItem persists a content item. A duplicate native id is a silent
// success. A real insert bumps the owning target's freshness timestamp in
// the same transaction.
func (s *Store) SaveItem(ctx context.Context, p SaveItemParams) error {
	if p.NativeID == "" || p.TargetID == "" || p.Locator == "" {
		return fmt.Errorf("save item: missing target id, native id or locator")
	}
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return fmt.Errorf("save item %s: %w", p.NativeID, err)
	}
	capturedAt := p.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save item %s: %w: %w", p.NativeID, ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO content_items
		 (target_id, native_id, kind, captured_at, locator, caption)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
		p.TargetID, p.NativeID, string(p.Kind), capturedAt, p.Locator, p.Caption)
	if err != nil {
		return fmt.Errorf("save item %s: %w: %w", p.NativeID, ErrUnavailable, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save item %s: %w", p.NativeID, err)
	}
	if inserted == 0 {
		// Duplicate native id: another sweep already stored it.
		s.log.Debug("item already stored", zap.String("native_id", p.NativeID))
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE targets SET updated_at = ? WHERE id = ?`, s.now().UTC(), p.TargetID); err != nil {
		return fmt.Errorf("bump target freshness: %w: %w", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save item %s: %w: %w", p.NativeID, ErrUnavailable, err)
	}
	return nil
}

const itemColumns = `id, target_id, native_id, kind, captured_at, locator,
	COALESCE(caption, ''), COALESCE(summary, ''), COALESCE(full_analysis, '')`

// FindUnanalyzed returns the pending video items. Images never appear here:
// they are stored as evidence but excluded from LLM analysis by policy.
func (s *Store) FindUnanalyzed(ctx context.Context) ([]ContentItem, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE kind = ? AND full_analysis IS NULL ORDER BY captured_at`,
		string(KindVideo))
}

// FindUnanalyzedForTarget is FindUnanalyzed restricted to one target.
func (s *Store) FindUnanalyzedForTarget(ctx context.Context, targetID string) ([]ContentItem, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE kind = ? AND full_analysis IS NULL AND target_id = ? ORDER BY captured_at`,
		string(KindVideo), targetID)
}

// ListItems returns every stored item for a target, newest capture first.
func (s *Store) ListItems(ctx context.Context, targetID string) ([]ContentItem, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE target_id = ? ORDER BY captured_at DESC`,
		targetID)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		var it ContentItem
		var kind string
		if err := rows.Scan(&it.ID, &it.TargetID, &it.NativeID, &kind, &it.CapturedAt,
			&it.Locator, &it.Caption, &it.Summary, &it.FullAnalysis); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Kind = Kind(kind)
		items = append(items, it)
	}
	return items, rows.Err()
}

// WriteAnalysis records the investigator's output for one item. Summary and
// full analysis are written together in one statement so an item can never
// end up with one and not the other; the owning target's freshness is
// bumped in the same transaction. Writing retires the item from
// FindUnanalyzed permanently.
func (s *Store) WriteAnalysis(ctx context.Context, nativeID, summary, fullAnalysis string) error {
	if summary == "" || fullAnalysis == "" {
		return fmt.Errorf("write analysis %s: summary and full analysis are both required", nativeID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write analysis %s: %w: %w", nativeID, ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE content_items SET summary = ?, full_analysis = ? WHERE native_id = ?`,
		summary, fullAnalysis, nativeID)
	if err != nil {
		return fmt.Errorf("write analysis %s: %w: %w", nativeID, ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write analysis %s: %w", nativeID, err)
	} else if n == 0 {
		return fmt.Errorf("write analysis %s: %w", nativeID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE targets SET updated_at = ?
		 WHERE id = (SELECT target_id FROM content_items WHERE native_id = ?)`,
		s.now().UTC(), nativeID); err != nil {
		return fmt.Errorf("bump target freshness: %w: %w", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write analysis %s: %w: %w", nativeID, ErrUnavailable, err)
	}

	s.log.Info("analysis written", zap.String("native_id", nativeID))
	return nil
}
