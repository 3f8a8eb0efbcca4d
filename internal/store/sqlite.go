package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// SQLiteStore holds events, their FTS5 index and bot sessions in one database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ RecordStore  = (*SQLiteStore)(nil)
	_ SessionStore = (*SQLiteStore)(nil)
	_ TextIndex    = (*SQLiteStore)(nil)
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS events (
	event_id          TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	embedding_text    TEXT NOT NULL,
	canonical_form    TEXT NOT NULL DEFAULT '{}',
	authority         REAL NOT NULL DEFAULT 0,
	freshness         TEXT,
	data_period_start TEXT,
	data_period_end   TEXT,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
CREATE INDEX IF NOT EXISTS idx_events_freshness ON events(freshness);

-- event_id is stored but not searchable
CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	event_id UNINDEXED,
	embedding_text,
	source,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id             TEXT PRIMARY KEY,
	date                   TEXT NOT NULL,
	first_timestamp        TEXT,
	last_timestamp         TEXT,
	total_cycles           INTEGER NOT NULL DEFAULT 0,
	total_trades           INTEGER NOT NULL DEFAULT 0,
	initial_lots           REAL NOT NULL DEFAULT 0,
	final_lots             REAL NOT NULL DEFAULT 0,
	initial_pnl_pct        REAL NOT NULL DEFAULT 0,
	final_pnl_pct          REAL NOT NULL DEFAULT 0,
	sleeping_market_cycles INTEGER NOT NULL DEFAULT 0,
	cooldown_cycles        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date);
`

// OpenSQLiteStore opens or creates the database at path. An empty path opens
// an in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, ragerrors.StorageError("failed to create database directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseOpen, "failed to open database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN params, so pragmas are set explicitly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, ragerrors.New(ragerrors.ErrCodeDatabaseOpen, "failed to set pragma", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseOpen, "failed to initialize schema", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		_ = db.Close()
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseOpen, "failed to record schema version", err)
	}

	slog.Debug("sqlite_store_opened", slog.String("path", path))
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path ("" for in-memory).
func (s *SQLiteStore) Path() string { return s.path }

// SaveEvents upserts events and keeps events_fts in sync.
func (s *SQLiteStore) SaveEvents(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, source, embedding_text, canonical_form, authority,
			freshness, data_period_start, data_period_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			source = excluded.source,
			embedding_text = excluded.embedding_text,
			canonical_form = excluded.canonical_form,
			authority = excluded.authority,
			freshness = excluded.freshness,
			data_period_start = excluded.data_period_start,
			data_period_end = excluded.data_period_end`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsert.Close()

	now := formatTime(time.Now())
	for _, ev := range events {
		if ev.ID == "" {
			return ragerrors.ValidationError("event without id", nil)
		}
		canonical, err := json.Marshal(nonNilMap(ev.CanonicalForm))
		if err != nil {
			return fmt.Errorf("failed to encode canonical form for %s: %w", ev.ID, err)
		}
		if _, err := upsert.ExecContext(ctx, ev.ID, ev.Source, ev.EmbeddingText, string(canonical),
			ev.Authority, nullTime(&ev.Freshness), nullTime(ev.PeriodStart), nullTime(ev.PeriodEnd), now); err != nil {
			return fmt.Errorf("failed to save event %s: %w", ev.ID, err)
		}
	}

	if err := reindexFTS(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

// Index rewrites the FTS rows for events. SaveEvents already does this; it is
// exposed so the index command can repair events_fts.
func (s *SQLiteStore) Index(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := reindexFTS(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

// reindexFTS replaces FTS rows. FTS5 virtual tables don't support REPLACE.
func reindexFTS(ctx context.Context, tx *sql.Tx, events []*Event) error {
	del, err := tx.PrepareContext(ctx, `DELETE FROM events_fts WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO events_fts(event_id, embedding_text, source) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS insert: %w", err)
	}
	defer ins.Close()

	for _, ev := range events {
		if _, err := del.ExecContext(ctx, ev.ID); err != nil {
			return fmt.Errorf("failed to clear FTS row %s: %w", ev.ID, err)
		}
		if _, err := ins.ExecContext(ctx, ev.ID, ev.EmbeddingText, ev.Source); err != nil {
			return fmt.Errorf("failed to index event %s: %w", ev.ID, err)
		}
	}
	return nil
}

const eventColumns = `e.event_id, e.source, e.embedding_text, e.canonical_form, e.authority,
	e.freshness, e.data_period_start, e.data_period_end`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, extra ...any) (*Event, error) {
	var (
		ev                  Event
		canonical           string
		fresh, pStart, pEnd sql.NullString
	)
	dest := append([]any{&ev.ID, &ev.Source, &ev.EmbeddingText, &canonical, &ev.Authority, &fresh, &pStart, &pEnd}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	ev.CanonicalForm = map[string]any{}
	if canonical != "" {
		if err := json.Unmarshal([]byte(canonical), &ev.CanonicalForm); err != nil {
			slog.Warn("event_canonical_form_invalid",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()))
		}
	}
	if t := parseNullTime(fresh); t != nil {
		ev.Freshness = *t
	}
	ev.PeriodStart = parseNullTime(pStart)
	ev.PeriodEnd = parseNullTime(pEnd)
	return &ev, nil
}

// GetByID returns the event or (nil, nil) when it does not exist.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.event_id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "failed to load event", err).WithDetail("event_id", id)
	}
	return ev, nil
}

// SearchText ranks events with FTS5 bm25. Scores are negated so higher is
// better. Malformed match expressions yield no results rather than an error.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, k int) ([]TextHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	match := ftsMatchExpr(query)
	if match == "" || k <= 0 {
		return []TextHit{}, nil
	}

	// bm25() returns negative values where lower = better match
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`, bm25(events_fts) AS score
		FROM events_fts
		JOIN events e ON e.event_id = events_fts.event_id
		WHERE events_fts MATCH ?
		ORDER BY score
		LIMIT ?`, match, k)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			slog.Warn("fts_query_rejected",
				slog.String("query", query),
				slog.String("error", err.Error()))
			return []TextHit{}, nil
		}
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "full-text search failed", err)
	}
	defer rows.Close()

	hits := []TextHit{}
	for rows.Next() {
		var score float64
		ev, err := scanEvent(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, TextHit{
			ID:       ev.ID,
			Content:  ev.EmbeddingText,
			Metadata: ev.Metadata(),
			Rank:     -score,
		})
	}
	return hits, rows.Err()
}

// SearchMetadata lists events matching structured filters, freshest first.
func (s *SQLiteStore) SearchMetadata(ctx context.Context, f MetadataFilter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	query := `SELECT ` + eventColumns + ` FROM events e WHERE 1=1`
	var args []any
	if f.Source != "" {
		query += ` AND e.source = ?`
		args = append(args, f.Source)
	}
	if f.MinAuthority > 0 {
		query += ` AND e.authority >= ?`
		args = append(args, f.MinAuthority)
	}
	if !f.Since.IsZero() {
		query += ` AND e.freshness >= ?`
		args = append(args, formatTime(f.Since))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY e.freshness DESC LIMIT ?`
	args = append(args, limit)

	return s.queryEvents(ctx, query, args...)
}

// Events returns every event in insertion order, for index rebuilds.
func (s *SQLiteStore) Events(ctx context.Context) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e ORDER BY e.rowid`)
}

func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "event query failed", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents counts events, optionally restricted to one source.
func (s *SQLiteStore) CountEvents(ctx context.Context, source string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int
	var err error
	if source != "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE source = ?`, source).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	}
	if err != nil {
		return 0, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "count failed", err)
	}
	return count, nil
}

// SaveSessions upserts session summaries.
func (s *SQLiteStore) SaveSessions(ctx context.Context, sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO sessions (session_id, date, first_timestamp, last_timestamp,
			total_cycles, total_trades, initial_lots, final_lots, initial_pnl_pct, final_pnl_pct,
			sleeping_market_cycles, cooldown_cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare session upsert: %w", err)
	}
	defer stmt.Close()

	for _, ss := range sessions {
		if ss.ID == "" {
			return ragerrors.ValidationError("session without id", nil)
		}
		date := ss.Date
		if date == "" && !ss.FirstTimestamp.IsZero() {
			date = ss.FirstTimestamp.UTC().Format("2006-01-02")
		}
		if _, err := stmt.ExecContext(ctx, ss.ID, date, nullTime(&ss.FirstTimestamp), nullTime(&ss.LastTimestamp),
			ss.TotalCycles, ss.TotalTrades, ss.InitialLots, ss.FinalLots, ss.InitialPnLPct, ss.FinalPnLPct,
			ss.SleepingMarketCycles, ss.CooldownCycles); err != nil {
			return fmt.Errorf("failed to save session %s: %w", ss.ID, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `session_id, date, first_timestamp, last_timestamp, total_cycles, total_trades,
	initial_lots, final_lots, initial_pnl_pct, final_pnl_pct, sleeping_market_cycles, cooldown_cycles`

func scanSession(row rowScanner) (*Session, error) {
	var ss Session
	var first, last sql.NullString
	if err := row.Scan(&ss.ID, &ss.Date, &first, &last, &ss.TotalCycles, &ss.TotalTrades,
		&ss.InitialLots, &ss.FinalLots, &ss.InitialPnLPct, &ss.FinalPnLPct,
		&ss.SleepingMarketCycles, &ss.CooldownCycles); err != nil {
		return nil, err
	}
	if t := parseNullTime(first); t != nil {
		ss.FirstTimestamp = *t
	}
	if t := parseNullTime(last); t != nil {
		ss.LastTimestamp = *t
	}
	return &ss, nil
}

var (
	dashedDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	compactDate = regexp.MustCompile(`^\d{8}$`)
)

// GetSession finds a session by id or by date. Dates match either the date
// column or session ids embedding the compact date (20260130).
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*Session, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	args := []any{key}
	if dashed, compact, ok := normalizeDate(key); ok {
		query += ` OR date = ? OR session_id LIKE ?`
		args = append(args, dashed, "%"+compact+"%")
	}
	query += ` ORDER BY (session_id = ?) DESC, first_timestamp DESC LIMIT 1`
	args = append(args, key)

	ss, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "session lookup failed", err)
	}
	return ss, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY date DESC, first_timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeDatabaseQuery, "session list failed", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *ss)
	}
	return sessions, rows.Err()
}

// normalizeDate maps 2026-01-30 and 20260130 onto both forms.
func normalizeDate(key string) (dashed, compact string, ok bool) {
	switch {
	case dashedDate.MatchString(key):
		return key, strings.ReplaceAll(key, "-", ""), true
	case compactDate.MatchString(key):
		return key[:4] + "-" + key[4:6] + "-" + key[6:], key, true
	default:
		return "", "", false
	}
}

// IntegrityCheck runs PRAGMA integrity_check.
func (s *SQLiteStore) IntegrityCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "integrity check failed", err)
	}
	if result != "ok" {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "database corrupted: "+result, nil)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
