package perflog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quilldict/quill/internal/config"
)

// Record is one row of the performance log: a single session's timings
// and outcome. EnhanceMS is nil when enhancement was not attempted.
type Record struct {
	ID              int64
	SessionID       uint64
	StartedAt       time.Time
	StoppedAt       time.Time
	AudioMS         int64
	TranscribeMS    int64
	EnhanceMS       *int64
	TotalMS         int64
	Outcome         string
	EnhanceFallback bool
	TextLength      int
	Model           string
	CreatedAt       time.Time
}

// Store wraps the SQLite-backed performance log. Appends from concurrent
// session pipelines are safe; database/sql serializes the writes.
type Store struct {
	db    *sql.DB
	cfg   config.PerfLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the performance log according to config.
func Open(ctx context.Context, cfg config.PerfLogConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("perf log vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("perf log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS perf_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    stopped_at TIMESTAMP NOT NULL,
    audio_ms INTEGER NOT NULL,
    transcribe_ms INTEGER NOT NULL,
    enhance_ms INTEGER,
    total_ms INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    enhance_fallback INTEGER NOT NULL DEFAULT 0,
    text_length INTEGER NOT NULL DEFAULT 0,
    model TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_perf_records_created ON perf_records(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one record. The log is append-only; rows are never
// updated.
func (s *Store) Append(ctx context.Context, r Record) error {
	var enhance sql.NullInt64
	if r.EnhanceMS != nil {
		enhance = sql.NullInt64{Int64: *r.EnhanceMS, Valid: true}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO perf_records(session_id, started_at, stopped_at, audio_ms, transcribe_ms, enhance_ms, total_ms, outcome, enhance_fallback, text_length, model, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.StartedAt.UTC(), r.StoppedAt.UTC(), r.AudioMS, r.TranscribeMS, enhance,
		r.TotalMS, r.Outcome, boolToInt(r.EnhanceFallback), r.TextLength, r.Model, r.CreatedAt)
	return err
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, started_at, stopped_at, audio_ms, transcribe_ms, enhance_ms, total_ms, outcome, enhance_fallback, text_length, model, created_at
		 FROM perf_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r              Record
			enhance        sql.NullInt64
			fallback       int
			model          sql.NullString
			started, stop  string
			created        string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &started, &stop, &r.AudioMS, &r.TranscribeMS, &enhance, &r.TotalMS, &r.Outcome, &fallback, &r.TextLength, &model, &created); err != nil {
			return nil, err
		}
		if enhance.Valid {
			v := enhance.Int64
			r.EnhanceMS = &v
		}
		r.EnhanceFallback = fallback != 0
		r.Model = model.String
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, stop); err == nil {
			r.StoppedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune applies the configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM perf_records WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM perf_records WHERE id IN (
			SELECT id FROM perf_records ORDER BY id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
