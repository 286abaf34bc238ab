package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

var ErrNotOpen = errors.New("journal not open")

// LocationProvider returns the last known position, if any.
type LocationProvider interface {
	Location(ctx context.Context) (types.Location, bool)
}

// Break is one journal row.
type Break struct {
	ID          string
	StartedAt   time.Time
	EndedAt     *time.Time
	ThresholdAt *time.Time
	Duration    time.Duration
	Location    *types.Location
}

// Journal records breaks in a local SQLite database.
type Journal struct {
	logger *logger.Logger
	db     *sql.DB
	locate LocationProvider
	newID  func() string

	mu     sync.Mutex
	openID string
	closed bool
}

// Open opens (creating if needed) the journal at path. ":memory:" gives a
// throwaway journal.
func Open(path string, l *logger.Logger) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// one writer, and an in-memory database only lives on its own connection
	db.SetMaxOpenConns(1)

	if err := InitDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		logger: l.WithTag("Journal"),
		db:     db,
		newID:  func() string { return uuid.NewString() },
	}, nil
}

// InitDB creates the schema.
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS break (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		threshold_at TEXT,
		duration_seconds INTEGER,
		latitude REAL,
		longitude REAL
	);

	CREATE INDEX IF NOT EXISTS idx_break_started_at ON break(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetLocationProvider attaches a position source used when a break begins.
func (j *Journal) SetLocationProvider(p LocationProvider) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.locate = p
}

func (j *Journal) BeginBreak(ctx context.Context, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrNotOpen
	}

	if j.openID != "" {
		j.logger.Warnf("Break %s was never ended, closing it at %s", j.openID, formatTime(at))
		if err := j.endLocked(ctx, at); err != nil {
			return err
		}
	}

	var lat, lon sql.NullFloat64
	if j.locate != nil {
		if loc, ok := j.locate.Location(ctx); ok {
			lat = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		}
	}

	id := j.newID()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO break (id, started_at, latitude, longitude)
		VALUES (?,?,?,?)`,
		id, formatTime(at), lat, lon)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	j.openID = id
	j.logger.Debugf("Break %s started", id)
	return nil
}

func (j *Journal) EndBreak(ctx context.Context, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrNotOpen
	}

	if j.openID == "" {
		j.logger.Debugf("No open break to end")
		return nil
	}
	return j.endLocked(ctx, at)
}

func (j *Journal) ThresholdCrossed(ctx context.Context, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrNotOpen
	}

	if j.openID == "" {
		// rest before the first activation has no journal row
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE break SET threshold_at = ? WHERE id = ? AND threshold_at IS NULL`,
		formatTime(at), j.openID)
	if err != nil {
		return fmt.Errorf("journal threshold: %w", err)
	}
	return nil
}

func (j *Journal) endLocked(ctx context.Context, at time.Time) error {
	var started string
	err := j.db.QueryRowContext(ctx, `SELECT started_at FROM break WHERE id = ?`, j.openID).Scan(&started)
	if err != nil {
		return fmt.Errorf("journal end: %w", err)
	}
	start, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return fmt.Errorf("journal end: bad start time %q: %w", started, err)
	}

	_, err = j.db.ExecContext(ctx,
		`UPDATE break SET ended_at = ?, duration_seconds = ? WHERE id = ?`,
		formatTime(at), int64(at.Sub(start)/time.Second), j.openID)
	if err != nil {
		return fmt.Errorf("journal end: %w", err)
	}
	j.logger.Infof("Break %s ended after %s", j.openID, at.Sub(start).Round(time.Second))
	j.openID = ""
	return nil
}

// Recent returns up to limit breaks, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Break, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrNotOpen
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, threshold_at, duration_seconds, latitude, longitude
		FROM break ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	var breaks []Break
	for rows.Next() {
		var (
			b                Break
			started          string
			ended, threshold sql.NullString
			duration         sql.NullInt64
			lat, lon         sql.NullFloat64
		)
		if err := rows.Scan(&b.ID, &started, &ended, &threshold, &duration, &lat, &lon); err != nil {
			return nil, fmt.Errorf("journal list: %w", err)
		}
		if b.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("journal list: bad start time %q for break %s: %w", started, b.ID, err)
		}
		b.EndedAt = parseNullTime(ended)
		b.ThresholdAt = parseNullTime(threshold)
		if duration.Valid {
			b.Duration = time.Duration(duration.Int64) * time.Second
		}
		if lat.Valid && lon.Valid {
			b.Location = &types.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// fixed width so started_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
