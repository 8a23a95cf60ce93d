package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access for warm-up, backtests and the signal
// history endpoint.
type Reader struct {
	db *sql.DB
}

// NewReader opens a read connection pool on dbPath.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

const tickColumns = `pair, ts, price, high, low, close, volume`

func scanTicks(rows *sql.Rows) ([]model.Tick, error) {
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var ns int64
		if err := rows.Scan(&t.Pair, &ns, &t.Price, &t.High, &t.Low, &t.Close, &t.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan tick: %w", err)
		}
		t.TS = time.Unix(0, ns).UTC()
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ReadTicks returns up to limit ticks of pair strictly after after, oldest
// first. limit <= 0 means no limit.
func (r *Reader) ReadTicks(pair string, after time.Time, limit int) ([]model.Tick, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+tickColumns+` FROM ticks
		WHERE pair = ? AND ts > ? ORDER BY ts ASC LIMIT ?`,
		pair, unixNano(after), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	return scanTicks(rows)
}

// ReadRecentTicks returns the newest n ticks of pair, oldest first.
func (r *Reader) ReadRecentTicks(pair string, n int) ([]model.Tick, error) {
	rows, err := r.db.Query(`SELECT `+tickColumns+` FROM
		(SELECT `+tickColumns+` FROM ticks WHERE pair = ? ORDER BY ts DESC LIMIT ?)
		ORDER BY ts ASC`, pair, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent ticks: %w", err)
	}
	return scanTicks(rows)
}

// ReadAllTicks returns every tick after after across all pairs, ordered
// by timestamp.
func (r *Reader) ReadAllTicks(after time.Time) ([]model.Tick, error) {
	rows, err := r.db.Query(`SELECT `+tickColumns+` FROM ticks
		WHERE ts > ? ORDER BY ts ASC, pair ASC`, unixNano(after))
	if err != nil {
		return nil, fmt.Errorf("sqlite query all ticks: %w", err)
	}
	return scanTicks(rows)
}

// ReadSignals returns the newest limit signals of pair, newest first.
// An empty pair matches every pair.
func (r *Reader) ReadSignals(pair string, limit int) ([]model.SignalEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, pair, action, kind, price, fast, slow, COALESCE(reason, ''), ts
		FROM signals
		WHERE (? = '' OR pair = ?)
		ORDER BY ts DESC
		LIMIT ?`, pair, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.SignalEvent
	for rows.Next() {
		var ev model.SignalEvent
		var ns int64
		if err := rows.Scan(&ev.ID, &ev.Pair, &ev.Action, &ev.Kind, &ev.Price, &ev.Fast, &ev.Slow, &ev.Reason, &ns); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		ev.TS = time.Unix(0, ns).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReadLatestSnapshotJSON returns nil, nil when no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	return latestSnapshot(r.db)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

// unixNano maps the zero time to 0 so "after zero" means "everything".
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
