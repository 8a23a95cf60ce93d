package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // e.g. "data/signals.db"
}

// Writer is a single-connection SQLite writer. Ticks are batched into
// transactions; signals and snapshots are written immediately.
type Writer struct {
	db *sql.DB

	// OnCommit, when set, observes each tick batch commit.
	OnCommit func(d time.Duration, n int, err error)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

// Prices and volumes are stored as decimal text; ts is Unix nanoseconds.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			pair   TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  TEXT    NOT NULL,
			high   TEXT    NOT NULL DEFAULT '0',
			low    TEXT    NOT NULL DEFAULT '0',
			close  TEXT    NOT NULL DEFAULT '0',
			volume TEXT    NOT NULL DEFAULT '0',
			PRIMARY KEY (pair, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id     TEXT    PRIMARY KEY,
			pair   TEXT    NOT NULL,
			action TEXT    NOT NULL,
			kind   TEXT    NOT NULL,
			price  REAL    NOT NULL,
			fast   REAL    NOT NULL,
			slow   REAL    NOT NULL,
			reason TEXT,
			ts     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS signals_pair_ts ON signals (pair, ts);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads ticks from tickCh and inserts them in batched transactions,
// flushing every defaultBatchSize ticks or defaultFlushDelay, whichever
// comes first. It blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.InsertTicks(batch); err != nil {
			log.Printf("[sqlite] tick batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case t, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertTicks stores ticks in one transaction. A tick repeating a
// (pair, ts) key replaces the earlier one.
func (w *Writer) InsertTicks(ticks []model.Tick) (err error) {
	start := time.Now()
	defer func() {
		if w.OnCommit != nil {
			w.OnCommit(time.Since(start), len(ticks), err)
		}
	}()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ticks (pair, ts, price, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err = stmt.Exec(t.Pair, t.TS.UnixNano(), t.Price, t.High, t.Low, t.Close, t.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// PublishSignal records ev. It implements model.SignalSink so the signal
// history can sit on the same fan-out as Redis.
func (w *Writer) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (id, pair, action, kind, price, fast, slow, reason, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Pair, ev.Action, ev.Kind, ev.Price, ev.Fast, ev.Slow, ev.Reason, ev.TS.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert signal %s: %w", ev.ID, err)
	}
	return nil
}

// SaveSnapshotJSON appends a snapshot and prunes all but the newest few.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	if _, err := w.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err := w.db.Exec(`DELETE FROM engine_snapshots WHERE id NOT IN
		(SELECT id FROM engine_snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotJSON returns nil, nil when no snapshot exists.
func (w *Writer) ReadLatestSnapshotJSON() ([]byte, error) {
	return latestSnapshot(w.db)
}

func latestSnapshot(db *sql.DB) ([]byte, error) {
	var data string
	err := db.QueryRow(`SELECT data FROM engine_snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
