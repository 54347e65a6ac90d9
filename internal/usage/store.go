// Package usage keeps per-hotkey activation statistics in a local sqlite
// database. Recording never blocks the caller: activations are queued and a
// writer goroutine folds them into batched upserts.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"quol-input/internal/workerutil"
)

const (
	defaultQueueSize     = 512
	defaultBatchSize     = 64
	defaultFlushInterval = 2 * time.Second
	busyTimeoutMillis    = 5000
)

const schema = `CREATE TABLE IF NOT EXISTS hotkey_usage (
	combo           TEXT PRIMARY KEY,
	count           INTEGER NOT NULL DEFAULT 0,
	last_fired_unix INTEGER NOT NULL DEFAULT 0
)`

const upsert = `INSERT INTO hotkey_usage (combo, count, last_fired_unix) VALUES (?, ?, ?)
ON CONFLICT(combo) DO UPDATE SET
	count = hotkey_usage.count + excluded.count,
	last_fired_unix = max(hotkey_usage.last_fired_unix, excluded.last_fired_unix)`

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("usage store closed")

// Entry is the accumulated usage of one combo.
type Entry struct {
	Combo     string    `json:"combo"`
	Count     int64     `json:"count"`
	LastFired time.Time `json:"last_fired"`
}

// Options tunes the writer. Zero values select defaults.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	return o
}

type activation struct {
	combo string
	at    int64
}

type tally struct {
	count int64
	last  int64
}

// Store is the usage database plus its writer.
type Store struct {
	db   *sql.DB
	opts Options

	queue    chan activation
	flushReq chan chan error
	dropped  atomic.Uint64
	closed   atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database at path and starts the writer.
func Open(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("usage database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	// One connection keeps pragmas and the writer on the same handle.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis),
		"PRAGMA journal_mode = WAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize usage database: %w", err)
		}
	}

	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		opts:     opts,
		queue:    make(chan activation, opts.QueueSize),
		flushReq: make(chan chan error),
		ctx:      ctx,
		cancel:   cancel,
	}
	workerutil.RunWithPanicRecovery(ctx, "usage-writer", &s.workers, s.writeLoop, workerutil.RecoveryOptions{})
	slog.Debug("[DEBUG-USAGE] usage store opened", "path", path)
	return s, nil
}

// Record queues one activation of combo. It never blocks: when the queue is
// full the activation is dropped and false is returned.
func (s *Store) Record(combo string) bool {
	if combo == "" || s.closed.Load() {
		return false
	}
	select {
	case s.queue <- activation{combo: combo, at: time.Now().Unix()}:
		return true
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("[WARN-USAGE] usage queue full, dropping activations", "dropped", n)
		}
		return false
	}
}

// Dropped returns the number of activations lost to a full queue.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Flush writes every activation queued before the call.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	reply := make(chan error, 1)
	select {
	case s.flushReq <- reply:
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Top returns the n most used combos, most used first. n <= 0 returns all.
func (s *Store) Top(ctx context.Context, n int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	limit := n
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT combo, count, last_fired_unix FROM hotkey_usage ORDER BY count DESC, combo ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var last int64
		if err := rows.Scan(&e.Combo, &e.Count, &last); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		e.LastFired = time.Unix(last, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reset deletes all statistics.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hotkey_usage`); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

// Close stops the writer after a final flush and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.workers.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *Store) writeLoop(ctx context.Context) {
	pending := make(map[string]tally)
	queued := 0
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	add := func(a activation) {
		t := pending[a.combo]
		t.count++
		t.last = max(t.last, a.at)
		pending[a.combo] = t
		queued++
	}
	drain := func() {
		for {
			select {
			case a := <-s.queue:
				add(a)
			default:
				return
			}
		}
	}
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := s.write(pending)
		if err != nil {
			slog.Warn("[WARN-USAGE] failed to write usage batch", "combos", len(pending), "error", err)
		}
		// A failed batch is discarded; statistics are best effort.
		clear(pending)
		queued = 0
		return err
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			_ = flush()
			return
		case a := <-s.queue:
			add(a)
			if queued >= s.opts.BatchSize {
				_ = flush()
			}
		case <-ticker.C:
			_ = flush()
		case reply := <-s.flushReq:
			drain()
			reply <- flush()
		}
	}
}

func (s *Store) write(pending map[string]tally) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(upsert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for combo, t := range pending {
		if _, err := stmt.Exec(combo, t.count, t.last); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
