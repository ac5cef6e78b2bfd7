package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timing is one measured pipeline stage.
type Timing struct {
	Stage     string
	OK        bool
	Duration  time.Duration
	CreatedAt time.Time
}

// StageSummary aggregates the timings of one stage.
type StageSummary struct {
	Stage    string  `json:"stage"`
	Count    int64   `json:"count"`
	Failures int64   `json:"failures"`
	AvgMs    float64 `json:"avg_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// Metrics buffers stage timings and flushes them to the stage_timings
// table in batches. Observe never blocks on the database: a full buffer
// wakes the flusher goroutine, and while the database is unavailable the
// buffer keeps at most maxBuffered timings, dropping the oldest.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	maxBuffered   int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []Timing
	dropped int64

	// flushMu serializes writers so a batch is never inserted twice.
	flushMu sync.Mutex

	flushNow  chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMetrics starts a flusher writing to db, which must carry Schema.
// Zero values select a buffer of 100 timings and a 5s interval.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *Metrics {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		maxBuffered:   10 * bufferSize,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]Timing, 0, bufferSize),
		flushNow:      make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Observe queues one stage timing.
func (m *Metrics) Observe(stage string, d time.Duration, ok bool) {
	m.mu.Lock()
	m.buffer = append(m.buffer, Timing{Stage: stage, OK: ok, Duration: d, CreatedAt: time.Now()})
	if over := len(m.buffer) - m.maxBuffered; over > 0 {
		m.buffer = append(m.buffer[:0], m.buffer[over:]...)
		m.dropped += int64(over)
	}
	full := len(m.buffer) >= m.bufferSize
	m.mu.Unlock()

	if full {
		select {
		case m.flushNow <- struct{}{}:
		default:
		}
	}
}

// Dropped reports how many timings were discarded because the buffer
// was at capacity.
func (m *Metrics) Dropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Buffered reports how many timings wait for the next flush.
func (m *Metrics) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// Flush writes the buffered timings now. A batch that fails to commit
// goes back to the front of the buffer, subject to the capacity limit.
func (m *Metrics) Flush() {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	batch := m.buffer
	m.buffer = make([]Timing, 0, m.bufferSize)
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := m.write(batch); err != nil {
		m.logger.Error("history: metrics flush", "error", err, "timings", len(batch))
		m.requeue(batch)
	}
}

// Summary aggregates timings recorded at or after since, one row per
// stage in stage order.
func (m *Metrics) Summary(ctx context.Context, since time.Time) ([]StageSummary, error) {
	m.Flush()

	rows, err := m.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END),
		AVG(duration_ms), MAX(duration_ms)
		FROM stage_timings WHERE created_at >= ?
		GROUP BY stage ORDER BY stage`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("history: query stage timings: %w", err)
	}
	defer rows.Close()

	out := []StageSummary{}
	for rows.Next() {
		var s StageSummary
		if err := rows.Scan(&s.Stage, &s.Count, &s.Failures, &s.AvgMs, &s.MaxMs); err != nil {
			return nil, fmt.Errorf("history: scan stage timing: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes timings older than retention and returns the count removed.
func (m *Metrics) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := execRetry(ctx, m.db, `DELETE FROM stage_timings WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup stage timings: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is left and stops the flusher. It is safe to call
// more than once.
func (m *Metrics) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		case <-m.flushNow:
			m.Flush()
		}
	}
}

func (m *Metrics) requeue(batch []Timing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := append(batch, m.buffer...)
	if over := len(merged) - m.maxBuffered; over > 0 {
		merged = merged[over:]
		m.dropped += int64(over)
	}
	m.buffer = merged
}

func (m *Metrics) write(batch []Timing) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stage_timings (stage, ok, duration_ms, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range batch {
		ms := float64(t.Duration) / float64(time.Millisecond)
		if _, err := stmt.ExecContext(ctx, t.Stage, t.OK, ms, t.CreatedAt.UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", t.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
