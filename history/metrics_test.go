package history

import (
	"context"
	"testing"
	"time"
)

func TestMetrics_Summary(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 0, time.Hour, nil)
	t.Cleanup(func() { m.Close() })

	m.Observe("capture", 100*time.Millisecond, true)
	m.Observe("capture", 300*time.Millisecond, false)
	m.Observe("advisory", 50*time.Millisecond, true)

	got, err := m.Summary(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("summary = %+v", got)
	}
	if got[0].Stage != "advisory" || got[0].Count != 1 || got[0].Failures != 0 {
		t.Errorf("advisory = %+v", got[0])
	}
	c := got[1]
	if c.Stage != "capture" || c.Count != 2 || c.Failures != 1 {
		t.Errorf("capture = %+v", c)
	}
	if c.AvgMs != 200 || c.MaxMs != 300 {
		t.Errorf("capture avg/max = %v/%v", c.AvgMs, c.MaxMs)
	}
}

func TestMetrics_SummaryWindow(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 0, time.Hour, nil)
	t.Cleanup(func() { m.Close() })

	m.Observe("ranking", time.Millisecond, true)
	got, err := m.Summary(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("summary = %+v, want empty", got)
	}
}

func countTimings(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM stage_timings`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestMetrics_FlushOnBufferFull(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 2, time.Hour, nil)
	t.Cleanup(func() { m.Close() })

	m.Observe("capture", time.Millisecond, true)
	m.Observe("capture", time.Millisecond, true)

	// The flusher goroutine writes the batch; Observe only signals it.
	deadline := time.Now().Add(5 * time.Second)
	for countTimings(t, s) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("rows = %d after full buffer, want 2", countTimings(t, s))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMetrics_BufferCapDropsOldest(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 2, time.Hour, nil)
	// Stop the flusher so nothing drains the buffer behind the test.
	m.Close()

	if _, err := s.DB.Exec(`DROP TABLE stage_timings`); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 25; i++ {
		m.Observe("capture", time.Duration(i)*time.Millisecond, true)
	}
	if got := m.Buffered(); got != 20 {
		t.Fatalf("buffered = %d, want 20", got)
	}
	if got := m.Dropped(); got != 5 {
		t.Errorf("dropped = %d, want 5", got)
	}

	// A failed write keeps the batch without growing past the cap.
	m.Flush()
	m.Observe("capture", 26*time.Millisecond, true)
	if got := m.Buffered(); got != 20 {
		t.Fatalf("buffered after failed flush = %d, want 20", got)
	}
	if got := m.Dropped(); got != 6 {
		t.Errorf("dropped after failed flush = %d, want 6", got)
	}
	m.mu.Lock()
	first, last := m.buffer[0].Duration, m.buffer[len(m.buffer)-1].Duration
	m.mu.Unlock()
	if first != 7*time.Millisecond || last != 26*time.Millisecond {
		t.Errorf("buffer spans %v..%v, want 7ms..26ms", first, last)
	}
}

func TestMetrics_CloseFlushes(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 0, time.Hour, nil)
	m.Observe("promotion", time.Millisecond, true)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	m.Close()

	if n := countTimings(t, s); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestMetrics_Cleanup(t *testing.T) {
	s := openMemory(t)
	m := NewMetrics(s.DB, 0, time.Hour, nil)
	t.Cleanup(func() { m.Close() })

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	if _, err := s.DB.Exec(`INSERT INTO stage_timings (stage, ok, duration_ms, created_at) VALUES ('capture', 1, 5, ?)`, old); err != nil {
		t.Fatal(err)
	}
	m.Observe("capture", time.Millisecond, true)
	m.Flush()

	n, err := m.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
}
