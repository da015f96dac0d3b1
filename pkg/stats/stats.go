package stats

import (
	"sync/atomic"
	"time"
)

// cacheLine keeps per-worker slots on separate cache lines.
const cacheLine = 64

type slot struct {
	lastBatch atomic.Uint64
	total     atomic.Uint64
	_         [cacheLine - 16]byte
}

// MiningStats aggregates hash counts for one mining session.
//
// Each per-worker slot has a single writer, the worker that owns it. The
// aggregate counter is shared and read with relaxed semantics, so readers see
// an eventually consistent value suitable for telemetry only.
type MiningStats struct {
	total   atomic.Uint64
	_       [cacheLine - 8]byte
	workers []slot
	start   time.Time
}

// WorkerSnapshot is a point-in-time view of one worker's counters.
type WorkerSnapshot struct {
	ID        int
	LastBatch uint64
	Total     uint64
}

// New creates stats for n workers, starting the session clock now.
func New(n int) *MiningStats {
	return &MiningStats{
		workers: make([]slot, n),
		start:   time.Now(),
	}
}

// AddHashes records count hashes computed by worker.
//
// The aggregate and the worker's cumulative slot accumulate; the last-batch
// slot is overwritten so it always reflects the most recent batch.
func (s *MiningStats) AddHashes(worker int, count uint64) {
	s.total.Add(count)
	w := &s.workers[worker]
	w.lastBatch.Store(count)
	w.total.Add(count)
}

// Total returns the cumulative hash count.
func (s *MiningStats) Total() uint64 {
	return s.total.Load()
}

// Start returns the session start time.
func (s *MiningStats) Start() time.Time {
	return s.start
}

// Elapsed returns the wall-clock time since the session started.
func (s *MiningStats) Elapsed() time.Duration {
	return time.Since(s.start)
}

// HashRate returns hashes per second averaged over the session.
func (s *MiningStats) HashRate() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Total()) / elapsed
}

// Workers returns the number of per-worker slots.
func (s *MiningStats) Workers() int {
	return len(s.workers)
}

// LastBatch returns the size of worker's most recent batch.
func (s *MiningStats) LastBatch(worker int) uint64 {
	return s.workers[worker].lastBatch.Load()
}

// WorkerTotal returns the cumulative hash count of worker.
func (s *MiningStats) WorkerTotal(worker int) uint64 {
	return s.workers[worker].total.Load()
}

// Snapshot returns the per-worker counters.
func (s *MiningStats) Snapshot() []WorkerSnapshot {
	out := make([]WorkerSnapshot, len(s.workers))
	for i := range s.workers {
		out[i] = WorkerSnapshot{
			ID:        i,
			LastBatch: s.workers[i].lastBatch.Load(),
			Total:     s.workers[i].total.Load(),
		}
	}
	return out
}
