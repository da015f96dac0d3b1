package types

import (
	"errors"
	"runtime"
	"time"
)

// Errors
var (
	ErrInvalidThreads   = errors.New("thread count must be at least 1")
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
	ErrNoNUMANodes      = errors.New("affinity requires at least one NUMA node")
	ErrNegativeNUMANode = errors.New("NUMA node ids must not be negative")
)

// DefaultIdleTimeout bounds how long an idle worker waits for work before
// re-checking the stop signal.
const DefaultIdleTimeout = 100 * time.Millisecond

// Config is the mining engine configuration. It is not modified after the
// engine has been constructed.
type Config struct {
	Threads       int
	TargetCPU     string // optional hint, informational only
	NUMANodes     []int
	Affinity      bool
	BatchSize     int
	StatsInterval time.Duration
	Vectorized    bool // allow the batched oracle path when the platform supports it
	IdleTimeout   time.Duration

	// NonceSpace restricts a round to [0, NonceSpace). Zero means the full
	// 2^64 space.
	NonceSpace uint64
}

// DefaultConfig returns a configuration sized for the current machine.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads > 4 {
		threads -= 2 // leave room for the host runtime
	}
	return Config{
		Threads:       threads,
		NUMANodes:     []int{0},
		Affinity:      true,
		BatchSize:     1000,
		StatsInterval: 10 * time.Second,
		Vectorized:    true,
		IdleTimeout:   DefaultIdleTimeout,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.Threads < 1 {
		return ErrInvalidThreads
	}
	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.Affinity && len(c.NUMANodes) == 0 {
		return ErrNoNUMANodes
	}
	for _, n := range c.NUMANodes {
		if n < 0 {
			return ErrNegativeNUMANode
		}
	}
	return nil
}

// WorkUnit is a contiguous nonce range handed to one worker for one round.
//
// Count is the number of nonces owned, not an end value. A Count of zero
// denotes the whole 2^64 space, which only a single-thread round over the
// full space can produce.
type WorkUnit struct {
	Index  int
	Header []byte
	Target []byte
	Start  uint64
	Count  uint64
}

// Last returns the final nonce of the unit using wrapping arithmetic.
func (u WorkUnit) Last() uint64 {
	return u.Start + u.Count - 1
}

// Result reports the outcome of one work unit.
type Result struct {
	WorkerID int // worker that scanned the unit
	Unit     int // partition slot of the unit
	Found    bool
	Nonce    uint64 // valid only when Found
	Hashes   uint64
	Elapsed  time.Duration
	Count    uint64 // size of the scanned unit, copied from the WorkUnit
}

// Cancelled reports whether the unit was abandoned before it was exhausted.
func (r Result) Cancelled() bool {
	if r.Found {
		return false
	}
	if r.Count == 0 {
		// full-space unit; it can never be exhausted with a uint64 counter
		return true
	}
	return r.Hashes < r.Count
}

// MiningKey is the opaque key configuration supplied by the host.
type MiningKey struct {
	Share uint64
	M     uint64
	Keys  []string
}

// Job is a block template to mine.
type Job struct {
	ID     string
	Header []byte
	Target []byte
}

// Solution is a found nonce for a job.
type Solution struct {
	JobID    string
	Nonce    uint64
	WorkerID int
	Hashes   uint64
	Elapsed  time.Duration
}
