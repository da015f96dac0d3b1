package miner

import (
	"context"
	"errors"
	"math/bits"
	"sync"
	"time"

	"github.com/screa/nonce-miner/internal/crypto"
	"github.com/screa/nonce-miner/internal/logger"
	"github.com/screa/nonce-miner/pkg/stats"
	"github.com/screa/nonce-miner/pkg/types"
	"github.com/screa/nonce-miner/pkg/worker"
)

// Errors
var (
	ErrStopped            = errors.New("mining session stopped")
	ErrEmptyTarget        = errors.New("target must not be empty")
	ErrNonceSpaceTooSmall = errors.New("nonce space smaller than thread count")
	ErrNilOracle          = errors.New("hash oracle is required")
)

// resultPoll is how often Mine re-checks its context while waiting.
const resultPoll = 100 * time.Millisecond

// Miner owns a pool of workers for one mining session.
//
// The pool is torn down by Close, which must be called on every exit path;
// no worker outlives its Miner once Close returns.
type Miner struct {
	config  types.Config
	logger  *logger.Logger
	stats   *stats.MiningStats
	stop    *worker.StopSignal
	work    chan types.WorkUnit
	results chan types.Result
	workers []*worker.Worker
	wg      sync.WaitGroup
	once    sync.Once
}

// NewMiner validates cfg and starts cfg.Threads workers.
func NewMiner(cfg types.Config, oracle crypto.Oracle, log *logger.Logger) (*Miner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NonceSpace != 0 && cfg.NonceSpace < uint64(cfg.Threads) {
		return nil, ErrNonceSpaceTooSmall
	}
	if oracle == nil {
		return nil, ErrNilOracle
	}
	if log == nil {
		log = logger.New()
	}

	m := &Miner{
		config:  cfg,
		logger:  log,
		stats:   stats.New(cfg.Threads),
		stop:    worker.NewStopSignal(),
		work:    make(chan types.WorkUnit, 2*cfg.Threads),
		results: make(chan types.Result, 2*cfg.Threads),
	}

	pool := worker.Pool{
		Stats:   m.stats,
		Stop:    m.stop,
		Work:    m.work,
		Results: m.results,
		Logger:  log,
	}
	for i := 0; i < cfg.Threads; i++ {
		w := worker.NewWorker(i, cfg, oracle, pool)
		m.workers = append(m.workers, w)
		m.wg.Add(1)
		go m.run(w)
	}

	vectorized := len(m.workers) > 0 && m.workers[0].Vectorized()
	log.Infof("Mining pool ready: %d workers, batch %d, vectorized=%v, affinity=%v",
		cfg.Threads, cfg.BatchSize, vectorized, cfg.Affinity)
	return m, nil
}

// run executes one worker and reports a panic instead of crashing the pool.
func (m *Miner) run(w *worker.Worker) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("Failed to join mining worker %d: %v", w.ID(), r)
		}
	}()
	w.Run()
}

// Partition splits [0, space) into n contiguous units. A space of zero means
// the full 2^64 nonce space. Every unit gets floor(space/n) nonces and the
// last unit also takes the remainder, so the units cover the space exactly
// once. It returns nil when n < 1 or space is non-zero and smaller than n.
func Partition(n int, space uint64) []types.WorkUnit {
	if n < 1 || (space != 0 && space < uint64(n)) {
		return nil
	}

	var size, rem uint64
	switch {
	case space == 0 && n == 1:
		// Count 0 stands for all 2^64 nonces
		return []types.WorkUnit{{Index: 0}}
	case space == 0:
		size, rem = bits.Div64(1, 0, uint64(n))
	default:
		size, rem = space/uint64(n), space%uint64(n)
	}

	units := make([]types.WorkUnit, n)
	for i := range units {
		units[i] = types.WorkUnit{
			Index: i,
			Start: uint64(i) * size,
			Count: size,
		}
	}
	units[n-1].Count += rem
	return units
}

// StartMining partitions the nonce space and queues one unit per worker.
// It blocks while the work queue is full.
func (m *Miner) StartMining(ctx context.Context, header, target []byte) error {
	if len(target) == 0 {
		return ErrEmptyTarget
	}
	if m.stop.Stopped() {
		return ErrStopped
	}

	m.logger.Infof("Starting mining with %d threads", m.config.Threads)

	header = append([]byte(nil), header...)
	target = append([]byte(nil), target...)
	for _, unit := range Partition(m.config.Threads, m.config.NonceSpace) {
		unit.Header = header
		unit.Target = target

		select {
		case m.work <- unit:
		case <-m.stop.Done():
			m.logger.Warnf("Failed to queue work unit %d: mining stopped", unit.Index)
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// StopMining asks every worker to stop. It does not wait for them.
func (m *Miner) StopMining() {
	if m.stop.Stop() {
		m.logger.Infof("Stopping mining")
	}
}

// Stats returns the session hash rate and the cumulative hash count.
func (m *Miner) Stats() (float64, uint64) {
	return m.stats.HashRate(), m.stats.Total()
}

// WorkerStats returns per-worker counters.
func (m *Miner) WorkerStats() []stats.WorkerSnapshot {
	return m.stats.Snapshot()
}

// Threads returns the number of workers in the pool.
func (m *Miner) Threads() int {
	return m.config.Threads
}

// WaitForResult waits up to timeout for the next result.
func (m *Miner) WaitForResult(timeout time.Duration) (types.Result, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case res := <-m.results:
		return res, true
	case <-t.C:
		return types.Result{}, false
	}
}

// Mine starts a round and waits for its outcome. It returns the first result
// that carries a nonce, or nil once every unit has been exhausted. When a
// nonce is found the remaining workers are stopped. When ctx ends first the
// workers are stopped and ctx.Err() is returned.
func (m *Miner) Mine(ctx context.Context, header, target []byte) (*types.Result, error) {
	if err := m.StartMining(ctx, header, target); err != nil {
		return nil, err
	}

	pending := m.config.Threads
	for pending > 0 {
		select {
		case <-ctx.Done():
			m.StopMining()
			return nil, ctx.Err()
		default:
		}

		res, ok := m.WaitForResult(resultPoll)
		if !ok {
			continue
		}
		m.logger.Debugf("Worker %d finished unit %d: %d hashes in %v", res.WorkerID, res.Unit, res.Hashes, res.Elapsed)
		if res.Found {
			m.StopMining()
			return &res, nil
		}
		if res.Cancelled() {
			// only a stop request abandons a unit
			return nil, ErrStopped
		}
		pending--
	}
	return nil, nil
}

// Close stops the workers and waits for all of them to exit. It is safe to
// call more than once.
func (m *Miner) Close() error {
	m.once.Do(func() {
		m.StopMining()
		m.wg.Wait()
		m.logger.Debugf("All %d mining workers joined", len(m.workers))
	})
	return nil
}
