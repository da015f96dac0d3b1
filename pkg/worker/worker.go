package worker

import (
	"runtime"
	"time"

	"github.com/screa/nonce-miner/internal/affinity"
	"github.com/screa/nonce-miner/internal/crypto"
	"github.com/screa/nonce-miner/internal/logger"
	"github.com/screa/nonce-miner/pkg/stats"
	"github.com/screa/nonce-miner/pkg/types"
)

// hasVectorSupport is swapped out by tests to exercise the batched path on
// any host.
var hasVectorSupport = crypto.HasVectorSupport

// Pool holds the handles a worker shares with its manager.
type Pool struct {
	Stats   *stats.MiningStats
	Stop    *StopSignal
	Work    <-chan types.WorkUnit
	Results chan<- types.Result
	Logger  *logger.Logger
}

// Worker scans the nonce ranges of the work units it receives
type Worker struct {
	id     int
	config types.Config
	oracle crypto.Oracle
	vector crypto.BatchOracle // nil on the scalar path
	pool   Pool

	// Pre-allocated digest buffers, reused for every hash
	digest []byte
	lanes  [crypto.VectorWidth][]byte
	nonces [crypto.VectorWidth]uint64
}

// NewWorker creates a new worker instance. The batched oracle path is chosen
// here, once, when the configuration allows it, the oracle implements it and
// the CPU can run it.
func NewWorker(id int, config types.Config, oracle crypto.Oracle, pool Pool) *Worker {
	w := &Worker{
		id:     id,
		config: config,
		oracle: oracle,
		pool:   pool,
		digest: make([]byte, 0, crypto.DigestLen),
	}
	if bo, ok := oracle.(crypto.BatchOracle); ok && config.Vectorized && hasVectorSupport() {
		w.vector = bo
		for i := range w.lanes {
			w.lanes[i] = make([]byte, 0, crypto.DigestLen)
		}
	}
	if w.config.IdleTimeout <= 0 {
		w.config.IdleTimeout = types.DefaultIdleTimeout
	}
	return w
}

// ID returns the worker identifier
func (w *Worker) ID() int {
	return w.id
}

// Vectorized reports whether the worker uses the batched oracle path
func (w *Worker) Vectorized() bool {
	return w.vector != nil
}

// Run is the worker loop. It returns when the stop signal is set, the work
// channel is closed, or a result cannot be delivered.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := w.pool.Logger
	if w.config.Affinity {
		if err := affinity.Bind(w.id, w.config.NUMANodes); err != nil {
			log.Warnf("Failed to set thread affinity for worker %d: %v", w.id, err)
		}
	}

	log.Infof("Mining worker %d started", w.id)
	defer log.Infof("Mining worker %d stopped", w.id)

	idle := time.NewTimer(w.config.IdleTimeout)
	defer idle.Stop()

	for !w.pool.Stop.Stopped() {
		idle.Reset(w.config.IdleTimeout)

		select {
		case unit, ok := <-w.pool.Work:
			if !ok {
				return
			}
			log.Debugf("Worker %d received unit %d: start=%d count=%d", w.id, unit.Index, unit.Start, unit.Count)
			if !w.send(w.Process(unit)) {
				return
			}
		case <-idle.C:
			// re-check the stop signal
		case <-w.pool.Stop.Done():
			return
		}
	}
}

// send delivers a result, giving up only when the pool is stopping and the
// result queue has no room.
func (w *Worker) send(res types.Result) bool {
	select {
	case w.pool.Results <- res:
		return true
	default:
	}

	select {
	case w.pool.Results <- res:
		return true
	case <-w.pool.Stop.Done():
		w.pool.Logger.Warnf("Failed to send mining result from worker %d: result queue closed", w.id)
		return false
	}
}

// Process scans one unit in batches of the configured size, checking the stop
// signal before each batch. Scanning ends at the first nonce that meets the
// target, at the end of the range, or at the first batch boundary after the
// stop signal was set.
func (w *Worker) Process(unit types.WorkUnit) types.Result {
	start := time.Now()
	res := types.Result{
		WorkerID: w.id,
		Unit:     unit.Index,
		Count:    unit.Count,
	}

	batch := uint64(w.config.BatchSize)
	next, last := unit.Start, unit.Last()

	for !w.pool.Stop.Stopped() {
		// left is the number of nonces remaining minus one, so the full 2^64
		// range does not overflow
		n := batch
		if left := last - next; left < n-1 {
			n = left + 1
		}

		pos, found := w.scan(next, n, unit.Header, unit.Target)
		res.Hashes += pos
		w.pool.Stats.AddHashes(w.id, pos)

		if found {
			res.Found = true
			res.Nonce = next + pos - 1
			break
		}
		if next+n-1 == last {
			break
		}
		next += n
	}

	res.Elapsed = time.Since(start)
	return res
}

// scan evaluates n nonces starting at first. It returns the number of hashes
// computed and whether the last of them met the target.
func (w *Worker) scan(first, n uint64, header, target []byte) (uint64, bool) {
	if w.vector == nil {
		return w.scanScalar(first, n, header, target)
	}

	var i uint64
	for ; n-i >= crypto.VectorWidth; i += crypto.VectorWidth {
		for lane := range w.nonces {
			w.nonces[lane] = first + i + uint64(lane)
		}
		w.vector.DigestBatch(&w.nonces, header, &w.lanes)
		// lanes are checked in nonce order so the reported nonce matches the
		// scalar path
		for lane := range w.lanes {
			if crypto.MeetsTarget(w.lanes[lane], target) {
				return i + uint64(lane) + 1, true
			}
		}
	}

	// tail shorter than the vector width
	pos, found := w.scanScalar(first+i, n-i, header, target)
	return i + pos, found
}

func (w *Worker) scanScalar(first, n uint64, header, target []byte) (uint64, bool) {
	for i := uint64(0); i < n; i++ {
		w.digest = w.oracle.Digest(first+i, header, w.digest[:0])
		if crypto.MeetsTarget(w.digest, target) {
			return i + 1, true
		}
	}
	return n, false
}
