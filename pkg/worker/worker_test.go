package worker

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/screa/nonce-miner/internal/crypto"
	"github.com/screa/nonce-miner/internal/logger"
	"github.com/screa/nonce-miner/pkg/stats"
	"github.com/screa/nonce-miner/pkg/types"
)

var matchTarget = []byte{0x00}

// fakeOracle returns 0x00 for matching nonces and 0xff otherwise.
type fakeOracle struct {
	match map[uint64]bool
	delay time.Duration
	calls atomic.Uint64
}

func (o *fakeOracle) Digest(nonce uint64, _ []byte, dst []byte) []byte {
	o.calls.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if o.match[nonce] {
		return append(dst, 0x00)
	}
	return append(dst, 0xff)
}

// fakeBatchOracle adds the batched path on top of fakeOracle.
type fakeBatchOracle struct {
	fakeOracle
	batches atomic.Uint64
}

func (o *fakeBatchOracle) DigestBatch(nonces *[crypto.VectorWidth]uint64, header []byte, out *[crypto.VectorWidth][]byte) {
	o.batches.Add(1)
	for i, n := range nonces {
		out[i] = o.Digest(n, header, out[i][:0])
	}
}

func forceVector(t *testing.T) {
	t.Helper()
	prev := hasVectorSupport
	hasVectorSupport = func() bool { return true }
	t.Cleanup(func() { hasVectorSupport = prev })
}

func testConfig(batch int, vector bool) types.Config {
	return types.Config{
		Threads:     1,
		BatchSize:   batch,
		Vectorized:  vector,
		IdleTimeout: 10 * time.Millisecond,
	}
}

func testPool(work chan types.WorkUnit, results chan types.Result) Pool {
	return Pool{
		Stats:   stats.New(1),
		Stop:    NewStopSignal(),
		Work:    work,
		Results: results,
		Logger:  logger.Discard(),
	}
}

func matches(nonces ...uint64) map[uint64]bool {
	m := make(map[uint64]bool, len(nonces))
	for _, n := range nonces {
		m[n] = true
	}
	return m
}

func TestNewWorker(t *testing.T) {
	forceVector(t)

	scalar := NewWorker(0, testConfig(10, false), &fakeBatchOracle{}, testPool(nil, nil))
	if scalar.Vectorized() {
		t.Error("vector path selected with Vectorized=false")
	}
	plain := NewWorker(1, testConfig(10, true), &fakeOracle{}, testPool(nil, nil))
	if plain.Vectorized() {
		t.Error("vector path selected for an oracle without batch support")
	}
	vec := NewWorker(2, testConfig(10, true), &fakeBatchOracle{}, testPool(nil, nil))
	if !vec.Vectorized() {
		t.Error("vector path not selected")
	}
	if vec.ID() != 2 {
		t.Errorf("ID() = %d, want 2", vec.ID())
	}
}

func TestProcessFindsNonce(t *testing.T) {
	forceVector(t)

	unit := types.WorkUnit{Index: 3, Target: matchTarget, Start: 100, Count: 50}
	for _, batch := range []int{1, 3, 7, 1000} {
		for _, vector := range []bool{false, true} {
			oracle := &fakeBatchOracle{fakeOracle: fakeOracle{match: matches(117, 130)}}
			w := NewWorker(0, testConfig(batch, vector), oracle, testPool(nil, nil))

			res := w.Process(unit)
			if !res.Found || res.Nonce != 117 {
				t.Fatalf("batch=%d vector=%v: got found=%v nonce=%d, want 117", batch, vector, res.Found, res.Nonce)
			}
			if res.Hashes != 18 {
				t.Errorf("batch=%d vector=%v: Hashes = %d, want 18", batch, vector, res.Hashes)
			}
			if res.Unit != 3 || res.WorkerID != 0 {
				t.Errorf("Unit/WorkerID = %d/%d, want 3/0", res.Unit, res.WorkerID)
			}
			if res.Cancelled() {
				t.Error("found result reported as cancelled")
			}
			if got := w.pool.Stats.Total(); got != res.Hashes {
				t.Errorf("stats total = %d, want %d", got, res.Hashes)
			}
		}
	}
}

func TestProcessExhaustsRange(t *testing.T) {
	forceVector(t)

	unit := types.WorkUnit{Target: matchTarget, Start: 10, Count: 23}
	for _, vector := range []bool{false, true} {
		oracle := &fakeBatchOracle{}
		w := NewWorker(0, testConfig(5, vector), oracle, testPool(nil, nil))

		res := w.Process(unit)
		if res.Found {
			t.Fatalf("vector=%v: unexpected nonce %d", vector, res.Nonce)
		}
		if res.Hashes != unit.Count || res.Cancelled() {
			t.Errorf("vector=%v: Hashes = %d cancelled=%v, want %d exhausted", vector, res.Hashes, res.Cancelled(), unit.Count)
		}
		if got := oracle.calls.Load(); got != unit.Count {
			t.Errorf("vector=%v: oracle called %d times, want %d", vector, got, unit.Count)
		}
		if vector && oracle.batches.Load() == 0 {
			t.Error("vector path never used the batched oracle")
		}
	}
}

func TestVectorMatchesScalar(t *testing.T) {
	forceVector(t)

	match := matches(1003, 1004, 1050)
	for first := uint64(995); first < 1010; first++ {
		unit := types.WorkUnit{Target: matchTarget, Start: first, Count: 60}
		for _, batch := range []int{1, 2, 5, 9, 64} {
			scalar := NewWorker(0, testConfig(batch, false), &fakeBatchOracle{fakeOracle: fakeOracle{match: match}}, testPool(nil, nil)).Process(unit)
			vector := NewWorker(0, testConfig(batch, true), &fakeBatchOracle{fakeOracle: fakeOracle{match: match}}, testPool(nil, nil)).Process(unit)
			if scalar.Found != vector.Found || scalar.Nonce != vector.Nonce || scalar.Hashes != vector.Hashes {
				t.Fatalf("start=%d batch=%d: scalar %+v != vector %+v", first, batch, scalar, vector)
			}
		}
	}
}

func TestProcessTopOfSpace(t *testing.T) {
	unit := types.WorkUnit{Target: matchTarget, Start: math.MaxUint64 - 9, Count: 10}

	w := NewWorker(0, testConfig(4, false), &fakeOracle{}, testPool(nil, nil))
	if res := w.Process(unit); res.Found || res.Hashes != 10 {
		t.Errorf("exhausted top unit: %+v", res)
	}

	w = NewWorker(0, testConfig(4, false), &fakeOracle{match: matches(math.MaxUint64)}, testPool(nil, nil))
	res := w.Process(unit)
	if !res.Found || res.Nonce != math.MaxUint64 || res.Hashes != 10 {
		t.Errorf("match at MaxUint64: %+v", res)
	}
}

func TestProcessFullSpaceUnit(t *testing.T) {
	unit := types.WorkUnit{Target: matchTarget, Start: 0, Count: 0}
	w := NewWorker(0, testConfig(1000, false), &fakeOracle{match: matches(5)}, testPool(nil, nil))

	res := w.Process(unit)
	if !res.Found || res.Nonce != 5 || res.Hashes != 6 {
		t.Errorf("full space unit: %+v", res)
	}
}

func TestProcessStoppedBeforeStart(t *testing.T) {
	pool := testPool(nil, nil)
	pool.Stop.Stop()
	w := NewWorker(0, testConfig(10, false), &fakeOracle{match: matches(0)}, pool)

	res := w.Process(types.WorkUnit{Target: matchTarget, Count: 100})
	if res.Found || res.Hashes != 0 || !res.Cancelled() {
		t.Errorf("stopped unit: %+v", res)
	}
}

func TestProcessCancelledMidScan(t *testing.T) {
	const batch = 50
	const perHash = 20 * time.Microsecond
	pool := testPool(nil, nil)
	oracle := &fakeOracle{delay: perHash}
	w := NewWorker(0, testConfig(batch, false), oracle, pool)

	unit := types.WorkUnit{Target: matchTarget, Start: 0, Count: 1 << 40}
	done := make(chan types.Result, 1)
	go func() { done <- w.Process(unit) }()

	time.Sleep(20 * time.Millisecond)
	pool.Stop.Stop()
	stopped := time.Now()

	select {
	case res := <-done:
		if res.Found || !res.Cancelled() || res.Hashes >= unit.Count {
			t.Errorf("cancelled unit: %+v", res)
		}
		if res.Hashes%batch != 0 {
			t.Errorf("Hashes = %d, want a whole number of batches", res.Hashes)
		}
		if waited := time.Since(stopped); waited > time.Second {
			t.Errorf("cancellation took %v", waited)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not observe the stop signal")
	}
}

func TestRunDeliversResults(t *testing.T) {
	work := make(chan types.WorkUnit, 2)
	results := make(chan types.Result, 2)
	pool := testPool(work, results)
	w := NewWorker(0, testConfig(8, false), &fakeOracle{match: matches(12)}, pool)

	exited := make(chan struct{})
	go func() {
		w.Run()
		close(exited)
	}()

	work <- types.WorkUnit{Index: 0, Target: matchTarget, Start: 0, Count: 10}
	work <- types.WorkUnit{Index: 1, Target: matchTarget, Start: 10, Count: 10}

	first := <-results
	if first.Found || first.Hashes != 10 || first.Unit != 0 {
		t.Errorf("first result: %+v", first)
	}
	second := <-results
	if !second.Found || second.Nonce != 12 || second.Hashes != 3 || second.Unit != 1 {
		t.Errorf("second result: %+v", second)
	}
	if got := pool.Stats.Total(); got != 13 {
		t.Errorf("stats total = %d, want 13", got)
	}

	pool.Stop.Stop()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after stop")
	}
}

func TestRunExitsOnClosedWork(t *testing.T) {
	work := make(chan types.WorkUnit)
	w := NewWorker(0, testConfig(8, false), &fakeOracle{}, testPool(work, make(chan types.Result)))

	exited := make(chan struct{})
	go func() {
		w.Run()
		close(exited)
	}()
	close(work)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after the work channel closed")
	}
}

func TestRunDropsResultWhenStopping(t *testing.T) {
	work := make(chan types.WorkUnit, 1)
	results := make(chan types.Result) // nobody reads
	pool := testPool(work, results)
	w := NewWorker(0, testConfig(8, false), &fakeOracle{}, pool)

	exited := make(chan struct{})
	go func() {
		w.Run()
		close(exited)
	}()
	work <- types.WorkUnit{Target: matchTarget, Count: 4}

	time.Sleep(20 * time.Millisecond)
	pool.Stop.Stop()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("worker blocked on a result nobody reads")
	}
}

func TestStopSignalIdempotent(t *testing.T) {
	s := NewStopSignal()
	if s.Stopped() {
		t.Fatal("new signal already set")
	}
	if !s.Stop() {
		t.Error("first Stop() = false, want true")
	}
	if s.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if !s.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}
