package stats

import (
	"sync"
	"testing"
	"time"
	"unsafe"
)

func TestAddHashes(t *testing.T) {
	s := New(2)
	s.AddHashes(0, 100)
	s.AddHashes(0, 40)
	s.AddHashes(1, 7)

	if got := s.Total(); got != 147 {
		t.Errorf("Total() = %d, want 147", got)
	}
	if got := s.LastBatch(0); got != 40 {
		t.Errorf("LastBatch(0) = %d, want 40 (overwritten)", got)
	}
	if got := s.WorkerTotal(0); got != 140 {
		t.Errorf("WorkerTotal(0) = %d, want 140", got)
	}

	snap := s.Snapshot()
	if len(snap) != 2 || snap[1].ID != 1 || snap[1].Total != 7 || snap[1].LastBatch != 7 {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestConcurrentAdditivity(t *testing.T) {
	const workers, batches = 8, 1000
	s := New(workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < batches; i++ {
				s.AddHashes(id, 3)
			}
		}(w)
	}
	wg.Wait()

	if got, want := s.Total(), uint64(workers*batches*3); got != want {
		t.Errorf("Total() = %d, want %d", got, want)
	}
	var sum uint64
	for _, w := range s.Snapshot() {
		sum += w.Total
	}
	if sum != s.Total() {
		t.Errorf("sum of worker totals %d != aggregate %d", sum, s.Total())
	}
}

func TestHashRate(t *testing.T) {
	s := New(1)
	if s.HashRate() != 0 {
		t.Errorf("HashRate() with no hashes = %v, want 0", s.HashRate())
	}
	time.Sleep(10 * time.Millisecond)
	s.AddHashes(0, 1000)
	if r := s.HashRate(); r <= 0 || r > 1000/0.01 {
		t.Errorf("HashRate() = %v out of range", r)
	}
}

func TestSlotPadding(t *testing.T) {
	if size := unsafe.Sizeof(slot{}); size != cacheLine {
		t.Errorf("slot size = %d, want %d", size, cacheLine)
	}
}
