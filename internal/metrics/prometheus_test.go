package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/screa/nonce-miner/pkg/stats"
)

func TestUpdateAddsDeltas(t *testing.T) {
	c := New("test", prometheus.NewRegistry())
	c.StartSession(2)

	c.Update(10, 100, []stats.WorkerSnapshot{{ID: 0, LastBatch: 50}, {ID: 1, LastBatch: 40}})
	c.Update(12, 150, nil)
	if got := testutil.ToFloat64(c.HashesTotal); got != 150 {
		t.Errorf("hashes_total = %v, want 150", got)
	}
	if got := testutil.ToFloat64(c.HashRate); got != 12 {
		t.Errorf("hashrate = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.WorkerHashes.WithLabelValues("1")); got != 40 {
		t.Errorf("worker 1 last batch = %v, want 40", got)
	}

	// a new session restarts its counter at zero
	c.StartSession(2)
	c.Update(1, 30, nil)
	if got := testutil.ToFloat64(c.HashesTotal); got != 180 {
		t.Errorf("hashes_total after new session = %v, want 180", got)
	}
	if got := testutil.ToFloat64(c.Sessions); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New("dup", reg)
	b := New("dup", reg)
	a.SolutionFound()
	if got := testutil.ToFloat64(b.Solutions); got != 1 {
		t.Errorf("second registration did not reuse collector: %v", got)
	}
}
