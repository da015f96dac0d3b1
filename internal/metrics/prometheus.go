package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/screa/nonce-miner/pkg/stats"
)

// Collectors holds the prometheus collectors fed by the stats reporter
type Collectors struct {
	HashRate     prometheus.Gauge
	HashesTotal  prometheus.Counter
	WorkerHashes *prometheus.GaugeVec
	Workers      prometheus.Gauge
	Solutions    prometheus.Counter
	Sessions     prometheus.Counter

	mu       sync.Mutex
	observed uint64 // session total already added to HashesTotal
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registry. Collectors that are already registered are reused.
func New(namespace string, reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	// Helper to safely register or get existing collector
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector
			}
			return c
		}
		return c
	}

	c := &Collectors{}

	c.HashRate = register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hashrate_hashes_per_second",
		Help:      "Session average hash rate",
	})).(prometheus.Gauge)

	c.HashesTotal = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashes_total",
		Help:      "Total number of nonces hashed",
	})).(prometheus.Counter)

	c.WorkerHashes = register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_last_batch_hashes",
		Help:      "Hashes in the most recent batch of each worker",
	}, []string{"worker"})).(*prometheus.GaugeVec)

	c.Workers = register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Number of mining workers in the current session",
	})).(prometheus.Gauge)

	c.Solutions = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solutions_total",
		Help:      "Number of nonces found that met the target",
	})).(prometheus.Counter)

	c.Sessions = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Number of mining sessions started",
	})).(prometheus.Counter)

	return c
}

// StartSession resets the per-session bookkeeping.
func (c *Collectors) StartSession(workers int) {
	c.mu.Lock()
	c.observed = 0
	c.mu.Unlock()
	c.Sessions.Inc()
	c.Workers.Set(float64(workers))
	c.WorkerHashes.Reset()
}

// Update syncs the session counters into the collectors.
func (c *Collectors) Update(hashRate float64, total uint64, workers []stats.WorkerSnapshot) {
	c.HashRate.Set(hashRate)

	c.mu.Lock()
	if total > c.observed {
		c.HashesTotal.Add(float64(total - c.observed))
		c.observed = total
	}
	c.mu.Unlock()

	for _, w := range workers {
		c.WorkerHashes.WithLabelValues(strconv.Itoa(w.ID)).Set(float64(w.LastBatch))
	}
}

// SolutionFound counts a found nonce.
func (c *Collectors) SolutionFound() {
	c.Solutions.Inc()
}
