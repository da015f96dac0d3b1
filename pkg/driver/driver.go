// Package driver connects the mining engine to its host: it signals when
// initialization is complete, turns incoming jobs into mining sessions,
// publishes found nonces and reports throughput on a fixed interval.
package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/screa/nonce-miner/internal/crypto"
	"github.com/screa/nonce-miner/internal/logger"
	"github.com/screa/nonce-miner/internal/metrics"
	"github.com/screa/nonce-miner/pkg/miner"
	"github.com/screa/nonce-miner/pkg/types"
)

// Errors
var (
	ErrNoMiningKeys = errors.New("mining enabled without mining keys")
	ErrNilOracle    = errors.New("hash oracle is required when mining")
)

const defaultStatsInterval = 10 * time.Second

// Options configures a Driver.
type Options struct {
	Keys   []types.MiningKey
	Mine   bool
	Config types.Config
	Oracle crypto.Oracle

	// InitComplete, when set, is closed exactly once by Run before it does
	// any other work, whether or not mining is enabled.
	InitComplete chan<- struct{}

	// Metrics is optional.
	Metrics *metrics.Collectors
}

// Driver runs mining sessions on behalf of a host.
type Driver struct {
	opts     Options
	logger   *logger.Logger
	current  atomic.Pointer[miner.Miner]
	initOnce sync.Once
}

// New validates opts and returns a driver.
func New(opts Options, log *logger.Logger) (*Driver, error) {
	if log == nil {
		log = logger.New()
	}
	if opts.Mine {
		if len(opts.Keys) == 0 {
			return nil, ErrNoMiningKeys
		}
		if opts.Oracle == nil {
			return nil, ErrNilOracle
		}
		if err := opts.Config.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Config.TargetCPU == "" {
		opts.Config.TargetCPU = crypto.DetectTargetCPU()
	}
	if opts.Config.StatsInterval <= 0 {
		opts.Config.StatsInterval = defaultStatsInterval
	}
	return &Driver{opts: opts, logger: log}, nil
}

func (d *Driver) signalInit() {
	d.initOnce.Do(func() {
		if d.opts.InitComplete != nil {
			close(d.opts.InitComplete)
		}
	})
}

// Run mines each job received on jobs until jobs is closed or ctx ends.
// A job that arrives while another is being mined replaces it. Found nonces
// are sent on solutions, which may be nil.
func (d *Driver) Run(ctx context.Context, jobs <-chan types.Job, solutions chan<- types.Solution) error {
	defer d.signalInit()

	if !d.opts.Mine {
		d.signalInit()
		d.logger.Infof("Mining disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := d.opts.Config
	d.logger.Infof("Mining driver started with %d threads, %d mining keys, target cpu %q",
		cfg.Threads, len(d.opts.Keys), cfg.TargetCPU)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.report(ctx)
		return nil
	})

	d.signalInit()

	g.Go(func() error {
		// stop the reporter once there is nothing left to mine
		defer cancel()
		return d.loop(ctx, jobs, solutions)
	})
	return g.Wait()
}

func (d *Driver) loop(ctx context.Context, jobs <-chan types.Job, solutions chan<- types.Solution) error {
	var next *types.Job
	for {
		job := next
		if job == nil {
			select {
			case <-ctx.Done():
				return nil
			case j, ok := <-jobs:
				if !ok {
					return nil
				}
				job = &j
			}
		}

		var err error
		next, err = d.session(ctx, *job, jobs, solutions)
		if err != nil {
			return err
		}
	}
}

type outcome struct {
	res *types.Result
	err error
}

// session mines one job. It returns a newer job that interrupted it, if any.
// Only a failure to build the worker pool is returned as an error.
func (d *Driver) session(ctx context.Context, job types.Job, jobs <-chan types.Job, solutions chan<- types.Solution) (*types.Job, error) {
	m, err := miner.NewMiner(d.opts.Config, d.opts.Oracle, d.logger)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	d.current.Store(m)
	defer d.current.Store(nil)
	if d.opts.Metrics != nil {
		d.opts.Metrics.StartSession(m.Threads())
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.Infof("Mining job %s (header %d bytes, target %x)", job.ID, len(job.Header), job.Target)
	done := make(chan outcome, 1)
	go func() {
		res, err := m.Mine(sctx, job.Header, job.Target)
		done <- outcome{res, err}
	}()

	for {
		select {
		case o := <-done:
			d.finish(ctx, job, o, solutions)
			return nil, nil
		case j, ok := <-jobs:
			if !ok {
				// keep mining the current job
				jobs = nil
				continue
			}
			d.logger.Infof("Job %s replaces job %s", j.ID, job.ID)
			cancel()
			<-done
			return &j, nil
		case <-ctx.Done():
			cancel()
			<-done
			return nil, nil
		}
	}
}

func (d *Driver) finish(ctx context.Context, job types.Job, o outcome, solutions chan<- types.Solution) {
	switch {
	case o.err != nil:
		if !errors.Is(o.err, context.Canceled) {
			d.logger.Warnf("Mining job %s ended: %v", job.ID, o.err)
		}
	case o.res == nil:
		d.logger.Infof("Mining job %s exhausted its nonce space without a solution", job.ID)
	default:
		sol := types.Solution{
			JobID:    job.ID,
			Nonce:    o.res.Nonce,
			WorkerID: o.res.WorkerID,
			Hashes:   o.res.Hashes,
			Elapsed:  o.res.Elapsed,
		}
		d.logger.Infof("Found nonce %d for job %s (worker %d, %d hashes in %v)",
			sol.Nonce, job.ID, sol.WorkerID, sol.Hashes, sol.Elapsed)
		if d.opts.Metrics != nil {
			d.opts.Metrics.SolutionFound()
		}
		if solutions == nil {
			return
		}
		select {
		case solutions <- sol:
		case <-ctx.Done():
			d.logger.Warnf("Failed to publish nonce %d for job %s: driver stopped", sol.Nonce, job.ID)
		}
	}
}

// report logs throughput every stats interval until ctx ends.
func (d *Driver) report(ctx context.Context) {
	ticker := time.NewTicker(d.opts.Config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.ReportStats()
		case <-ctx.Done():
			return
		}
	}
}

// ReportStats logs the current session's throughput and updates metrics.
func (d *Driver) ReportStats() {
	m := d.current.Load()
	if m == nil {
		d.logger.Debugf("Mining stats: no active session")
		return
	}
	hashRate, total := m.Stats()
	d.logger.Infof("Mining stats: %.2f MH/s, %d total hashes", hashRate/1_000_000.0, total)
	if d.opts.Metrics != nil {
		d.opts.Metrics.Update(hashRate, total, m.WorkerStats())
	}
}
