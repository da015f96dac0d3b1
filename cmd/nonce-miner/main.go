package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/screa/nonce-miner/internal/config"
	"github.com/screa/nonce-miner/internal/crypto"
	logpkg "github.com/screa/nonce-miner/internal/logger"
	"github.com/screa/nonce-miner/internal/metrics"
	"github.com/screa/nonce-miner/pkg/driver"
	"github.com/screa/nonce-miner/pkg/types"
)

var (
	cfg    = config.NewConfig()
	logger *logpkg.Logger
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "nonce-miner",
		Short: "Parallel proof-of-work nonce search",
		Long: `Searches the 64-bit nonce space of a block header for a nonce whose
digest meets a difficulty target, using one pinned worker thread per core.`,
		SilenceUsage: true,
		RunE:         runMiner,
	}

	rootCmd.Flags().IntVarP(&cfg.Threads, "threads", "w", cfg.Threads, "Number of worker threads")
	rootCmd.Flags().IntSliceVar(&cfg.NUMANodes, "numa-nodes", cfg.NUMANodes, "NUMA nodes to pin workers to")
	rootCmd.Flags().BoolVar(&cfg.Affinity, "affinity", cfg.Affinity, "Pin worker threads to NUMA node cores")
	rootCmd.Flags().IntVarP(&cfg.BatchSize, "batch-size", "b", cfg.BatchSize, "Nonces hashed between stop checks")
	rootCmd.Flags().IntVarP(&cfg.StatsInterval, "stats-interval", "i", cfg.StatsInterval, "Stats logging interval in seconds")
	rootCmd.Flags().BoolVar(&cfg.NoVector, "no-vector", false, "Disable the batched hashing path")
	rootCmd.Flags().Uint64Var(&cfg.NonceSpace, "nonce-space", 0, "Restrict the search to [0, n) (0 = full 64-bit space)")
	rootCmd.Flags().StringVarP(&cfg.Header, "header", "H", "", "Block header (hex)")
	rootCmd.Flags().StringVarP(&cfg.HeaderFile, "header-file", "F", "", "File containing the block header (hex)")
	rootCmd.Flags().StringVarP(&cfg.Target, "target", "t", "", "Difficulty target (hex, at most 8 bytes)")
	rootCmd.Flags().StringVarP(&cfg.Algorithm, "algo", "a", cfg.Algorithm, fmt.Sprintf("Hash algorithm %v", crypto.Algorithms()))
	rootCmd.Flags().BoolVar(&cfg.Mine, "mine", cfg.Mine, "Enable mining")
	rootCmd.Flags().StringArrayVarP(&cfg.MiningKeys, "mining-key", "k", nil, "Mining key: <pubkey> or <share>,<m>:<key>[,<key>...] (repeatable)")
	rootCmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	rootCmd.Flags().StringVarP(&cfg.LogFile, "log-file", "l", "", "Log file for progress tracking (default: stdout)")
	rootCmd.Flags().StringVarP(&cfg.MetricsAddr, "metrics-addr", "m", "", "Serve Prometheus metrics on this address")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMiner(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := setupLogging(); err != nil {
		return err
	}

	oracle, err := crypto.New(cfg.Algorithm)
	if err != nil {
		return err
	}
	keys, err := cfg.GetMiningKeys()
	if err != nil {
		return err
	}

	var collectors *metrics.Collectors
	if cfg.MetricsAddr != "" {
		collectors = metrics.New("nonce_miner", nil)
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	initDone := make(chan struct{})
	d, err := driver.New(driver.Options{
		Keys:         keys,
		Mine:         cfg.Mine,
		Config:       cfg.MiningConfig(),
		Oracle:       oracle,
		InitComplete: initDone,
		Metrics:      collectors,
	}, logger)
	if err != nil {
		return err
	}

	// Set up signal handling for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := make(chan types.Job, 1)
	solutions := make(chan types.Solution, 1)
	if cfg.Mine {
		header, err := cfg.GetHeader()
		if err != nil {
			return err
		}
		target, err := cfg.GetTarget()
		if err != nil {
			return err
		}
		logger.Infof("Starting nonce miner with %d workers...", cfg.Threads)
		logger.Infof("Target: %s", cfg.GetTargetDescription())
		logger.Infof("Header: %d bytes", len(header))
		jobs <- types.Job{ID: "cli", Header: header, Target: target}
	}
	close(jobs)

	go func() {
		<-initDone
		logger.Debugf("Driver initialization complete")
	}()

	start := time.Now()
	if err := d.Run(ctx, jobs, solutions); err != nil {
		return err
	}

	select {
	case sol := <-solutions:
		logger.Printf("🎉 Found nonce!")
		logger.Printf("Nonce: %d (0x%016x)", sol.Nonce, sol.Nonce)
		logger.Printf("Worker: %d", sol.WorkerID)
		logger.Printf("Hashes: %d", sol.Hashes)
		logger.Printf("Duration: %v", time.Since(start))

		// Calculate rate safely
		rate := 0.0
		if sol.Elapsed.Seconds() > 0 {
			rate = float64(sol.Hashes) / sol.Elapsed.Seconds()
		}
		logger.Printf("Rate: %.2f hashes/sec (worker)", rate)
	default:
		if ctx.Err() != nil {
			logger.Println("Mining stopped by user.")
		} else if cfg.Mine {
			logger.Println("No nonce found.")
		}
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server: %v", err)
		}
	}()
	logger.Infof("Serving metrics on http://%s/metrics", addr)
	return srv
}

func setupLogging() error {
	if cfg.LogFile != "" {
		// Log to file
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger = logpkg.NewWriter(file)
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		// Log to stdout
		logger = logpkg.New()
		logger.SetFlags(log.LstdFlags)
	}
	logger.SetDebug(cfg.Verbose)
	return nil
}
