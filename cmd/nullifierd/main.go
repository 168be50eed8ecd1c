// main.go - Nullifier daemon entry point.
//
// Wiring order: config, logger, registry store, registry, key hierarchy,
// epoch manager (with rotation hooks for key eviction and the archival
// sweep), membership accumulator, proof backend and prover pool, resonance
// comparator, HTTP service.
//
// Usage:
//
//	nullifierd [-config nullifierd.json]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"privcore/internal/accumulator"
	"privcore/internal/epoch"
	"privcore/internal/keys"
	"privcore/internal/nullifier"
	"privcore/internal/proofbackend"
	"privcore/internal/registry"
	"privcore/internal/resonance"
	"privcore/internal/service"
)

func main() {
	configPath := flag.String("config", "nullifierd.json", "path to the daemon configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "nullifierd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, logCloser, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	log.Info().Str("config", configPath).Msg("starting nullifierd")

	metrics := NewMetricsCollector()

	// Registry store
	var store registry.Store
	switch cfg.StoreBackend {
	case "postgres":
		store, err = registry.NewPostgresStoreDSN(cfg.PostgresDSN)
	default:
		store, err = registry.NewFileStore(cfg.StorePath)
	}
	if err != nil {
		return fmt.Errorf("registry store: %w", err)
	}
	defer store.Close()

	reg, err := registry.New(store,
		registry.WithRetention(cfg.RetentionEpochs),
		registry.WithFilterCapacity(cfg.FilterCapacity),
		registry.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	// Key hierarchy
	master, err := os.ReadFile(cfg.MasterSecretPath)
	if err != nil {
		return fmt.Errorf("master secret: %w", err)
	}
	hier, err := keys.NewHierarchy(master)
	if err != nil {
		return err
	}

	// Epoch manager with rotation side effects: superseded epoch keys are
	// evicted and expired registry records archived.
	mgr := epoch.NewManager(cfg.ParsedEpochDuration(), epoch.WithSkewTolerance(cfg.SkewTolerance))
	mgr.OnRotate(func(e uint64) {
		metrics.IncrementCounter(MetricEpochRotations)
		if cfg.SkewTolerance < e {
			evicted := hier.EvictBefore(e - cfg.SkewTolerance)
			if evicted > 0 {
				metrics.SetGauge(MetricEpochKeysEvicted, float64(evicted))
				log.Info().Uint64("epoch", e).Int("evicted", evicted).Msg("evicted superseded epoch keys")
			}
		}
		// Sweeps hit the store; run them off the rotation path.
		go func(e uint64) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSeconds)*time.Second)
			defer cancel()
			if err := reg.Sweep(ctx, e); err != nil {
				log.Error().Err(err).Uint64("epoch", e).Msg("archival sweep failed")
			}
			metrics.SetGauge(MetricFilterHealthy, boolGauge(reg.FilterHealthy()))
		}(e)
	})

	acc := accumulator.New()
	engine := nullifier.NewEngine(hier, mgr, reg, nullifier.WithLogger(log))
	cmp := resonance.NewComparator(resonance.WithLogger(log))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithHealthCheck("store", storeProbe(store)),
		service.WithHealthCheck("filter", filterProbe(reg)),
	}

	var prover *proofbackend.Prover
	if cfg.EnableProofs {
		backend := proofbackend.NewGroth16Backend(cfg.KeyDir)
		prover = proofbackend.NewProver(backend, cfg.ProverPool)
		defer prover.Close()

		start := time.Now()
		if err := engine.EnableProofs(backend, prover); err != nil {
			return fmt.Errorf("nullifier circuit setup: %w", err)
		}
		if err := cmp.EnableProofs(backend, prover); err != nil {
			return fmt.Errorf("resonance circuit setup: %w", err)
		}
		mp, err := service.NewMembershipProver(backend, prover)
		if err != nil {
			return fmt.Errorf("membership circuit setup: %w", err)
		}
		opts = append(opts, service.WithMembershipProver(mp))
		metrics.RecordHistogram(MetricCircuitCompileTime, time.Since(start).Seconds())
		log.Info().Dur("elapsed", time.Since(start)).Str("key_dir", cfg.KeyDir).Msg("proof circuits ready")
	} else {
		log.Warn().Msg("proofs disabled, serving unproven responses")
	}

	svc := service.New(engine, acc, cmp, opts...)

	limiter := NewClientRateLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSec, time.Second)
	root := chi.NewRouter()
	root.Use(metrics.Middleware)
	root.Use(limiter.Middleware(metrics))
	root.Get("/metrics", metrics.Handler())
	root.Mount("/", svc.Router())

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      root,
		ReadTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	// Poll the clock so rotations fire even on an idle daemon.
	rotateDone := make(chan struct{})
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				mgr.Observe()
				metrics.SetGauge(MetricMembershipSize, float64(acc.Size()))
			case <-rotateDone:
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(rotateDone)
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	close(rotateDone)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
