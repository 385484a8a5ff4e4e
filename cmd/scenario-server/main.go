// Command scenario-server serves the scenario upload and resimulation API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/scenario-resimulator/core"
	"github.com/signalsfoundry/scenario-resimulator/internal/config"
	"github.com/signalsfoundry/scenario-resimulator/internal/engine/vensim"
	"github.com/signalsfoundry/scenario-resimulator/internal/httpapi"
	"github.com/signalsfoundry/scenario-resimulator/internal/logging"
	"github.com/signalsfoundry/scenario-resimulator/internal/observability"
	"github.com/signalsfoundry/scenario-resimulator/internal/store"
	"github.com/signalsfoundry/scenario-resimulator/internal/store/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		config.Exitf("scenario-server: %v", err)
	}

	log := logging.New(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "scenario server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API on lis until ctx is done, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics, err := observability.NewHTTPCollector(reg)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		return fmt.Errorf("init simulation metrics: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn(context.Background(), "closing store failed", logging.Err(err))
		}
	}()

	svc := core.NewScenarioService(st,
		vensim.New(vensim.WithMaxSavePoints(cfg.MaxSavePoints)),
		core.WithLogger(log),
		core.WithMetrics(simMetrics),
	)
	api := &http.Server{
		Handler: httpapi.NewServer(svc,
			httpapi.WithLogger(log),
			httpapi.WithMetrics(httpMetrics),
			httpapi.WithMaxUploadBytes(cfg.MaxUploadBytes),
			httpapi.WithCORSOrigin(cfg.CORSOrigin),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting scenario API",
			logging.String("addr", lis.Addr().String()),
			logging.String("store", cfg.StoreBackend),
		)
		if err := api.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	metricsSrv := metricsServer(cfg.MetricsAddr, httpMetrics)
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down scenario server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := api.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

func metricsServer(addr string, collector *observability.HTTPCollector) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// openStore builds the configured artifact store and its release func.
func openStore(ctx context.Context, cfg config.Config) (store.ScenarioStore, func() error, error) {
	noClose := func() error { return nil }
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), noClose, nil
	case config.BackendSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case config.BackendFS:
		st, err := store.NewFileStore(cfg.StoreRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
