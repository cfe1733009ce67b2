package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/shutdown"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/tempstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// app wires the shared services a subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	shutdown *shutdown.Manager
	store    *tempstore.Service
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  monitoring.NewMetrics(registry),
		shutdown: shutdown.NewManager(logger),
	}

	a.store, err = tempstore.New(tempstore.Config{
		Root:           cfg.Temp.Root,
		Prefix:         cfg.Temp.Prefix,
		RenameAttempts: cfg.Temp.RenameAttempts,
		RenameDelay:    cfg.Temp.RenameDelay,
		SweepRate:      cfg.Temp.SweepRate,
	}, logger, a.metrics, a.shutdown)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		if err := a.serveMetrics(registry); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configFile != "" {
		cfg, err = config.LoadFile(flags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.development {
		cfg.Logging.Development = true
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = flags.metricsAddr
	}
	return cfg, nil
}

// serveMetrics exposes the registry and stops the server early in shutdown.
func (a *app) serveMetrics(registry *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Address)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	return a.shutdown.Register("metrics.server", shutdown.PriorityEarly, srv.Shutdown)
}

// close runs the shutdown hooks, which delete every remaining temp item.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.shutdown.Run(ctx)
	_ = a.logger.Sync()
	return err
}
