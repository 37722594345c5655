package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskcraft/edge-gateway/config"
	"github.com/deskcraft/edge-gateway/internal/backend"
	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
	"github.com/deskcraft/edge-gateway/internal/handler"
	"github.com/deskcraft/edge-gateway/internal/health"
	"github.com/deskcraft/edge-gateway/internal/healthcheck"
	"github.com/deskcraft/edge-gateway/internal/httpserver"
	"github.com/deskcraft/edge-gateway/internal/metrics"
	"github.com/deskcraft/edge-gateway/internal/router"
	"github.com/deskcraft/edge-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	breakerConfig, err := breakerConfigFrom(cfg, log)
	if err != nil {
		log.Error("Invalid circuit breaker configuration", slog.Any("err", err))
		os.Exit(1)
	}

	registry := circuitbreaker.NewRegistry(breakerConfig)

	backends, trackers, err := initializeBackends(ctx, cfg, registry, log)
	if err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	rt, err := router.New(routingRules(cfg))
	if err != nil {
		log.Error("Failed to build router", slog.Any("err", err))
		os.Exit(1)
	}

	trackerList := make([]*health.Tracker, 0, len(trackers))
	for _, tracker := range trackers {
		trackerList = append(trackerList, tracker)
	}
	aggregator := health.NewAggregator(trackerList...)

	gateway := handler.NewGateway(log, rt, backends, trackers)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(gateway, aggregator))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("backends", len(backends)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func breakerConfigFrom(cfg *config.Config, log *slog.Logger) (circuitbreaker.Config, error) {
	cooldown, err := time.ParseDuration(cfg.CircuitBreaker.Cooldown)
	if err != nil {
		return circuitbreaker.Config{}, err
	}

	recordMetrics := metrics.OnStateChange()

	return circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Cooldown:         cooldown,
		MaxProbes:        cfg.CircuitBreaker.MaxProbes,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			recordMetrics(name, from, to)
			log.Warn("Circuit breaker state change",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}, nil
}

func initializeBackends(
	ctx context.Context,
	cfg *config.Config,
	registry *circuitbreaker.Registry,
	log *slog.Logger,
) (map[string]*backend.Backend, map[string]*health.Tracker, error) {
	probeInterval, err := time.ParseDuration(cfg.Health.ProbeInterval)
	if err != nil {
		return nil, nil, err
	}

	backends := make(map[string]*backend.Backend, len(cfg.Backends))
	trackers := make(map[string]*health.Tracker, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			return nil, nil, err
		}

		timeout := backend.DefaultTimeout
		if bc.Timeout != "" {
			timeout, err = time.ParseDuration(bc.Timeout)
			if err != nil {
				return nil, nil, err
			}
		}

		be := backend.New(bc.Name, u, timeout)
		tracker := health.NewTracker(bc.Name, registry.GetBreaker(bc.Name), cfg.Health.ErrorRateThreshold)

		backends[bc.Name] = be
		trackers[bc.Name] = tracker

		if cfg.Health.ProbeEnabled {
			go healthcheck.Probe(ctx, be, tracker, probeInterval, log)
		}
	}

	if len(backends) == 0 {
		return nil, nil, os.ErrInvalid
	}

	return backends, trackers, nil
}

func routingRules(cfg *config.Config) []router.Rule {
	rules := make([]router.Rule, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		rules = append(rules, router.Rule{Prefix: rc.Prefix, Backend: rc.Backend})
	}
	return rules
}
