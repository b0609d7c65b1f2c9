package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/techhome/internal/config"
	"github.com/joshp123/techhome/internal/core"
	"github.com/joshp123/techhome/internal/plugins"
	"github.com/joshp123/techhome/internal/rate"
	"github.com/joshp123/techhome/internal/router"
	"github.com/joshp123/techhome/internal/server"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", envOrDefault("TECHHOME_CONFIG", config.DefaultPath), "path to config.yaml")
	allPlugins := flag.Bool("all-plugins", false, "serve every compiled plugin regardless of config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	cfg.PrintConfig(logger)

	if err := run(cfg, logger, *allPlugins); err != nil {
		logger.Fatal("techhome stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, all bool) error {
	compiled := plugins.Compiled(cfg, logger)
	if err := core.ValidatePlugins(compiled); err != nil {
		return fmt.Errorf("validate plugins: %w", err)
	}
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, all); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, all)
	for _, p := range active {
		logger.Info("plugin enabled",
			zap.String("plugin_id", p.ID()),
			zap.String("health", string(p.Health())),
			zap.String("health_message", p.HealthMessage()),
		)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	if err := router.RegisterPlugins(grpcServer.Server, active); err != nil {
		return err
	}

	metricsRegistry := core.MetricsRegistry(active, rate.MetricsCollectors()...)
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "techhome_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))

	if cfg.Core.DashboardDir != "" {
		n, err := core.WriteDashboards(cfg.Core.DashboardDir, active)
		if err != nil {
			logger.Warn("write dashboards failed", zap.String("dir", cfg.Core.DashboardDir), zap.Error(err))
		} else {
			logger.Info("dashboards written", zap.String("dir", cfg.Core.DashboardDir), zap.Int("count", n))
		}
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler)
	httpMux.Handle("/ready", server.ReadyHandler(active))
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry, logger))
	httpMux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	router.RegisterHTTP(httpMux, active)
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.Core.GRPCAddr))
		if err := grpcServer.Serve(); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Core.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	for _, p := range active {
		p := p
		runner, ok := p.(core.Runner)
		if !ok {
			continue
		}
		group.Go(func() error {
			if err := runner.Run(ctx); err != nil {
				return fmt.Errorf("plugin %s: %w", p.ID(), err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Stop(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
