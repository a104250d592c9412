package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshp123/gohass/internal/blob"
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/coordinator"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/joshp123/gohass/internal/logging"
	"github.com/joshp123/gohass/internal/mqttbridge"
	"github.com/joshp123/gohass/internal/plugins"
	"github.com/joshp123/gohass/internal/rate"
	"github.com/joshp123/gohass/internal/router"
	"github.com/joshp123/gohass/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFiles   []string
	)
	cmd := &cobra.Command{
		Use:           "gohass",
		Short:         "Run the gohass integration daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(envFiles); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", envOrDefault("GOHASS_CONFIG", config.DefaultPath), "config file")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files loaded before config (default .env when present)")
	return cmd
}

// loadEnv seeds the process environment so GOHASS_* overrides can live in a
// dotenv file next to the config.
func loadEnv(files []string) error {
	if len(files) > 0 {
		return godotenv.Load(files...)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func run(ctx context.Context, configPath string) error {
	loader := config.NewLoader(config.EnvPrefix, configPath)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	logger, level, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting gohass", zap.String("version", version), zap.String("config", configPath))

	watcher, err := loader.Watch(ctx, func(next *config.Config) {
		lvl, err := logging.ParseLevel(next.Logging.Level)
		if err != nil {
			logger.Warn("ignoring reloaded log level", zap.Error(err))
			return
		}
		if lvl != level.Level() {
			level.SetLevel(lvl)
			logger.Info("log level changed", zap.Stringer("level", lvl))
		}
	}, func(err error) {
		logger.Warn("config reload failed", zap.Error(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	deps := plugins.Deps{Logger: logger}
	if cfg.Blob != nil {
		store, err := blob.NewS3Store(cfg.Blob)
		if err != nil {
			return fmt.Errorf("blob store: %w", err)
		}
		deps.Blob = store
	}

	compiled := plugins.Compiled(cfg, deps)
	if err := core.ValidatePlugins(compiled); err != nil {
		return err
	}
	if err := core.ValidateEnabledPlugins(compiled, config.EnabledPlugins(cfg), false); err != nil {
		return err
	}
	for _, p := range compiled {
		logger.Info("plugin enabled", zap.String("plugin", p.ID()))
	}

	hub := core.NewHub(compiled, logger)
	hub.LoadPlatforms(ctx)
	hub.RunImports(ctx)
	hub.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("hub close", zap.Error(err))
		}
	}()

	registry := core.MetricsRegistry(compiled, daemonCollectors()...)
	if err := core.WriteDashboards(cfg.Core.DashboardDir, compiled); err != nil {
		logger.Warn("write dashboards", zap.String("dir", cfg.Core.DashboardDir), zap.Error(err))
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT != nil {
		b, closeMQTT, err := startMQTT(cfg.MQTT, hub, logger)
		if err != nil {
			return err
		}
		defer closeMQTT()
		bridge = b
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logger)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	router.RegisterServices(grpcServer.Server, hub)
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewMux(hub, registry, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.Entities().Run(gctx, cfg.Core.SyncInterval())
		return nil
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("serving",
		zap.String("grpc_addr", grpcServer.Listener.Addr().String()),
		zap.String("http_addr", cfg.Core.HTTPAddr))
	err = g.Wait()
	logger.Info("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func daemonCollectors() []prometheus.Collector {
	buildInfo := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "gohass_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 })

	out := []prometheus.Collector{buildInfo}
	out = append(out, core.MetricsCollectors()...)
	out = append(out, flow.MetricsCollectors()...)
	out = append(out, rate.MetricsCollectors()...)
	out = append(out, coordinator.MetricsCollectors()...)
	out = append(out, mqttbridge.Collectors()...)
	return out
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
