package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/outreach-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/outreach-ai-platform/internal/api/router"
	"github.com/wolfman30/outreach-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/cycles"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/trigger"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting outreach API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"lead_store", cfg.LeadStore,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	registry := mainconfig.NewRegistry()
	rt, err := bootstrap.Build(ctx, cfg, awsCfg, logger, bootstrap.Options{Registerer: registry})
	if err != nil {
		logger.Error("failed to build outreach runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	var worker *trigger.Worker
	routerCfg := newRouterConfig(cfg, rt, registry, logger)
	if queue := mainconfig.TriggerQueue(cfg, awsCfg); queue != nil {
		routerCfg.TriggerHandler = trigger.NewHandler(trigger.NewPublisher(queue, logger), logger)
		// An in-memory queue has no other consumer.
		if cfg.UseMemoryQueue {
			worker = trigger.NewWorker(queue, rt.Dispatcher, rt.Monitor, logger, trigger.WithReceiveWaitSeconds(5))
			worker.Start(ctx)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		// RunCycle blocks until the cycle completes.
		WriteTimeout: cfg.CycleLockTTL,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func newRouterConfig(cfg *appconfig.Config, rt *bootstrap.Runtime, registry *prometheus.Registry, logger *logging.Logger) *router.Config {
	routerCfg := &router.Config{
		Logger:          logger,
		OutreachHandler: outreach.NewHandler(rt.Dispatcher, logger),
		InboxHandler:    inbox.NewHandler(rt.Monitor, logger),
		LeadsHandler:    leads.NewHandler(rt.Store, logger),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		AdminAuthSecret: cfg.AdminJWTSecret,
	}
	if rt.Ledger != nil {
		routerCfg.CyclesHandler = cycles.NewHandler(rt.Ledger, logger)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; outreach routes will reject every request")
	}
	return routerCfg
}
