package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/outreach-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/outreach-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/scheduler"
	"github.com/wolfman30/outreach-ai-platform/internal/trigger"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting outreach worker",
		"env", cfg.Env,
		"cycle_schedule", cfg.CycleSchedule,
		"reply_schedule", cfg.ReplySchedule,
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

	sched, err := newScheduler(cfg, rt, logger)
	if err != nil {
		logger.Error("failed to configure scheduler", "error", err)
		os.Exit(1)
	}

	var worker *trigger.Worker
	if queue := mainconfig.TriggerQueue(cfg, awsCfg); queue != nil && !cfg.UseMemoryQueue {
		worker = trigger.NewWorker(queue, rt.Dispatcher, rt.Monitor, logger)
		worker.Start(ctx)
		logger.Info("trigger queue consumer started", "queue_url", cfg.TriggerQueueURL)
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Start(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down outreach worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer doneCancel()
	_ = srv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		<-schedDone
		if worker != nil {
			worker.Wait()
		}
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("outreach worker stopped")
	case <-doneCtx.Done():
		logger.Error("outreach worker shutdown timed out", "error", doneCtx.Err())
	}
}

func newScheduler(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(logger).WithJobTimeout(cfg.CycleLockTTL)
	if err := sched.Add("run_cycle", cfg.CycleSchedule, scheduler.RunCycleJob(rt.Dispatcher, logger)); err != nil {
		return nil, err
	}
	if err := sched.Add("check_replies", cfg.ReplySchedule, scheduler.CheckRepliesJob(rt.Monitor, logger)); err != nil {
		return nil, err
	}
	return sched, nil
}

func opsHandler(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return r
}
