package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "routeops/internal/api"
    "routeops/internal/config"
    "routeops/internal/metrics"
    "routeops/pkg/logger"
)

func main() {
    _ = godotenv.Load()

    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil {
        logger.Fallback("config load failed: %v", err)
        os.Exit(1)
    }

    log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
    if err != nil {
        logger.Fallback("logger init failed: %v", err)
        os.Exit(1)
    }
    defer func() { _ = log.Sync() }()

    metrics.RegisterDefault()

    srvDeps, err := api.NewServer(cfg, log)
    if err != nil {
        log.Error("failed to init server", logger.Error(err))
        os.Exit(1)
    }

    mux := http.NewServeMux()

    // Plans
    mux.HandleFunc("/v1/plans", srvDeps.PlansHandler)
    mux.HandleFunc("/v1/plans/", srvDeps.PlanByKeyHandler) // includes /approve, /reassign, /exchange, /move-stop, /predict-start

    // Journeys
    mux.HandleFunc("/v1/journeys/active", srvDeps.JourneysActiveHandler)
    mux.HandleFunc("/v1/journeys/stream", srvDeps.FleetStreamHandler)
    mux.HandleFunc("/v1/journeys/ws", srvDeps.WSIngestHandler)
    mux.HandleFunc("/v1/journeys/", srvDeps.JourneyByIDHandler) // /start, /stop, /points, /summary, /stream

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.HandleFunc("/version", srvDeps.VersionHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/plan-stats", srvDeps.PlanStatsHandler)

    srv := &http.Server{
        Addr:              cfg.Server.Addr,
        Handler:           api.Instrument(log.Named("http"), mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    worker := srvDeps.NewWebhookWorker()
    worker.Start()
    srvDeps.Tracker.StartSweeper()

    go func() {
        log.Info("API listening", logger.String("addr", cfg.Server.Addr))
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Error("server error", logger.Error(err))
            os.Exit(1)
        }
    }()

    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit
    log.Info("shutting down")

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(ctx)
    close(worker.Stop)
    srvDeps.Tracker.Shutdown()
}
