package api

import (
    "strings"

    "routeops/internal/config"
    "routeops/internal/export"
    "routeops/internal/optimizer"
    "routeops/internal/plans"
    "routeops/internal/store"
    "routeops/internal/tracking"
    "routeops/internal/webhooks"
    "routeops/pkg/logger"
)

type Server struct {
    Store   store.Store
    Plans   *plans.Service
    Tracker *tracking.Manager
    Pub     *webhooks.Publisher
    Broker  EventBroker
    Log     *logger.Logger
    Cfg     config.Config
}

// NewServer wires the service together. With no database URL the in-memory
// store is used; with no Redis URL the in-process broker is used.
func NewServer(cfg config.Config, log *logger.Logger) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.Database.URL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if err := sp.MigrateDir("db/migrations"); err != nil {
            log.Warn("migrations skipped", logger.Error(err))
        }
        s = sp
    }

    var broker EventBroker
    if cfg.Redis.URL != "" {
        rb, err := NewRedisBroker(cfg.Redis.URL)
        if err != nil {
            log.Warn("redis broker unavailable, falling back to in-process", logger.Error(err))
            broker = NewBroker()
        } else {
            broker = rb
        }
    } else {
        broker = NewBroker()
    }

    opt := optimizer.NewClient(cfg.Optimizer.URL, cfg.Optimizer.PredictorURL, cfg.OptimizerTimeout())
    exp := export.NewClient(cfg.Export.URL, cfg.ExportTimeout())

    return &Server{
        Store:   s,
        Plans:   plans.New(s, opt, exp),
        Tracker: tracking.NewManager(s, log.Named("tracking"), cfg.TrackingInactivity()),
        Pub:     webhooks.NewPublisher(s),
        Broker:  broker,
        Log:     log,
        Cfg:     cfg,
    }, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Log.Named("webhooks"), s.Cfg.Webhooks.MaxAttempts)
}
