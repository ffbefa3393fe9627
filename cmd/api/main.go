package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/robfig/cron/v3"
    "go.uber.org/zap"

    "deliverysync/internal/api"
    "deliverysync/internal/buildinfo"
    "deliverysync/internal/config"
    "deliverysync/internal/delivery"
    "deliverysync/internal/events"
    "deliverysync/internal/integrations"
    "deliverysync/internal/integrations/generic"
    "deliverysync/internal/integrations/marketplace"
    "deliverysync/internal/integrations/shopify"
    "deliverysync/internal/integrations/woocommerce"
    "deliverysync/internal/logger"
    "deliverysync/internal/metrics"
    "deliverysync/internal/model"
    "deliverysync/internal/orders"
    "deliverysync/internal/pipeline"
    "deliverysync/internal/realtime"
    "deliverysync/internal/reconcile"
    "deliverysync/internal/store"
    "deliverysync/internal/syncer"
    "deliverysync/internal/webhooks"
)

func main() {
    if err := run(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func run() error {
    cfg, err := config.Load("")
    if err != nil {
        return err
    }
    log, err := logger.New(cfg.Log.Level)
    if err != nil {
        return err
    }
    defer func() { _ = log.Sync() }()
    metrics.RegisterDefault()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    s, closeStore, err := openStore(ctx, cfg.Database, log)
    if err != nil {
        return err
    }
    defer closeStore()
    if err := seed(ctx, s, cfg); err != nil {
        return err
    }

    client := integrations.NewHTTPClient(cfg.Sync.FetchTimeout)
    reg := integrations.NewRegistry(
        generic.New(client),
        marketplace.New(client, cfg.Sync.PageLimit),
        shopify.New(client, cfg.Sync.PageLimit),
        woocommerce.New(client, cfg.Sync.PageLimit),
    )

    bus := events.NewBus(cfg.Events.Buffer, log.Named("events"))
    machine := delivery.NewMachine(s, bus, log.Named("delivery"))
    pl := pipeline.New(s, machine, pipeline.Config{
        BaseFee:         cfg.Delivery.BaseFee,
        PerKgFee:        cfg.Delivery.PerKgFee,
        DefaultPriority: cfg.Delivery.DefaultPriority,
        TrackingPrefix:  cfg.Delivery.TrackingPrefix,
        DefaultPickup:   cfg.Delivery.DefaultPickup,
    }, log.Named("pipeline"))
    proc := &webhooks.Processor{
        Store:      s,
        Registry:   reg,
        Pipeline:   pl,
        Log:        log.Named("webhooks"),
        StaleAfter: 2 * cfg.Webhooks.ProcessTimeout,
    }
    ingestor := &webhooks.Ingestor{
        Store:     s,
        Registry:  reg,
        Verifier:  webhooks.Verifier{RequireSignature: cfg.Webhooks.RequireSignature, Log: log.Named("webhooks")},
        Processor: proc,
        Timeout:   cfg.Webhooks.ProcessTimeout,
        Log:       log.Named("webhooks"),
    }
    orch := syncer.NewOrchestrator(s, reg, pl, log.Named("sync"))
    orch.FetchTimeout = cfg.Sync.FetchTimeout
    orch.Lookback = cfg.Sync.DefaultLookback

    var broker realtime.EventBroker = realtime.NewBroker()
    if cfg.Redis.URL != "" {
        rb, err := realtime.NewRedisBroker(cfg.Redis.URL, log.Named("realtime"))
        if err != nil {
            log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
        } else {
            defer func() { _ = rb.Close() }()
            broker = rb
        }
    }

    var orderSystem orders.System = orders.NewMemory()
    if cfg.Marketplace.OrdersURL != "" {
        orderSystem = orders.NewHTTPClient(cfg.Marketplace.OrdersURL, cfg.Marketplace.APIKey, 10*time.Second)
    }
    bridge := &reconcile.Bridge{
        Store:        s,
        Orders:       orderSystem,
        Realtime:     broker,
        UpdateOrders: cfg.Marketplace.UpdateOrderStatus,
        Log:          log.Named("reconcile"),
    }
    bridgeDone := make(chan struct{})
    go func() {
        defer close(bridgeDone)
        bridge.Run(ctx, bus.Channel())
    }()

    sweeper := webhooks.NewRetrySweeper(s, proc, log.Named("retry"),
        cfg.Webhooks.RetryInterval, cfg.Webhooks.RetryWindow, cfg.Webhooks.RetryBatch, cfg.Webhooks.RetryRate)
    sweeper.Start()
    defer close(sweeper.Stop)

    sched := cron.New()
    if cfg.Sync.Schedule != "" {
        if _, err := sched.AddFunc(cfg.Sync.Schedule, func() {
            if _, err := orch.SyncAll(ctx, model.TriggerScheduled, false); err != nil {
                log.Warn("scheduled sync", zap.Error(err))
            }
        }); err != nil {
            return fmt.Errorf("sync.schedule: %w", err)
        }
    }
    if _, err := sched.AddFunc("@daily", func() { webhooks.Cleanup(ctx, s, cfg.Webhooks.Retention, log.Named("retry")) }); err != nil {
        return err
    }
    sched.Start()
    defer func() { <-sched.Stop().Done() }()

    srv := api.NewServer(s, machine, reg, pl, ingestor, orch, broker, log.Named("api"))
    httpSrv := &http.Server{
        Addr:              cfg.HTTP.Addr,
        Handler:           logger.RequestLog(srv.Routes(), log.Named("http")),
        ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
    }

    errc := make(chan error, 1)
    go func() {
        log.Info("API listening", zap.String("addr", cfg.HTTP.Addr), zap.Any("build", buildinfo.Info()))
        if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    select {
    case <-ctx.Done():
        log.Info("shutting down")
    case err := <-errc:
        if err != nil {
            return fmt.Errorf("server error: %w", err)
        }
    }
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
    defer cancel()
    if err := httpSrv.Shutdown(shutdownCtx); err != nil {
        log.Warn("http shutdown", zap.Error(err))
    }
    stop()
    <-bridgeDone
    return nil
}

// openStore picks Postgres when a database URL is configured, the memory store otherwise.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (store.Store, func(), error) {
    if cfg.URL == "" {
        log.Info("no database configured, using in-memory store")
        return store.NewMemory(), func() {}, nil
    }
    pg, err := store.NewPostgres(cfg.URL)
    if err != nil {
        return nil, nil, err
    }
    if cfg.Migrate {
        if err := pg.Migrate(ctx); err != nil {
            _ = pg.Close()
            return nil, nil, fmt.Errorf("migrate: %w", err)
        }
    }
    return pg, func() { _ = pg.Close() }, nil
}

// seed upserts the configured platforms and sync rules.
func seed(ctx context.Context, s store.Store, cfg config.Config) error {
    for _, c := range cfg.Connections() {
        if err := s.UpsertPlatform(ctx, c); err != nil {
            return fmt.Errorf("platform %s: %w", c.Name, err)
        }
    }
    for _, r := range cfg.SyncRules() {
        if err := s.UpsertSyncRule(ctx, r); err != nil {
            return fmt.Errorf("sync rule %s: %w", r.ID, err)
        }
    }
    return nil
}
