package webhooks

import (
    "context"
    "time"

    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "deliverysync/internal/model"
    "deliverysync/internal/store"
)

// RetrySweeper periodically reprocesses failed or abandoned webhook events received
// within Window. An event that keeps failing ages out of the window.
type RetrySweeper struct {
    Store     store.Store
    Processor *Processor
    Log       *zap.Logger
    Stop      chan struct{}
    Interval  time.Duration
    // Window bounds how long after receipt an event is retried.
    Window  time.Duration
    Batch   int
    Limiter *rate.Limiter
    now     func() time.Time
}

func NewRetrySweeper(s store.Store, p *Processor, log *zap.Logger, interval, window time.Duration, batch int, perSecond float64) *RetrySweeper {
    if interval <= 0 { interval = time.Minute }
    if window <= 0 { window = 24 * time.Hour }
    if batch <= 0 { batch = 50 }
    if perSecond <= 0 { perSecond = 5 }
    return &RetrySweeper{
        Store: s, Processor: p, Log: log, Stop: make(chan struct{}),
        Interval: interval, Window: window, Batch: batch,
        Limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
        now:     func() time.Time { return time.Now().UTC() },
    }
}

func (w *RetrySweeper) Start() {
    go func() {
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

// processOnce retries one batch and returns how many events ended processed.
func (w *RetrySweeper) processOnce() int {
    ctx, cancel := context.WithTimeout(context.Background(), w.Interval)
    defer cancel()
    now := w.now()
    items, err := w.Store.ListRetryableWebhookEvents(ctx, now.Add(-w.Window), w.Processor.staleBefore(now), w.Batch)
    if err != nil {
        w.Log.Warn("list retryable webhook events", zap.Error(err))
        return 0
    }
    done := 0
    for _, it := range items {
        if err := w.Limiter.Wait(ctx); err != nil { return done }
        out, err := w.Processor.Process(ctx, it.ID)
        if err != nil {
            w.Log.Info("webhook retry failed", zap.String("event_id", it.ID), zap.Int("attempts", it.Attempts+1), zap.Error(err))
            continue
        }
        if out.Status == model.WebhookProcessed { done++ }
    }
    return done
}

// Cleanup removes finished events older than retention. It is run by the scheduler.
func Cleanup(ctx context.Context, s store.Store, retention time.Duration, log *zap.Logger) {
    n, err := s.DeleteWebhookEventsBefore(ctx, time.Now().UTC().Add(-retention))
    if err != nil {
        log.Warn("webhook event cleanup", zap.Error(err))
        return
    }
    if n > 0 { log.Info("webhook events cleaned up", zap.Int("deleted", n)) }
}
