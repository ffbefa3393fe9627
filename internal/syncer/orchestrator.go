// Package syncer pulls recent orders from platform APIs and feeds unseen ones
// through the delivery pipeline.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deliverysync/internal/integrations"
	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
	"deliverysync/internal/pipeline"
	"deliverysync/internal/store"
)

var ErrInactive = errors.New("platform connection inactive")

type Orchestrator struct {
	Store    store.Store
	Registry *integrations.Registry
	Pipeline *pipeline.Pipeline
	Log      *zap.Logger
	// FetchTimeout bounds each platform API call.
	FetchTimeout time.Duration
	// Lookback is the window used for a connection that has never synced.
	Lookback    time.Duration
	Concurrency int
	Now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(s store.Store, reg *integrations.Registry, p *pipeline.Pipeline, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		Store: s, Registry: reg, Pipeline: p, Log: log,
		FetchTimeout: 30 * time.Second,
		Lookback:     24 * time.Hour,
		Concurrency:  4,
		Now:          func() time.Time { return time.Now().UTC() },
		locks:        map[string]*sync.Mutex{},
	}
}

func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locks == nil {
		o.locks = map[string]*sync.Mutex{}
	}
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

// Sync runs one pull for a connection. A skipped run is returned but not persisted.
// A fetch failure is persisted as a failed log, returned with the error, and leaves
// last_sync unchanged.
func (o *Orchestrator) Sync(ctx context.Context, platformID string, trigger model.SyncTrigger, force bool) (model.SyncLog, error) {
	conn, err := o.Store.GetPlatform(ctx, platformID)
	if err != nil {
		return model.SyncLog{}, fmt.Errorf("platform %s: %w", platformID, err)
	}
	if !conn.Active {
		return model.SyncLog{}, fmt.Errorf("%w: %s", ErrInactive, conn.Name)
	}
	now := o.Now()
	run := model.SyncLog{PlatformID: conn.ID, Trigger: trigger, StartedAt: now}

	lock := o.lockFor(conn.ID)
	if !lock.TryLock() {
		run.Status, run.Error = model.SyncSkipped, "sync already running"
		return run, nil
	}
	defer lock.Unlock()

	if !force && conn.LastSync != nil && now.Sub(*conn.LastSync) < conn.PollInterval {
		run.Status = model.SyncSkipped
		metrics.SyncRuns.WithLabelValues(conn.Name, string(run.Status)).Inc()
		return run, nil
	}

	log := o.Log.With(zap.String("platform", conn.Name), zap.String("trigger", string(trigger)))
	run.Status = model.SyncInProgress
	if err := o.Store.CreateSyncLog(ctx, &run); err != nil {
		return run, err
	}

	since := now.Add(-o.Lookback)
	if conn.LastSync != nil {
		since = *conn.LastSync
	}
	adapter := o.Registry.For(conn.Type)
	fctx, cancel := context.WithTimeout(ctx, o.FetchTimeout)
	docs, err := adapter.FetchOrders(fctx, conn, since)
	cancel()
	if err != nil {
		run.Status, run.Error = model.SyncFailed, err.Error()
		o.finish(ctx, &run, conn)
		log.Warn("sync fetch failed", zap.Error(err))
		return run, err
	}

	rules, err := o.Store.ListSyncRules(ctx, conn.ID)
	if err != nil {
		run.Status, run.Error = model.SyncFailed, err.Error()
		o.finish(ctx, &run, conn)
		return run, err
	}

	for _, raw := range docs {
		outcome, extID, err := o.syncOne(ctx, conn, adapter, rules, raw, now)
		switch outcome {
		case outcomeSynced:
			run.Synced++
		case outcomeSkipped:
			run.Skipped++
		default:
			run.Failed++
			run.Failures = append(run.Failures, model.SyncFailure{ExternalOrderID: extID, Error: err.Error()})
			log.Warn("sync order failed", zap.String("external_order_id", extID), zap.Error(err))
		}
		metrics.SyncOrders.WithLabelValues(conn.Name, outcome).Inc()
	}

	run.Status = model.SyncSuccess
	if run.Failed > 0 {
		run.Status = model.SyncPartial
	}
	o.finish(ctx, &run, conn)
	if err := o.Store.SetLastSync(ctx, conn.ID, now); err != nil {
		log.Error("set last sync", zap.Error(err))
	}
	log.Info("sync finished",
		zap.String("status", string(run.Status)),
		zap.Int("synced", run.Synced),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)
	return run, nil
}

const (
	outcomeSynced  = "synced"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

func (o *Orchestrator) syncOne(ctx context.Context, conn model.PlatformConnection, adapter integrations.Adapter, rules []model.SyncRule, raw []byte, now time.Time) (string, string, error) {
	order, err := adapter.Normalize(raw)
	if err != nil {
		return outcomeFailed, "", fmt.Errorf("normalize: %w", err)
	}
	if _, err := o.Store.GetMapping(ctx, conn.ID, order.ID); err == nil {
		return outcomeSkipped, order.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return outcomeFailed, order.ID, err
	}
	if ok, reason := Evaluate(rules, order, now); !ok {
		o.Log.Debug("order rejected by sync rule", zap.String("platform", conn.Name), zap.String("external_order_id", order.ID), zap.String("reason", reason))
		return outcomeSkipped, order.ID, nil
	}
	res, err := o.Pipeline.Run(ctx, conn, order, pipeline.Options{SkipExisting: true, Actor: "sync:" + conn.Name, Source: "sync"})
	if err != nil {
		return outcomeFailed, order.ID, err
	}
	if res.Action == pipeline.ActionSkipped {
		return outcomeSkipped, order.ID, nil
	}
	return outcomeSynced, order.ID, nil
}

func (o *Orchestrator) finish(ctx context.Context, run *model.SyncLog, conn model.PlatformConnection) {
	done := o.Now()
	run.CompletedAt = &done
	if err := o.Store.FinishSyncLog(context.WithoutCancel(ctx), *run); err != nil {
		o.Log.Error("finish sync log", zap.String("platform", conn.Name), zap.Error(err))
	}
	metrics.SyncRuns.WithLabelValues(conn.Name, string(run.Status)).Inc()
}

// SyncAll syncs every active, sync-enabled connection concurrently. A failing
// connection does not stop the others; their errors are joined.
func (o *Orchestrator) SyncAll(ctx context.Context, trigger model.SyncTrigger, force bool) ([]model.SyncLog, error) {
	conns, err := o.Store.ListPlatforms(ctx)
	if err != nil {
		return nil, err
	}
	var targets []model.PlatformConnection
	for _, c := range conns {
		if c.Active && c.SyncEnabled {
			targets = append(targets, c)
		}
	}
	logs := make([]model.SyncLog, len(targets))
	errs := make([]error, len(targets))
	var g errgroup.Group
	if o.Concurrency > 0 {
		g.SetLimit(o.Concurrency)
	}
	for i, c := range targets {
		g.Go(func() error {
			logs[i], errs[i] = o.Sync(ctx, c.ID, trigger, force)
			return nil
		})
	}
	_ = g.Wait()
	return logs, errors.Join(errs...)
}
