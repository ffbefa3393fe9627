package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverysync/internal/delivery"
	"deliverysync/internal/integrations"
	"deliverysync/internal/integrations/generic"
	"deliverysync/internal/model"
	"deliverysync/internal/pipeline"
	"deliverysync/internal/store"
)

type fakePlatform struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newFakePlatform(t *testing.T, status int, body string) *fakePlatform {
	f := &fakePlatform{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newOrchestrator(t *testing.T, s store.Store, now time.Time) *Orchestrator {
	t.Helper()
	reg := integrations.NewRegistry(generic.New(integrations.NewHTTPClient(2 * time.Second)))
	p := pipeline.New(s, delivery.NewMachine(s, nil, nil), pipeline.Config{BaseFee: decimal.NewFromInt(100)}, nil)
	o := NewOrchestrator(s, reg, p, nil)
	o.Now = func() time.Time { return now }
	return o
}

func addConn(t *testing.T, s store.Store, baseURL string, lastSync *time.Time) model.PlatformConnection {
	t.Helper()
	ctx := context.Background()
	c := model.PlatformConnection{ID: "p-gen", Name: "generic", Type: model.PlatformGeneric, BaseURL: baseURL, Active: true, SyncEnabled: true, PollInterval: 5 * time.Minute}
	require.NoError(t, s.UpsertPlatform(ctx, c))
	if lastSync != nil {
		require.NoError(t, s.SetLastSync(ctx, c.ID, *lastSync))
	}
	return c
}

func TestSyncSkipsInsidePollInterval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-2 * time.Minute)
	f := newFakePlatform(t, 200, `[]`)
	s := store.NewMemory()
	c := addConn(t, s, f.srv.URL, &last)

	run, err := newOrchestrator(t, s, now).Sync(ctx, c.ID, model.TriggerScheduled, false)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSkipped, run.Status)
	assert.Zero(t, f.calls.Load())
	got, err := s.GetPlatform(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSync.Equal(last))
	logs, err := s.ListSyncLogs(ctx, c.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSyncPartialFailureKeepsGoodOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFakePlatform(t, 200, `{"orders":[{"id":"A","status":"processing","total":"20"},{"status":"processing"}]}`)
	s := store.NewMemory()
	c := addConn(t, s, f.srv.URL, nil)

	run, err := newOrchestrator(t, s, now).Sync(ctx, c.ID, model.TriggerManual, false)
	require.NoError(t, err)
	assert.Equal(t, model.SyncPartial, run.Status)
	assert.Equal(t, 1, run.Synced)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Failures, 1)
	assert.Contains(t, run.Failures[0].Error, "required field missing")

	_, err = s.GetMapping(ctx, c.ID, "A")
	assert.NoError(t, err)
	got, err := s.GetPlatform(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.True(t, got.LastSync.Equal(now))
	logs, err := s.ListSyncLogs(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncPartial, logs[0].Status)
}

func TestSyncSkipsMappedAndRejectedOrders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFakePlatform(t, 200, `[{"id":"A","payment_status":"paid"},{"id":"B","payment_status":"pending"}]`)
	s := store.NewMemory()
	c := addConn(t, s, f.srv.URL, nil)
	require.NoError(t, s.UpsertSyncRule(ctx, model.SyncRule{PlatformID: c.ID, Name: "paid only", Type: model.RulePaymentFilter, Active: true, RequirePayment: true}))
	o := newOrchestrator(t, s, now)

	run, err := o.Sync(ctx, c.ID, model.TriggerManual, true)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSuccess, run.Status)
	assert.Equal(t, 1, run.Synced)
	assert.Equal(t, 1, run.Skipped)

	run, err = o.Sync(ctx, c.ID, model.TriggerManual, true)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Synced)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestSyncFetchFailureLeavesLastSync(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)
	f := newFakePlatform(t, 503, `down`)
	s := store.NewMemory()
	c := addConn(t, s, f.srv.URL, &last)

	run, err := newOrchestrator(t, s, now).Sync(ctx, c.ID, model.TriggerScheduled, false)
	require.ErrorIs(t, err, integrations.ErrExternalCall)
	assert.Equal(t, model.SyncFailed, run.Status)
	got, _ := s.GetPlatform(ctx, c.ID)
	assert.True(t, got.LastSync.Equal(last))
	logs, _ := s.ListSyncLogs(ctx, c.ID, 10)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncFailed, logs[0].Status)
}

func TestSyncAllCoversEnabledConnections(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFakePlatform(t, 200, `[{"id":"X"}]`)
	s := store.NewMemory()
	addConn(t, s, f.srv.URL, nil)
	require.NoError(t, s.UpsertPlatform(ctx, model.PlatformConnection{ID: "p-off", Name: "paused", Type: model.PlatformGeneric, BaseURL: f.srv.URL, Active: true}))

	logs, err := newOrchestrator(t, s, now).SyncAll(ctx, model.TriggerScheduled, false)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "p-gen", logs[0].PlatformID)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestSyncInactive(t *testing.T) {
	s := store.NewMemory()
	require.NoError(t, s.UpsertPlatform(context.Background(), model.PlatformConnection{ID: "p-x", Name: "x", Type: model.PlatformGeneric}))
	_, err := newOrchestrator(t, s, time.Now()).Sync(context.Background(), "p-x", model.TriggerManual, true)
	assert.ErrorIs(t, err, ErrInactive)
}
