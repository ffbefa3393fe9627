package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

type recordStore struct {
	*store.Memory
	mu       sync.Mutex
	finishes []FinishRec
}
type FinishRec struct {
	ID      string
	Status  model.WebhookEventStatus
	ErrText string
}

func (r *recordStore) FinishWebhookEvent(ctx context.Context, id string, status model.WebhookEventStatus, errText string) error {
	r.mu.Lock()
	r.finishes = append(r.finishes, FinishRec{ID: id, Status: status, ErrText: errText})
	r.mu.Unlock()
	return r.Memory.FinishWebhookEvent(ctx, id, status, errText)
}

func newSweeper(h *harness) *RetrySweeper {
	w := NewRetrySweeper(h.store, h.processor, zap.NewNop(), time.Second, time.Hour, 10, 1)
	w.Limiter = rate.NewLimiter(rate.Inf, 1)
	return w
}

func TestSweeperProcessOnce_RetriesRecentFailure(t *testing.T) {
	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	h := newHarness(t, rs)
	e := &model.WebhookEvent{PlatformID: "p-late", EventType: model.EventOrderCreated, Payload: []byte(`{"id":"L-1"}`)}
	if err := rs.CreateWebhookEvent(ctx, e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := h.processor.Process(ctx, e.ID); err == nil {
		t.Fatalf("expected failure for a platform that does not exist yet")
	}
	if err := rs.UpsertPlatform(ctx, model.PlatformConnection{ID: "p-late", Name: "late", Type: model.PlatformGeneric, Active: true}); err != nil {
		t.Fatalf("upsert platform: %v", err)
	}

	w := newSweeper(h)
	if n := w.processOnce(); n != 1 {
		t.Fatalf("expected 1 processed, got %d (finishes=%+v)", n, rs.finishes)
	}
	if len(rs.finishes) != 2 || rs.finishes[0].Status != model.WebhookFailed || rs.finishes[1].Status != model.WebhookProcessed {
		t.Fatalf("unexpected finishes: %+v", rs.finishes)
	}
	got, _ := rs.GetWebhookEvent(ctx, e.ID)
	if got.Attempts != 2 || got.ProcessedAt == nil {
		t.Fatalf("expected 2 attempts and processed_at, got %+v", got)
	}
	if _, err := rs.GetMapping(ctx, "p-late", "L-1"); err != nil {
		t.Fatalf("mapping missing after retry: %v", err)
	}
}

func TestSweeperProcessOnce_SkipsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	h := newHarness(t, rs)
	e := &model.WebhookEvent{PlatformID: "p-gone", EventType: model.EventOrderCreated, Payload: []byte(`{"id":"L-2"}`)}
	_ = rs.CreateWebhookEvent(ctx, e)
	_, _ = h.processor.Process(ctx, e.ID)

	w := newSweeper(h)
	w.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_ = w.processOnce()
	if len(rs.finishes) != 1 {
		t.Fatalf("event outside the retry window was retried: %+v", rs.finishes)
	}
}

func TestSweeperReclaimsAbandonedProcessing(t *testing.T) {
	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	h := newHarness(t, rs)
	h.processor.StaleAfter = time.Millisecond
	e := &model.WebhookEvent{PlatformID: openConn.ID, EventType: model.EventOrderCreated, Payload: []byte(`{"id":"L-3"}`)}
	if err := rs.CreateWebhookEvent(ctx, e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	// A claim that never finished, as after a crash.
	if _, ok, err := rs.ClaimWebhookEvent(ctx, e.ID, time.Time{}); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	time.Sleep(5 * time.Millisecond)

	w := newSweeper(h)
	if n := w.processOnce(); n != 1 {
		t.Fatalf("expected the abandoned event to be processed, got %d", n)
	}
	got, _ := rs.GetWebhookEvent(ctx, e.ID)
	if got.Status != model.WebhookProcessed || got.Attempts != 2 {
		t.Fatalf("expected processed after 2 attempts, got %+v", got)
	}
	if _, err := rs.GetMapping(ctx, openConn.ID, "L-3"); err != nil {
		t.Fatalf("mapping missing after reclaim: %v", err)
	}
}

func TestProcessLeavesFreshClaimAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	e := &model.WebhookEvent{PlatformID: openConn.ID, EventType: model.EventOrderCreated, Payload: []byte(`{"id":"L-4"}`)}
	if err := h.store.CreateWebhookEvent(ctx, e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, _, err := h.store.ClaimWebhookEvent(ctx, e.ID, time.Time{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	out, err := h.processor.Process(ctx, e.ID)
	if err != nil || out.Status != model.WebhookProcessing {
		t.Fatalf("expected the held claim to be reported, got %+v err=%v", out, err)
	}
	got, _ := h.store.GetWebhookEvent(ctx, e.ID)
	if got.Attempts != 1 {
		t.Fatalf("held event was claimed again: %+v", got)
	}
}

func TestCleanupRemovesFinishedEvents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	h := newHarness(t, s)
	out, err := h.ingestor.Ingest(ctx, Request{Platform: "open", Body: []byte(`{"id":"C-1"}`)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	Cleanup(ctx, s, -time.Minute, zap.NewNop())
	if _, err := s.GetWebhookEvent(ctx, out.EventID); err == nil {
		t.Fatalf("expected processed event to be cleaned up")
	}
}
