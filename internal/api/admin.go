package api

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "deliverysync/internal/buildinfo"
    "deliverysync/internal/model"
    "deliverysync/internal/store"
    "deliverysync/internal/webhooks"
)

// WebhookEventsHandler handles GET /v1/admin/webhook-events?status=&platform=&limit=.
func (s *Server) WebhookEventsHandler(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    f := store.WebhookEventFilter{Status: model.WebhookEventStatus(q.Get("status"))}
    if v := q.Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
            return
        }
        f.Limit = n
    }
    if p := q.Get("platform"); p != "" {
        id, err := s.platformID(r.Context(), p)
        if err != nil {
            writeProblem(w, http.StatusNotFound, "Platform not found", p, r.URL.Path)
            return
        }
        f.PlatformID = id
    }
    items, err := s.Store.ListWebhookEvents(r.Context(), f)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List webhook events failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookEventRetryHandler handles POST /v1/admin/webhook-events/{id}/retry.
func (s *Server) WebhookEventRetryHandler(w http.ResponseWriter, r *http.Request) {
    out, err := s.Processor.Process(r.Context(), r.PathValue("id"))
    switch {
    case err == nil:
        writeJSON(w, http.StatusOK, out)
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Webhook event not found", "", r.URL.Path)
    case errors.Is(err, webhooks.ErrProcessing):
        writeJSON(w, http.StatusInternalServerError, out)
    default:
        writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
