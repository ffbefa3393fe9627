package api

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "deliverysync/internal/integrations"
    "deliverysync/internal/model"
    "deliverysync/internal/store"
    "deliverysync/internal/syncer"
)

// SyncAllHandler handles POST /v1/sync for every active, sync-enabled platform.
func (s *Server) SyncAllHandler(w http.ResponseWriter, r *http.Request) {
    force := r.URL.Query().Get("force") == "true"
    runs, err := s.Orchestrator.SyncAll(r.Context(), model.TriggerManual, force)
    if runs == nil {
        runs = []model.SyncLog{}
    }
    if err != nil {
        writeJSON(w, http.StatusBadGateway, map[string]any{"runs": runs, "error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// SyncHandler handles POST /v1/sync/{platform}[?force=true].
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
    id, err := s.platformID(r.Context(), r.PathValue("platform"))
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Platform not found", r.PathValue("platform"), r.URL.Path)
        return
    }
    force := r.URL.Query().Get("force") == "true"
    run, err := s.Orchestrator.Sync(r.Context(), id, model.TriggerManual, force)
    switch {
    case err == nil:
        writeJSON(w, http.StatusOK, run)
    case errors.Is(err, syncer.ErrInactive):
        writeProblem(w, http.StatusConflict, "Platform inactive", err.Error(), r.URL.Path)
    case errors.Is(err, integrations.ErrExternalCall):
        writeJSON(w, http.StatusBadGateway, run)
    default:
        writeProblem(w, http.StatusInternalServerError, "Sync failed", err.Error(), r.URL.Path)
    }
}

// SyncLogsHandler handles GET /v1/admin/sync-logs?platform=&limit=.
func (s *Server) SyncLogsHandler(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    platform := q.Get("platform")
    if platform != "" {
        id, err := s.platformID(r.Context(), platform)
        if err != nil {
            writeProblem(w, http.StatusNotFound, "Platform not found", platform, r.URL.Path)
            return
        }
        platform = id
    }
    limit, _ := strconv.Atoi(q.Get("limit"))
    logs, err := s.Store.ListSyncLogs(r.Context(), platform, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List sync logs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}

// platformID resolves a path key that may be a connection id or name.
func (s *Server) platformID(ctx context.Context, key string) (string, error) {
    p, err := s.Store.GetPlatform(ctx, key)
    if errors.Is(err, store.ErrNotFound) {
        p, err = s.Store.GetPlatformByName(ctx, key)
    }
    if err != nil {
        return "", err
    }
    return p.ID, nil
}
