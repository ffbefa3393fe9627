package api

import (
    "errors"
    "io"
    "net/http"

    "go.uber.org/zap"

    "deliverysync/internal/model"
    "deliverysync/internal/webhooks"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles POST /v1/webhooks/{platform}; platform is an id or name.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
    s.ingest(w, r, r.PathValue("platform"), "")
}

// WebhookByHeaderHandler handles POST /v1/webhooks with the platform in X-Platform-Name.
func (s *Server) WebhookByHeaderHandler(w http.ResponseWriter, r *http.Request) {
    s.ingest(w, r, r.Header.Get("X-Platform-Name"), "")
}

// TypedWebhookHandler handles POST /v1/webhooks/type/{type}/{platform}.
func (s *Server) TypedWebhookHandler(w http.ResponseWriter, r *http.Request) {
    s.ingest(w, r, r.PathValue("platform"), model.PlatformType(r.PathValue("type")))
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, platform string, typ model.PlatformType) {
    body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
        return
    }
    out, err := s.Ingestor.Ingest(r.Context(), webhooks.Request{
        Platform: platform,
        Type:     typ,
        Header:   r.Header,
        Body:     body,
    })
    switch {
    case err == nil:
        writeJSON(w, http.StatusOK, out)
    case errors.Is(err, webhooks.ErrUnauthorized):
        writeProblem(w, http.StatusUnauthorized, "Invalid signature", "", r.URL.Path)
    case errors.Is(err, webhooks.ErrMalformedPayload):
        writeProblem(w, http.StatusBadRequest, "Malformed payload", err.Error(), r.URL.Path)
    case errors.Is(err, webhooks.ErrUnknownPlatform):
        writeProblem(w, http.StatusNotFound, "Unknown platform", err.Error(), r.URL.Path)
    case errors.Is(err, webhooks.ErrProcessing):
        writeJSON(w, http.StatusInternalServerError, out)
    default:
        s.Log.Error("webhook ingest", zap.String("platform", platform), zap.Error(err))
        writeProblem(w, http.StatusInternalServerError, "Webhook ingest failed", err.Error(), r.URL.Path)
    }
}
