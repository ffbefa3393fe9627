package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"

    "deliverysync/internal/delivery"
    "deliverysync/internal/model"
    "deliverysync/internal/pipeline"
    "deliverysync/internal/store"
)

// fromOrderRequest is the part of a marketplace order the hook validates before the
// marketplace adapter normalizes the full body.
type fromOrderRequest struct {
    ID     string `json:"id" validate:"required"`
    Status string `json:"status" validate:"required,oneof=pending paid processing shipped out_for_delivery delivered cancelled refunded"`
    Items  []struct {
        Quantity int `json:"quantity" validate:"min=0"`
    } `json:"items" validate:"dive"`
}

// FromOrderHandler handles POST /v1/deliveries/from-order, the order system's hook for
// order creation and status changes.
func (s *Server) FromOrderHandler(w http.ResponseWriter, r *http.Request) {
    body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
        return
    }
    var req fromOrderRequest
    if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.validate.Struct(req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
        return
    }
    conn, err := s.marketplaceConnection(r.Context())
    if err != nil {
        writeProblem(w, http.StatusNotFound, "No marketplace connection", err.Error(), r.URL.Path)
        return
    }
    order, err := s.Registry.For(model.PlatformMarketplace).Normalize(body)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
        return
    }
    res, err := s.Pipeline.Run(r.Context(), conn, order, pipeline.Options{
        Actor:  "order-system",
        Source: "order_hook",
        Step: func(ctx context.Context, u *pipeline.Unit) error {
            return u.Project(ctx, pipeline.ProjectOrderStatus(u.Order.Status), "Order status "+u.Order.Status)
        },
    })
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Order sync failed", err.Error(), r.URL.Path)
        return
    }
    status := http.StatusOK
    if res.Action == pipeline.ActionCreated {
        status = http.StatusCreated
    }
    writeJSON(w, status, map[string]any{"action": res.Action, "delivery": res.Delivery})
}

func (s *Server) marketplaceConnection(ctx context.Context) (model.PlatformConnection, error) {
    conns, err := s.Store.ListPlatforms(ctx)
    if err != nil {
        return model.PlatformConnection{}, err
    }
    for _, c := range conns {
        if c.Active && c.Type == model.PlatformMarketplace {
            return c, nil
        }
    }
    return model.PlatformConnection{}, store.ErrNotFound
}

type statusRequest struct {
    Status model.DeliveryStatus `json:"status" validate:"required"`
    Note   string               `json:"note"`
    Actor  string               `json:"actor"`
}

// StatusHandler handles POST /v1/deliveries/{id}/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
    var req statusRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.validate.Struct(req); err != nil || !req.Status.Valid() {
        writeProblem(w, http.StatusBadRequest, "Invalid status", string(req.Status), r.URL.Path)
        return
    }
    if req.Actor == "" {
        req.Actor = "api"
    }
    d, err := s.Machine.Transition(r.Context(), r.PathValue("id"), req.Status, req.Note, req.Actor)
    if err != nil {
        s.deliveryError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, d)
}

type assignRequest struct {
    CourierID string `json:"courier_id" validate:"required"`
    Actor     string `json:"actor"`
}

// AssignHandler handles POST /v1/deliveries/{id}/assign.
func (s *Server) AssignHandler(w http.ResponseWriter, r *http.Request) {
    var req assignRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.validate.Struct(req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid assignment", err.Error(), r.URL.Path)
        return
    }
    if req.Actor == "" {
        req.Actor = "api"
    }
    d, err := s.Machine.Assign(r.Context(), r.PathValue("id"), req.CourierID, req.Actor)
    if err != nil {
        s.deliveryError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, d)
}

func (s *Server) deliveryError(w http.ResponseWriter, r *http.Request, err error) {
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
    case errors.Is(err, delivery.ErrInvalidTransition):
        writeProblem(w, http.StatusConflict, "Invalid status transition", err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Delivery update failed", err.Error(), r.URL.Path)
    }
}
