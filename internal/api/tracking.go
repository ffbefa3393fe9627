package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "deliverysync/internal/model"
    "deliverysync/internal/realtime"
    "deliverysync/internal/store"
)

// trackingView is the public projection of a delivery. Contact details stay out.
type trackingView struct {
    TrackingNumber     string               `json:"trackingNumber"`
    Status             model.DeliveryStatus `json:"status"`
    PackageDescription string               `json:"packageDescription,omitempty"`
    PickupTime         *time.Time           `json:"pickupTime,omitempty"`
    ActualDeliveryTime *time.Time           `json:"actualDeliveryTime,omitempty"`
    CreatedAt          time.Time            `json:"createdAt"`
    UpdatedAt          time.Time            `json:"updatedAt"`
    History            []trackingStep       `json:"history"`
}

type trackingStep struct {
    Status model.DeliveryStatus `json:"status"`
    Note   string               `json:"note,omitempty"`
    At     time.Time            `json:"at"`
}

// TrackHandler handles GET /v1/track/{tracking}.
func (s *Server) TrackHandler(w http.ResponseWriter, r *http.Request) {
    d, err := s.Store.GetDeliveryByTracking(r.Context(), r.PathValue("tracking"))
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Tracking number not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
        return
    }
    hist, err := s.Store.ListHistory(r.Context(), d.ID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
        return
    }
    v := trackingView{
        TrackingNumber:     d.TrackingNumber,
        Status:             d.Status,
        PackageDescription: d.PackageDescription,
        PickupTime:         d.PickupTime,
        ActualDeliveryTime: d.ActualDeliveryTime,
        CreatedAt:          d.CreatedAt,
        UpdatedAt:          d.UpdatedAt,
        History:            make([]trackingStep, 0, len(hist)),
    }
    for _, h := range hist {
        v.History = append(v.History, trackingStep{Status: h.NewStatus, Note: h.Note, At: h.CreatedAt})
    }
    writeJSON(w, http.StatusOK, v)
}

// TrackStreamHandler handles GET /v1/track/{tracking}/stream as server-sent events.
func (s *Server) TrackStreamHandler(w http.ResponseWriter, r *http.Request) {
    tracking := r.PathValue("tracking")
    if _, err := s.Store.GetDeliveryByTracking(r.Context(), tracking); err != nil {
        writeProblem(w, http.StatusNotFound, "Tracking number not found", "", r.URL.Path)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    topic := realtime.OrderTopic(tracking)
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"tracking_number\":%q,\"ts\":%q}\n\n", tracking, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok {
                return
            }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", b)
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type  string         `json:"type"`
    Topic string         `json:"topic,omitempty"`
    Data  map[string]any `json:"data,omitempty"`
    Error string         `json:"error,omitempty"`
}

// RealtimeWSHandler handles GET /v1/realtime/ws. Clients send
// {"type":"subscribe","topic":"order_<tracking>"} and receive the topic's events.
func (s *Server) RealtimeWSHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    var wmu sync.Mutex
    write := func(m wsMessage) error {
        wmu.Lock()
        defer wmu.Unlock()
        _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
        return conn.WriteJSON(m)
    }

    subs := map[string]chan realtime.Event{}
    defer func() {
        for topic, ch := range subs {
            s.Broker.Unsubscribe(topic, ch)
        }
    }()

    conn.SetReadLimit(64 << 10)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

    done := make(chan struct{})
    defer close(done)
    go func() {
        ticker := time.NewTicker(20 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-done:
                return
            case <-ticker.C:
                if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                    return
                }
            }
        }
    }()

    for {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            return
        }
        _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
        switch msg.Type {
        case "subscribe":
            if !validTopic(msg.Topic) {
                _ = write(wsMessage{Type: "error", Topic: msg.Topic, Error: "topic must be order_<tracking number>"})
                continue
            }
            if _, ok := subs[msg.Topic]; ok {
                continue
            }
            ch := s.Broker.Subscribe(msg.Topic)
            subs[msg.Topic] = ch
            go func(topic string, ch chan realtime.Event) {
                for evt := range ch {
                    if err := write(wsMessage{Type: evt.Type, Topic: topic, Data: evt.Data}); err != nil {
                        return
                    }
                }
            }(msg.Topic, ch)
            _ = write(wsMessage{Type: "subscribed", Topic: msg.Topic})
        case "unsubscribe":
            if ch, ok := subs[msg.Topic]; ok {
                s.Broker.Unsubscribe(msg.Topic, ch)
                delete(subs, msg.Topic)
            }
        case "ping":
            _ = write(wsMessage{Type: "pong"})
        default:
            _ = write(wsMessage{Type: "error", Error: "unknown message type " + msg.Type})
        }
    }
}

// validTopic admits tracking topics only. The socket is unauthenticated, and a user
// topic would reveal every tracking number of that user.
func validTopic(t string) bool {
    return strings.HasPrefix(t, "order_") && len(t) > len("order_")
}
