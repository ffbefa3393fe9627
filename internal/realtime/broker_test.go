package realtime

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    topic := OrderTopic("DLV1")
    ch := b.Subscribe(topic)

    evt := Event{Type: "status_update", Data: map[string]any{"new_status": "in_transit"}}
    b.Publish(topic, evt)
    b.Publish(UserTopic("u1"), Event{Type: "other"})

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["new_status"] != "in_transit" { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(topic, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    // a second unsubscribe must not panic on a closed channel
    b.Unsubscribe(topic, ch)
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("t")
    done := make(chan struct{})
    go func() {
        for i := 0; i < 100; i++ { b.Publish("t", Event{Type: "x"}) }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked on a full subscriber")
    }
    if len(ch) != cap(ch) { t.Fatalf("expected full buffer, got %d", len(ch)) }
}
