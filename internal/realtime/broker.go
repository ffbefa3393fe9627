// Package realtime fans tracking updates out to SSE and websocket subscribers.
package realtime

import (
    "sync"
)

// Event is one update pushed to subscribers of a topic.
type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Publisher is the narrow view the reconciliation bridge needs.
type Publisher interface {
    Publish(topic string, evt Event)
}

// EventBroker is implemented by the in-memory Broker and by RedisBroker.
type EventBroker interface {
    Publisher
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
}

// OrderTopic and UserTopic name the two subscription keys a status change fans out to.
func OrderTopic(tracking string) string { return "order_" + tracking }
func UserTopic(userID string) string { return "user_" + userID }

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (b *Broker) Publish(topic string, evt Event) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
