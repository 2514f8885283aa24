package api

import (
    "sync"
)

// Event is one live journey/plan notification fanned out to SSE clients.
type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// EventBroker fans events out per topic. Topics are route ids for journey
// streams and the fleet topic for the dispatcher overview.
type EventBroker interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Publish(topic string, evt Event)
}

// TopicFleet receives every journey lifecycle event.
const TopicFleet = "fleet"

// Broker is the in-process EventBroker used when no REDIS_URL is set.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{}
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
    if m := b.subs[topic]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, topic) }
    }
    b.mu.Unlock()
    close(ch)
}

// Publish never blocks: slow subscribers miss events rather than stall
// ingest.
func (b *Broker) Publish(topic string, evt Event) {
    b.mu.Lock()
    for ch := range b.subs[topic] {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
