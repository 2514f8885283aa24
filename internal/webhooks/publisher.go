// Package webhooks delivers plan and journey lifecycle events to registered
// subscriber endpoints.
package webhooks

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "routeops/internal/store"
)

// Event types emitted by the service.
const (
    EventPlanReplanned  = "plan.replanned"
    EventPlanUpdated    = "plan.updated"
    EventPlanApproved   = "plan.approved"
    EventJourneyStarted = "journey.started"
    EventJourneyStopped = "journey.stopped"
)

type Publisher struct {
    Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
    return &Publisher{Store: s}
}

// Emit enqueues the event for every subscription matching its type.
// Delivery happens asynchronously in the worker.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
    subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
    if err != nil || len(subs) == 0 {
        return
    }
    payload := map[string]any{
        "id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
        "type": eventType,
        "ts":   time.Now().UTC().Format(time.RFC3339),
        "data": data,
    }
    body, _ := json.Marshal(payload)
    for _, s := range subs {
        _, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
    }
}
