package store

import (
    "context"
    "errors"
    "time"

    "routeops/internal/model"
)

// Store is the persistence interface used by the plan service, the journey
// manager and the API server. Plans and approvals are keyed by
// (delivery date, session); tracking sessions by route id.
type Store interface {
    // Draft plans
    SavePlan(ctx context.Context, plan model.RoutePlan) (model.RoutePlan, error)
    GetPlan(ctx context.Context, key model.PlanKey) (model.RoutePlan, error)
    ListPlans(ctx context.Context) ([]model.PlanSummary, error)

    // Approvals
    SaveApproval(ctx context.Context, rec model.ApprovalRecord) error
    GetApproval(ctx context.Context, key model.PlanKey) (model.ApprovalRecord, error)
    DeleteApproval(ctx context.Context, key model.PlanKey) error

    // Tracking sessions
    SaveSession(ctx context.Context, sess model.TrackingSession) error
    GetSession(ctx context.Context, routeID string) (model.TrackingSession, error)
    AppendPoint(ctx context.Context, routeID string, pt model.TrackingPoint) error
    CloseSession(ctx context.Context, routeID string, endedAt string) error
    ListActiveSessions(ctx context.Context) ([]model.TrackingSession, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error)
    ListSubscriptions(ctx context.Context) ([]Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error)
    RetryWebhookDelivery(ctx context.Context, id string) error

    // Admin aggregates
    PlanStats(ctx context.Context, date string) (map[string]any, error)
}

var ErrNotFound = errors.New("not found")

type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}

type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

type WebhookDelivery struct {
    ID             string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}
