package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "routeops/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set.
// Plans and sessions are deep-copied on the way in and out so callers can
// never mutate stored state behind the lock's back.
type Memory struct {
    mu        sync.RWMutex
    plans     map[string]model.RoutePlan      // plan key -> plan
    approvals map[string]model.ApprovalRecord // plan key -> approval
    sessions  map[string]model.TrackingSession // routeId -> session
    subs      []Subscription
    // Webhook queue state
    deliveries map[string]*memDelivery
    order      []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
    return &Memory{
        plans: map[string]model.RoutePlan{},
        approvals: map[string]model.ApprovalRecord{},
        sessions: map[string]model.TrackingSession{},
        deliveries: map[string]*memDelivery{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func clonePlan(p model.RoutePlan) model.RoutePlan {
    out := p
    out.Warnings = append([]string(nil), p.Warnings...)
    out.Routes = make([]model.Route, len(p.Routes))
    for i, r := range p.Routes {
        out.Routes[i] = r
        out.Routes[i].Stops = append([]model.Stop(nil), r.Stops...)
    }
    return out
}

func cloneSession(s model.TrackingSession) model.TrackingSession {
    out := s
    out.Points = append([]model.TrackingPoint(nil), s.Points...)
    return out
}

func (m *Memory) SavePlan(ctx context.Context, plan model.RoutePlan) (model.RoutePlan, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.plans[plan.Key.String()] = clonePlan(plan)
    return clonePlan(plan), nil
}

func (m *Memory) GetPlan(ctx context.Context, key model.PlanKey) (model.RoutePlan, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    p, ok := m.plans[key.String()]
    if !ok { return model.RoutePlan{}, ErrNotFound }
    return clonePlan(p), nil
}

func (m *Memory) ListPlans(ctx context.Context) ([]model.PlanSummary, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := []model.PlanSummary{}
    for k, p := range m.plans {
        _, approved := m.approvals[k]
        out = append(out, model.PlanSummary{
            Key: p.Key, NumDrivers: p.NumDrivers, TotalDeliveries: p.TotalDeliveries,
            Approved: approved, PlannedAt: p.PlannedAt,
        })
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Key.Date != out[j].Key.Date { return out[i].Key.Date < out[j].Key.Date }
        return out[i].Key.Session < out[j].Key.Session
    })
    return out, nil
}

func (m *Memory) SaveApproval(ctx context.Context, rec model.ApprovalRecord) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.approvals[rec.Key.String()] = rec
    return nil
}

func (m *Memory) GetApproval(ctx context.Context, key model.PlanKey) (model.ApprovalRecord, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    rec, ok := m.approvals[key.String()]
    if !ok { return model.ApprovalRecord{}, ErrNotFound }
    return rec, nil
}

func (m *Memory) DeleteApproval(ctx context.Context, key model.PlanKey) error {
    m.mu.Lock(); defer m.mu.Unlock()
    delete(m.approvals, key.String())
    return nil
}

func (m *Memory) SaveSession(ctx context.Context, sess model.TrackingSession) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.sessions[sess.RouteID] = cloneSession(sess)
    return nil
}

func (m *Memory) GetSession(ctx context.Context, routeID string) (model.TrackingSession, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    s, ok := m.sessions[routeID]
    if !ok { return model.TrackingSession{}, ErrNotFound }
    return cloneSession(s), nil
}

func (m *Memory) AppendPoint(ctx context.Context, routeID string, pt model.TrackingPoint) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.sessions[routeID]
    if !ok { return ErrNotFound }
    s.Points = append(s.Points, pt)
    m.sessions[routeID] = s
    return nil
}

func (m *Memory) CloseSession(ctx context.Context, routeID string, endedAt string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.sessions[routeID]
    if !ok { return ErrNotFound }
    s.Active = false
    s.EndedAt = endedAt
    m.sessions[routeID] = s
    return nil
}

func (m *Memory) ListActiveSessions(ctx context.Context) ([]model.TrackingSession, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := []model.TrackingSession{}
    for _, s := range m.sessions {
        if s.Active { out = append(out, cloneSession(s)) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
    return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    var out []Subscription
    for _, s := range m.subs {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    return append([]Subscription(nil), m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]Subscription, 0, len(m.subs))
    found := false
    for _, s := range m.subs {
        if s.ID == id { found = true; continue }
        out = append(out, s)
    }
    if !found { return ErrNotFound }
    m.subs = out
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.order = append(m.order, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil {
        d.Status = "failed"
        d.LastError = lastError
        d.ResponseCode = responseCode
        d.LatencyMs = latencyMs
    }
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if d == nil { continue }
        if status != "" && d.Status != status { continue }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if d.LastError != "" { item["lastError"] = d.LastError }
        out = append(out, item)
        if len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = "pending"
    d.NextAttemptAt = time.Now()
    return nil
}

func (m *Memory) PlanStats(ctx context.Context, date string) (map[string]any, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    plans, routes, stops, approved := 0, 0, 0, 0
    var distKm float64
    for k, p := range m.plans {
        if date != "" && p.Key.Date != date { continue }
        plans++
        routes += len(p.Routes)
        for _, r := range p.Routes {
            stops += len(r.Stops)
            distKm += r.TotalDistanceKm
        }
        if _, ok := m.approvals[k]; ok { approved++ }
    }
    return map[string]any{"plans": plans, "routes": routes, "stops": stops, "approved": approved, "totalDistanceKm": distKm}, nil
}
