package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "strings"

    "routeops/internal/buildinfo"
    "routeops/internal/metrics"
    "routeops/internal/model"
    "routeops/internal/plans"
    "routeops/internal/store"
    "routeops/internal/webhooks"
)

// PlansHandler handles POST/GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := getPrincipal(r)
        if !p.CanDispatch() { writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        var req model.PlanRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validatePlanRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
            return
        }
        plan, err := s.Plans.Plan(r.Context(), req)
        if err != nil {
            metrics.PlanMutations.WithLabelValues("plan", "error").Inc()
            writeError(w, err, r.URL.Path)
            return
        }
        metrics.PlanMutations.WithLabelValues("plan", "ok").Inc()
        s.Pub.Emit(r.Context(), webhooks.EventPlanReplanned, planEventData(plan))
        s.Broker.Publish(TopicFleet, Event{Type: webhooks.EventPlanReplanned, Data: planEventData(plan)})
        writeJSON(w, http.StatusOK, plan)
    case http.MethodGet:
        items, err := s.Plans.List(r.Context())
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PlanByKeyHandler handles /v1/plans/{date}/{session} and its operation
// subpaths (approve, reassign, exchange, move-stop), plus
// POST /v1/plans/predict-start.
func (s *Server) PlanByKeyHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing plan key", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    if parts[0] == "predict-start" {
        s.predictStart(w, r)
        return
    }
    if len(parts) < 2 {
        writeProblem(w, http.StatusNotFound, "Not Found", "want /v1/plans/{date}/{session}", r.URL.Path)
        return
    }
    key, err := plans.ValidateKey(parts[0], parts[1])
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }

    if len(parts) == 2 {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        plan, err := s.Plans.Get(r.Context(), key)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        out := map[string]any{"plan": plan}
        if rec, err := s.Plans.Approval(r.Context(), key); err == nil {
            out["approval"] = rec
        }
        writeJSON(w, http.StatusOK, out)
        return
    }

    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := getPrincipal(r)
    if !p.CanDispatch() { writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path); return }

    switch parts[2] {
    case "approve":
        rec, err := s.Plans.Approve(r.Context(), key)
        if err != nil {
            metrics.Exports.WithLabelValues("error").Inc()
            writeError(w, err, r.URL.Path)
            return
        }
        metrics.Exports.WithLabelValues("ok").Inc()
        s.Pub.Emit(r.Context(), webhooks.EventPlanApproved, map[string]any{
            "date": key.Date, "session": key.Session, "artifacts": rec.Artifacts,
        })
        writeJSON(w, http.StatusOK, rec)
    case "reassign":
        var req model.ReassignRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.applyMutation(w, r, "reassign", key, func() (model.RoutePlan, error) {
            return s.Plans.Reassign(r.Context(), key, req)
        })
    case "exchange":
        var req model.ExchangeRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.applyMutation(w, r, "exchange", key, func() (model.RoutePlan, error) {
            return s.Plans.Exchange(r.Context(), key, req)
        })
    case "move-stop":
        var req model.MoveStopRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.applyMutation(w, r, "move_stop", key, func() (model.RoutePlan, error) {
            return s.Plans.MoveStop(r.Context(), key, req)
        })
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "unknown plan operation: "+parts[2], r.URL.Path)
    }
}

func (s *Server) applyMutation(w http.ResponseWriter, r *http.Request, op string, key model.PlanKey, fn func() (model.RoutePlan, error)) {
    plan, err := fn()
    if err != nil {
        metrics.PlanMutations.WithLabelValues(op, "error").Inc()
        writeError(w, err, r.URL.Path)
        return
    }
    metrics.PlanMutations.WithLabelValues(op, "ok").Inc()
    s.Pub.Emit(r.Context(), webhooks.EventPlanUpdated, map[string]any{
        "date": key.Date, "session": key.Session, "op": op, "version": plan.Version,
    })
    s.Broker.Publish(TopicFleet, Event{Type: webhooks.EventPlanUpdated, Data: map[string]any{
        "date": key.Date, "session": string(key.Session), "op": op, "version": plan.Version,
    }})
    writeJSON(w, http.StatusOK, plan)
}

func (s *Server) predictStart(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.PredictRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    pred, err := s.Plans.PredictStart(r.Context(), req)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, pred)
}

func planEventData(p model.RoutePlan) map[string]any {
    return map[string]any{
        "date": p.Key.Date, "session": string(p.Key.Session),
        "version": p.Version, "numDrivers": p.NumDrivers, "totalDeliveries": p.TotalDeliveries,
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req store.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        sub.Secret = ""
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, err := s.Store.ListSubscriptions(r.Context())
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing subscription id", r.URL.Path)
        return
    }
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil { limit = n }
    }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "retry" {
        writeProblem(w, http.StatusNotFound, "Not Found", "want .../{id}/retry", r.URL.Path)
        return
    }
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if err := s.Store.RetryWebhookDelivery(r.Context(), parts[0]); err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PlanStatsHandler handles GET /v1/admin/plan-stats
func (s *Server) PlanStatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    stats, err := s.Store.PlanStats(r.Context(), r.URL.Query().Get("date"))
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, stats)
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if _, err := s.Store.ListPlans(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// VersionHandler handles GET /version
func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, buildinfo.Info())
}
