package plans

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "routeops/internal/model"
    "routeops/internal/store"
)

// Optimizer is the external route-optimization engine and start-time
// predictor, reached over the network.
type Optimizer interface {
    Optimize(ctx context.Context, req model.PlanRequest) (model.RoutePlan, error)
    PredictStart(ctx context.Context, req model.PredictRequest) (model.StartPrediction, error)
}

// Exporter generates and uploads the approval artifacts for a plan.
type Exporter interface {
    Export(ctx context.Context, plan model.RoutePlan) (model.ExportResult, error)
}

// Service owns draft route plans. Each plan key gets its own mutex so two
// dispatchers editing the same draft serialize, while edits on different
// drafts never contend. External calls (optimizer, export) are made outside
// the key lock; the lock is taken only to read or merge state.
type Service struct {
    store store.Store
    opt   Optimizer
    exp   Exporter

    mu    sync.Mutex
    locks map[string]*sync.Mutex
}

func New(st store.Store, opt Optimizer, exp Exporter) *Service {
    return &Service{store: st, opt: opt, exp: exp, locks: map[string]*sync.Mutex{}}
}

func (s *Service) keyLock(key model.PlanKey) *sync.Mutex {
    s.mu.Lock()
    defer s.mu.Unlock()
    lk := s.locks[key.String()]
    if lk == nil {
        lk = &sync.Mutex{}
        s.locks[key.String()] = lk
    }
    return lk
}

// ValidateKey checks the raw date and session strings from the wire.
func ValidateKey(date, session string) (model.PlanKey, error) {
    if err := model.ParseDate(date); err != nil {
        return model.PlanKey{}, fmt.Errorf("%w: bad date %q", ErrInvalidArg, date)
    }
    sess, err := model.ParseSession(session)
    if err != nil {
        return model.PlanKey{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
    }
    return model.PlanKey{Date: date, Session: sess}, nil
}

// Plan requests a fresh optimization and replaces the draft for the key
// wholesale. The prior approval is cleared iff the new route set materially
// differs from the stored plan: replanning invalidates approval, editing
// (Reassign/Exchange/MoveStop) does not.
func (s *Service) Plan(ctx context.Context, req model.PlanRequest) (model.RoutePlan, error) {
    key, err := ValidateKey(req.Date, req.Session)
    if err != nil {
        return model.RoutePlan{}, err
    }

    // Long-running network call: never under the key lock.
    plan, err := s.opt.Optimize(ctx, req)
    if err != nil {
        return model.RoutePlan{}, err
    }

    lk := s.keyLock(key)
    lk.Lock()
    defer lk.Unlock()

    prev, prevErr := s.store.GetPlan(ctx, key)
    hadPrev := prevErr == nil
    if prevErr != nil && !errors.Is(prevErr, store.ErrNotFound) {
        return model.RoutePlan{}, prevErr
    }

    plan.Key = key
    plan.Version = 1
    if hadPrev {
        plan.Version = prev.Version + 1
    }
    plan.PlannedAt = time.Now().UTC().Format(time.RFC3339)
    normalize(&plan)

    saved, err := s.store.SavePlan(ctx, plan)
    if err != nil {
        return model.RoutePlan{}, err
    }
    if !hadPrev || materiallyDiffers(prev, plan) {
        if err := s.store.DeleteApproval(ctx, key); err != nil {
            return model.RoutePlan{}, err
        }
    }
    return saved, nil
}

// Get returns the current draft for a key.
func (s *Service) Get(ctx context.Context, key model.PlanKey) (model.RoutePlan, error) {
    p, err := s.store.GetPlan(ctx, key)
    if errors.Is(err, store.ErrNotFound) {
        return model.RoutePlan{}, ErrPlanNotFound
    }
    return p, err
}

// List returns summaries of every draft for selection UIs.
func (s *Service) List(ctx context.Context) ([]model.PlanSummary, error) {
    return s.store.ListPlans(ctx)
}

// Approval returns the approval record for a key, if any.
func (s *Service) Approval(ctx context.Context, key model.PlanKey) (model.ApprovalRecord, error) {
    rec, err := s.store.GetApproval(ctx, key)
    if errors.Is(err, store.ErrNotFound) {
        return model.ApprovalRecord{}, ErrPlanNotFound
    }
    return rec, err
}

// PredictStart proxies the start-time predictor.
func (s *Service) PredictStart(ctx context.Context, req model.PredictRequest) (model.StartPrediction, error) {
    if _, err := ValidateKey(req.Date, req.Session); err != nil {
        return model.StartPrediction{}, err
    }
    return s.opt.PredictStart(ctx, req)
}

// normalize recomputes derived fields: stop positions and delivery totals.
func normalize(p *model.RoutePlan) {
    total := 0
    for i := range p.Routes {
        for j := range p.Routes[i].Stops {
            p.Routes[i].Stops[j].Position = j + 1
        }
        total += len(p.Routes[i].Stops)
    }
    p.TotalDeliveries = total
    if p.NumDrivers == 0 {
        p.NumDrivers = len(p.Routes)
    }
}

// materiallyDiffers reports whether two plans differ in route ids or in the
// set of deliveries. Executive names, aggregates and warnings do not count.
func materiallyDiffers(a, b model.RoutePlan) bool {
    if len(a.Routes) != len(b.Routes) {
        return true
    }
    ids := map[string]bool{}
    deliveries := map[string]int{}
    for _, r := range a.Routes {
        ids[r.RouteID] = true
        for _, st := range r.Stops {
            deliveries[st.DeliveryID]++
        }
    }
    for _, r := range b.Routes {
        if !ids[r.RouteID] {
            return true
        }
        for _, st := range r.Stops {
            deliveries[st.DeliveryID]--
        }
    }
    for _, n := range deliveries {
        if n != 0 {
            return true
        }
    }
    return false
}
