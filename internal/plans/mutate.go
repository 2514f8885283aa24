package plans

import (
    "context"
    "errors"
    "fmt"

    "routeops/internal/model"
    "routeops/internal/store"
)

// mutate runs fn against the key's plan under the key lock, bumps the
// version and saves the result. fn sees (and edits) a private copy, so a
// failed mutation leaves the stored plan untouched.
func (s *Service) mutate(ctx context.Context, key model.PlanKey, ifVersion int, fn func(*model.RoutePlan) error) (model.RoutePlan, error) {
    lk := s.keyLock(key)
    lk.Lock()
    defer lk.Unlock()

    plan, err := s.store.GetPlan(ctx, key)
    if errors.Is(err, store.ErrNotFound) {
        return model.RoutePlan{}, ErrPlanNotFound
    }
    if err != nil {
        return model.RoutePlan{}, err
    }
    if ifVersion > 0 && plan.Version != ifVersion {
        return model.RoutePlan{}, fmt.Errorf("%w: have %d, caller read %d", ErrStaleVersion, plan.Version, ifVersion)
    }
    if err := fn(&plan); err != nil {
        return model.RoutePlan{}, err
    }
    plan.Version++
    normalize(&plan)
    return s.store.SavePlan(ctx, plan)
}

func findRoute(p *model.RoutePlan, routeID string) *model.Route {
    for i := range p.Routes {
        if p.Routes[i].RouteID == routeID {
            return &p.Routes[i]
        }
    }
    return nil
}

// Reassign replaces the executive on one route. The approval record, if
// any, survives: editing an approved plan just means it should be
// re-exported.
func (s *Service) Reassign(ctx context.Context, key model.PlanKey, req model.ReassignRequest) (model.RoutePlan, error) {
    if req.RouteID == "" || req.Executive.ID == "" {
        return model.RoutePlan{}, fmt.Errorf("%w: routeId and executive.id required", ErrInvalidArg)
    }
    return s.mutate(ctx, key, req.IfVersion, func(p *model.RoutePlan) error {
        rt := findRoute(p, req.RouteID)
        if rt == nil {
            return fmt.Errorf("%w: %s", ErrRouteNotFound, req.RouteID)
        }
        rt.Executive = req.Executive
        return nil
    })
}

// Exchange swaps the executives of two distinct routes. Applying the same
// exchange twice restores the original assignment.
func (s *Service) Exchange(ctx context.Context, key model.PlanKey, req model.ExchangeRequest) (model.RoutePlan, error) {
    if req.RouteID1 == req.RouteID2 {
        return model.RoutePlan{}, fmt.Errorf("%w: routes must differ", ErrInvalidArg)
    }
    return s.mutate(ctx, key, req.IfVersion, func(p *model.RoutePlan) error {
        r1 := findRoute(p, req.RouteID1)
        r2 := findRoute(p, req.RouteID2)
        if r1 == nil || r2 == nil {
            return fmt.Errorf("%w: both routes must exist", ErrInvalidArg)
        }
        r1.Executive, r2.Executive = r2.Executive, r1.Executive
        return nil
    })
}

// MoveStop removes a delivery from one route's sequence and inserts it into
// another's, renumbering both sides. InsertAt is 1-based and clamped to
// [1, len+1]; zero appends. Aggregates on both routes are marked stale;
// recomputing them is the optimizer adapter's business, not ours.
func (s *Service) MoveStop(ctx context.Context, key model.PlanKey, req model.MoveStopRequest) (model.RoutePlan, error) {
    if req.FromRouteID == req.ToRouteID {
        return model.RoutePlan{}, fmt.Errorf("%w: %s", ErrSameRoute, req.FromRouteID)
    }
    if req.DeliveryID == "" {
        return model.RoutePlan{}, fmt.Errorf("%w: deliveryId required", ErrInvalidArg)
    }
    return s.mutate(ctx, key, req.IfVersion, func(p *model.RoutePlan) error {
        from := findRoute(p, req.FromRouteID)
        if from == nil {
            return fmt.Errorf("%w: %s", ErrRouteNotFound, req.FromRouteID)
        }
        to := findRoute(p, req.ToRouteID)
        if to == nil {
            return fmt.Errorf("%w: %s", ErrRouteNotFound, req.ToRouteID)
        }
        idx := -1
        for i := range from.Stops {
            if from.Stops[i].DeliveryID == req.DeliveryID {
                idx = i
                break
            }
        }
        if idx == -1 {
            return fmt.Errorf("%w: delivery %s not on route %s", ErrStopNotFound, req.DeliveryID, req.FromRouteID)
        }
        moved := from.Stops[idx]
        from.Stops = append(from.Stops[:idx], from.Stops[idx+1:]...)

        // Clamp, don't error: omitted (0) or past-the-end appends, negative
        // inserts at the head.
        at := req.InsertAt
        switch {
        case at == 0 || at > len(to.Stops)+1:
            at = len(to.Stops) + 1
        case at < 1:
            at = 1
        }
        to.Stops = append(to.Stops, model.Stop{})
        copy(to.Stops[at:], to.Stops[at-1:])
        to.Stops[at-1] = moved

        from.MetricsStale = true
        to.MetricsStale = true
        return nil
    })
}
