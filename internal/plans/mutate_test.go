package plans

import (
    "context"
    "errors"
    "testing"

    "routeops/internal/model"
)

func stopIDs(rt model.Route) []string {
    out := make([]string, 0, len(rt.Stops))
    for _, s := range rt.Stops { out = append(out, s.DeliveryID) }
    return out
}

func routeByID(t *testing.T, p model.RoutePlan, id string) model.Route {
    t.Helper()
    for _, rt := range p.Routes {
        if rt.RouteID == id { return rt }
    }
    t.Fatalf("route %s missing", id)
    return model.Route{}
}

func sameIDs(a []string, b ...string) bool {
    if len(a) != len(b) { return false }
    for i := range a {
        if a[i] != b[i] { return false }
    }
    return true
}

func TestReassign(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    plan, err := svc.Reassign(context.Background(), testKey(), model.ReassignRequest{
        RouteID: "R1", Executive: model.Executive{ID: "e9", Name: "Divya", Contact: "+91 98450 00000"},
    })
    if err != nil { t.Fatalf("reassign: %v", err) }
    if plan.Version != 2 { t.Fatalf("version: got %d", plan.Version) }
    if got := routeByID(t, plan, "R1").Executive.ID; got != "e9" { t.Fatalf("executive: got %s", got) }
    if got := routeByID(t, plan, "R2").Executive.ID; got != "e2" { t.Fatalf("other route touched: %s", got) }

    if _, err := svc.Reassign(context.Background(), testKey(), model.ReassignRequest{RouteID: "R9", Executive: model.Executive{ID: "e9"}}); !errors.Is(err, ErrRouteNotFound) {
        t.Fatalf("missing route: got %v", err)
    }
    if _, err := svc.Reassign(context.Background(), testKey(), model.ReassignRequest{RouteID: "R1"}); !errors.Is(err, ErrInvalidArg) {
        t.Fatalf("missing executive: got %v", err)
    }
}

func TestReassignLeavesApprovalInPlace(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)
    if _, err := svc.Approve(context.Background(), testKey()); err != nil { t.Fatalf("approve: %v", err) }
    if _, err := svc.Reassign(context.Background(), testKey(), model.ReassignRequest{RouteID: "R1", Executive: model.Executive{ID: "e9"}}); err != nil {
        t.Fatalf("reassign: %v", err)
    }
    if _, err := svc.Approval(context.Background(), testKey()); err != nil {
        t.Fatalf("approval should survive an edit: %v", err)
    }
}

func TestExchangeIsSelfInverse(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    plan, err := svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R2"})
    if err != nil { t.Fatalf("exchange: %v", err) }
    if routeByID(t, plan, "R1").Executive.ID != "e2" || routeByID(t, plan, "R2").Executive.ID != "e1" {
        t.Fatalf("executives not swapped")
    }
    // Stops stay put; only people move.
    if !sameIDs(stopIDs(routeByID(t, plan, "R1")), "S1", "S2", "S3") { t.Fatalf("R1 stops changed") }

    plan, err = svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R2"})
    if err != nil { t.Fatalf("second exchange: %v", err) }
    if routeByID(t, plan, "R1").Executive.ID != "e1" || routeByID(t, plan, "R2").Executive.ID != "e2" {
        t.Fatalf("double exchange should restore the original assignment")
    }
}

func TestExchangeValidation(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)
    if _, err := svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R1"}); !errors.Is(err, ErrInvalidArg) {
        t.Fatalf("same route: got %v", err)
    }
    if _, err := svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R9"}); !errors.Is(err, ErrInvalidArg) {
        t.Fatalf("missing route: got %v", err)
    }
    // A failed exchange must not bump the version.
    plan, err := svc.Get(context.Background(), testKey())
    if err != nil { t.Fatalf("get: %v", err) }
    if plan.Version != 1 { t.Fatalf("version after failed edits: got %d", plan.Version) }
}

func TestMoveStopRenumbersBothRoutes(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    plan, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{
        FromRouteID: "R1", ToRouteID: "R2", DeliveryID: "S2", InsertAt: 1,
    })
    if err != nil { t.Fatalf("move: %v", err) }

    r1 := routeByID(t, plan, "R1")
    r2 := routeByID(t, plan, "R2")
    if !sameIDs(stopIDs(r1), "S1", "S3") { t.Fatalf("R1: got %v", stopIDs(r1)) }
    if !sameIDs(stopIDs(r2), "S2", "S4") { t.Fatalf("R2: got %v", stopIDs(r2)) }
    for i, s := range r1.Stops {
        if s.Position != i+1 { t.Fatalf("R1 position %d at index %d", s.Position, i) }
    }
    for i, s := range r2.Stops {
        if s.Position != i+1 { t.Fatalf("R2 position %d at index %d", s.Position, i) }
    }
    if !r1.MetricsStale || !r2.MetricsStale { t.Fatalf("both routes should be marked stale") }
    if plan.TotalDeliveries != 4 { t.Fatalf("total deliveries: got %d", plan.TotalDeliveries) }
}

func TestMoveStopClampsInsertPosition(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    // Past the end of a one-stop route: appended.
    plan, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{
        FromRouteID: "R1", ToRouteID: "R2", DeliveryID: "S1", InsertAt: 99,
    })
    if err != nil { t.Fatalf("move high: %v", err) }
    if !sameIDs(stopIDs(routeByID(t, plan, "R2")), "S4", "S1") { t.Fatalf("R2: got %v", stopIDs(routeByID(t, plan, "R2"))) }

    // Zero means append.
    plan, err = svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{
        FromRouteID: "R1", ToRouteID: "R2", DeliveryID: "S2",
    })
    if err != nil { t.Fatalf("move append: %v", err) }
    if !sameIDs(stopIDs(routeByID(t, plan, "R2")), "S4", "S1", "S2") { t.Fatalf("R2: got %v", stopIDs(routeByID(t, plan, "R2"))) }

    // Negative clamps to the head.
    plan, err = svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{
        FromRouteID: "R1", ToRouteID: "R2", DeliveryID: "S3", InsertAt: -5,
    })
    if err != nil { t.Fatalf("move low: %v", err) }
    if !sameIDs(stopIDs(routeByID(t, plan, "R2")), "S3", "S4", "S1", "S2") { t.Fatalf("R2: got %v", stopIDs(routeByID(t, plan, "R2"))) }
}

func TestMoveStopValidation(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    if _, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{FromRouteID: "R1", ToRouteID: "R1", DeliveryID: "S1"}); !errors.Is(err, ErrSameRoute) {
        t.Fatalf("same route: got %v", err)
    }
    if _, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{FromRouteID: "R1", ToRouteID: "R2"}); !errors.Is(err, ErrInvalidArg) {
        t.Fatalf("missing delivery id: got %v", err)
    }
    if _, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{FromRouteID: "R1", ToRouteID: "R2", DeliveryID: "S4"}); !errors.Is(err, ErrStopNotFound) {
        t.Fatalf("stop on wrong route: got %v", err)
    }
    if _, err := svc.MoveStop(context.Background(), testKey(), model.MoveStopRequest{FromRouteID: "R9", ToRouteID: "R2", DeliveryID: "S1"}); !errors.Is(err, ErrRouteNotFound) {
        t.Fatalf("missing from route: got %v", err)
    }

    // Failed moves leave the plan byte-for-byte intact.
    plan, err := svc.Get(context.Background(), testKey())
    if err != nil { t.Fatalf("get: %v", err) }
    if plan.Version != 1 { t.Fatalf("version: got %d", plan.Version) }
    if !sameIDs(stopIDs(routeByID(t, plan, "R1")), "S1", "S2", "S3") { t.Fatalf("R1 mutated by failed move") }
}

func TestStaleVersionRejected(t *testing.T) {
    svc, _ := newTestService(&fakeOptimizer{plan: twoRoutePlan()}, &fakeExporter{})
    seedPlan(t, svc)

    if _, err := svc.Reassign(context.Background(), testKey(), model.ReassignRequest{RouteID: "R1", Executive: model.Executive{ID: "e9"}, IfVersion: 1}); err != nil {
        t.Fatalf("reassign v1: %v", err)
    }
    // A second edit against the version the first caller read must fail.
    if _, err := svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R2", IfVersion: 1}); !errors.Is(err, ErrStaleVersion) {
        t.Fatalf("stale edit: got %v", err)
    }
    // Omitting ifVersion opts out of the check.
    if _, err := svc.Exchange(context.Background(), testKey(), model.ExchangeRequest{RouteID1: "R1", RouteID2: "R2"}); err != nil {
        t.Fatalf("unconditional edit: %v", err)
    }
}
