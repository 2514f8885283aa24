package tracking

import (
    "context"
    "errors"
    "testing"
    "time"

    "routeops/internal/model"
    "routeops/internal/store"
    "routeops/pkg/logger"
)

func newTestManager(window time.Duration) (*Manager, *store.Memory) {
    st := store.NewMemory()
    return NewManager(st, logger.NewNop(), window), st
}

func pointAt(ts time.Time, lat, lng float64) model.TrackingPoint {
    return model.TrackingPoint{Timestamp: ts.UTC().Format(time.RFC3339), Lat: lat, Lng: lng}
}

func TestStartRecordStop(t *testing.T) {
    m, st := newTestManager(0)
    ctx := context.Background()

    sess, err := m.Start(ctx, "R1", "drv1")
    if err != nil { t.Fatalf("start: %v", err) }
    if sess.SessionID == "" || !sess.Active { t.Fatalf("bad session: %+v", sess) }

    base := time.Now()
    p1, ok, err := m.Record(ctx, "R1", pointAt(base, 12.97, 77.59))
    if err != nil || !ok { t.Fatalf("record 1: ok=%v err=%v", ok, err) }
    if p1.SequenceNo != 1 { t.Fatalf("seq 1: got %d", p1.SequenceNo) }
    p2, ok, err := m.Record(ctx, "R1", pointAt(base.Add(10*time.Second), 12.98, 77.60))
    if err != nil || !ok { t.Fatalf("record 2: ok=%v err=%v", ok, err) }
    if p2.SequenceNo != 2 { t.Fatalf("seq 2: got %d", p2.SequenceNo) }

    stored, err := st.GetSession(ctx, "R1")
    if err != nil { t.Fatalf("get session: %v", err) }
    if len(stored.Points) != 2 { t.Fatalf("stored points: got %d", len(stored.Points)) }

    out, err := m.Stop(ctx, "R1")
    if err != nil { t.Fatalf("stop: %v", err) }
    if out.Active || out.EndedAt == "" { t.Fatalf("stop result: %+v", out) }
}

func TestStartWhileTracking(t *testing.T) {
    m, _ := newTestManager(0)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }
    if _, err := m.Start(ctx, "R1", "drv2"); !errors.Is(err, ErrAlreadyTracking) {
        t.Fatalf("second start: got %v", err)
    }
    // A different route is free to start.
    if _, err := m.Start(ctx, "R2", "drv2"); err != nil { t.Fatalf("other route: %v", err) }
}

func TestRecordWithoutSession(t *testing.T) {
    m, _ := newTestManager(0)
    if _, _, err := m.Record(context.Background(), "R1", pointAt(time.Now(), 1, 2)); !errors.Is(err, ErrNotTracking) {
        t.Fatalf("got %v", err)
    }
}

func TestStopTwice(t *testing.T) {
    m, _ := newTestManager(0)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }
    if _, err := m.Stop(ctx, "R1"); err != nil { t.Fatalf("stop: %v", err) }
    if _, err := m.Stop(ctx, "R1"); !errors.Is(err, ErrNotTracking) { t.Fatalf("second stop: got %v", err) }
    if _, _, err := m.Record(ctx, "R1", pointAt(time.Now(), 1, 2)); !errors.Is(err, ErrNotTracking) {
        t.Fatalf("record after stop: got %v", err)
    }
}

func TestOutOfOrderPointDropped(t *testing.T) {
    m, st := newTestManager(0)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }

    base := time.Now()
    if _, ok, _ := m.Record(ctx, "R1", pointAt(base, 1, 2)); !ok { t.Fatalf("first point dropped") }

    // Earlier timestamp: dropped, no error, no sequence burned.
    _, ok, err := m.Record(ctx, "R1", pointAt(base.Add(-30*time.Second), 1.1, 2.1))
    if err != nil { t.Fatalf("stale point: %v", err) }
    if ok { t.Fatalf("stale point accepted") }

    // Identical timestamp: also dropped.
    if _, ok, _ := m.Record(ctx, "R1", pointAt(base, 1.2, 2.2)); ok { t.Fatalf("duplicate ts accepted") }

    p, ok, err := m.Record(ctx, "R1", pointAt(base.Add(10*time.Second), 1.3, 2.3))
    if err != nil || !ok { t.Fatalf("later point: ok=%v err=%v", ok, err) }
    if p.SequenceNo != 2 { t.Fatalf("dropped points must not burn sequence numbers: got %d", p.SequenceNo) }

    stored, _ := st.GetSession(ctx, "R1")
    if len(stored.Points) != 2 { t.Fatalf("stored points: got %d", len(stored.Points)) }
}

func TestRecordBadTimestamp(t *testing.T) {
    m, _ := newTestManager(0)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }
    if _, _, err := m.Record(ctx, "R1", model.TrackingPoint{Timestamp: "yesterday", Lat: 1, Lng: 2}); err == nil {
        t.Fatalf("unparsable timestamp should error")
    }
}

func TestListActive(t *testing.T) {
    m, _ := newTestManager(0)
    ctx := context.Background()
    if got := m.ListActive(); len(got) != 0 { t.Fatalf("empty manager: got %d", len(got)) }

    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start R1: %v", err) }
    if _, err := m.Start(ctx, "R2", "drv2"); err != nil { t.Fatalf("start R2: %v", err) }
    base := time.Now()
    m.Record(ctx, "R1", pointAt(base, 12.97, 77.59))
    m.Record(ctx, "R1", pointAt(base.Add(10*time.Second), 12.98, 77.60))

    journeys := m.ListActive()
    if len(journeys) != 2 { t.Fatalf("got %d journeys", len(journeys)) }
    byRoute := map[string]model.ActiveJourney{}
    for _, j := range journeys { byRoute[j.RouteID] = j }
    r1 := byRoute["R1"]
    if r1.PointCount != 2 { t.Fatalf("R1 pointCount: got %d", r1.PointCount) }
    if r1.LastPoint == nil || r1.LastPoint.Lat != 12.98 { t.Fatalf("R1 lastPoint: %+v", r1.LastPoint) }
    if byRoute["R2"].PointCount != 0 { t.Fatalf("R2 should have no points") }
}

func TestSweeperClosesIdleSessions(t *testing.T) {
    m, st := newTestManager(50 * time.Millisecond)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }

    time.Sleep(80 * time.Millisecond)
    m.sweepOnce()

    if len(m.ListActive()) != 0 { t.Fatalf("idle session not closed") }
    sess, err := st.GetSession(ctx, "R1")
    if err != nil { t.Fatalf("get session: %v", err) }
    if sess.Active || sess.EndedAt == "" { t.Fatalf("session not closed in store: %+v", sess) }
}

func TestRehydrateActiveSessions(t *testing.T) {
    st := store.NewMemory()
    ctx := context.Background()
    first := NewManager(st, logger.NewNop(), 0)
    if _, err := first.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }
    base := time.Now()
    first.Record(ctx, "R1", pointAt(base, 12.97, 77.59))
    first.Record(ctx, "R1", pointAt(base.Add(10*time.Second), 12.98, 77.60))

    // Same store, fresh manager: the live session carries over, sequence
    // numbers continue where they left off.
    second := NewManager(st, logger.NewNop(), 0)
    journeys := second.ListActive()
    if len(journeys) != 1 || journeys[0].RouteID != "R1" { t.Fatalf("rehydrate: %+v", journeys) }
    if journeys[0].PointCount != 2 { t.Fatalf("pointCount: got %d", journeys[0].PointCount) }
    p, ok, err := second.Record(ctx, "R1", pointAt(base.Add(20*time.Second), 12.99, 77.61))
    if err != nil || !ok { t.Fatalf("record after rehydrate: ok=%v err=%v", ok, err) }
    if p.SequenceNo != 3 { t.Fatalf("seq after rehydrate: got %d", p.SequenceNo) }
}

func TestTripSummary(t *testing.T) {
    m, _ := newTestManager(0)
    ctx := context.Background()
    if _, err := m.Start(ctx, "R1", "drv1"); err != nil { t.Fatalf("start: %v", err) }
    base := time.Now()
    m.Record(ctx, "R1", pointAt(base, 12.9716, 77.5946))
    m.Record(ctx, "R1", pointAt(base.Add(10*time.Second), 12.9816, 77.5946))

    sum, err := m.TripSummary(ctx, "R1")
    if err != nil { t.Fatalf("summary: %v", err) }
    if sum["pointCount"].(int) != 2 { t.Fatalf("pointCount: %v", sum["pointCount"]) }
    // 0.01 degrees of latitude is about 1.11 km.
    dist := sum["distanceKm"].(float64)
    if dist < 1.0 || dist > 1.3 { t.Fatalf("distanceKm: %v", dist) }

    if _, err := m.TripSummary(ctx, "R9"); !errors.Is(err, ErrNotTracking) { t.Fatalf("missing route: got %v", err) }
}

func TestHaversineZero(t *testing.T) {
    if d := haversineKm(12.97, 77.59, 12.97, 77.59); d != 0 { t.Fatalf("got %v", d) }
}
