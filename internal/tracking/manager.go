package tracking

import (
    "context"
    "errors"
    "fmt"
    "math"
    "sync"
    "time"

    "github.com/google/uuid"
    "golang.org/x/time/rate"

    "routeops/internal/metrics"
    "routeops/internal/model"
    "routeops/internal/store"
    "routeops/pkg/logger"
)

var (
    ErrAlreadyTracking = errors.New("journey already in progress for route")
    ErrNotTracking     = errors.New("no active journey for route")
)

// routeState is the in-memory head of one route's tracking session. Full
// point history lives in the store; here we keep only what Record and
// ListActive need, so ingest never touches plan-edit locks or grows
// unbounded.
type routeState struct {
    mu        sync.Mutex
    sessionID string
    driverID  string
    startedAt string
    nextSeq   int
    count     int
    last      *model.TrackingPoint
    lastTS    time.Time
    lastSeen  time.Time
    lim       *rate.Limiter
}

// Manager runs the Idle -> Tracking -> Idle state machine per route and
// ingests GPS points. Each route has its own lock and rate limiter;
// high-frequency ingest on one route cannot contend with another.
type Manager struct {
    store  store.Store
    log    *logger.Logger
    window time.Duration // inactivity auto-close

    mu     sync.Mutex
    routes map[string]*routeState
    stop   chan struct{}
    wg     sync.WaitGroup
}

// NewManager builds a Manager and rehydrates any sessions that were active
// when the process last stopped.
func NewManager(st store.Store, log *logger.Logger, inactivity time.Duration) *Manager {
    if inactivity <= 0 {
        inactivity = 15 * time.Minute
    }
    m := &Manager{store: st, log: log, window: inactivity, routes: map[string]*routeState{}, stop: make(chan struct{})}
    sessions, err := st.ListActiveSessions(context.Background())
    if err != nil {
        log.Warn("could not rehydrate active sessions", logger.Error(err))
        return m
    }
    for _, s := range sessions {
        rs := &routeState{sessionID: s.SessionID, driverID: s.DriverID, startedAt: s.StartedAt, nextSeq: 1, lastSeen: time.Now(), lim: newIngestLimiter()}
        if n := len(s.Points); n > 0 {
            last := s.Points[n-1]
            // accepted points are numbered 1..N with no gaps
            rs.count = last.SequenceNo
            rs.last = &last
            rs.nextSeq = last.SequenceNo + 1
            if ts, err := time.Parse(time.RFC3339, last.Timestamp); err == nil {
                rs.lastTS = ts
            }
        }
        m.routes[s.RouteID] = rs
    }
    return m
}

// GPS updates arrive roughly every 10s per route; anything past 2/s with a
// burst of 10 is a misbehaving device.
func newIngestLimiter() *rate.Limiter { return rate.NewLimiter(rate.Limit(2), 10) }

// Start begins a journey for a route+driver. Fails if one is already live.
func (m *Manager) Start(ctx context.Context, routeID, driverID string) (model.TrackingSession, error) {
    if routeID == "" || driverID == "" {
        return model.TrackingSession{}, errors.New("routeId and driverId required")
    }
    m.mu.Lock()
    if _, live := m.routes[routeID]; live {
        m.mu.Unlock()
        return model.TrackingSession{}, fmt.Errorf("%w: %s", ErrAlreadyTracking, routeID)
    }
    rs := &routeState{
        sessionID: uuid.New().String(),
        driverID:  driverID,
        startedAt: time.Now().UTC().Format(time.RFC3339),
        nextSeq:   1,
        lastSeen:  time.Now(),
        lim:       newIngestLimiter(),
    }
    m.routes[routeID] = rs
    m.mu.Unlock()

    sess := model.TrackingSession{
        RouteID: routeID, DriverID: driverID, SessionID: rs.sessionID,
        Active: true, StartedAt: rs.startedAt,
    }
    if err := m.store.SaveSession(ctx, sess); err != nil {
        m.mu.Lock()
        delete(m.routes, routeID)
        m.mu.Unlock()
        return model.TrackingSession{}, err
    }
    m.log.Info("journey started", logger.String("routeId", routeID), logger.String("driverId", driverID))
    return sess, nil
}

// Record appends a GPS point to the route's active session. Points whose
// timestamp does not advance past the last recorded one are dropped, not
// fatal: GPS updates may arrive out of order over flaky links. The returned
// bool reports whether the point was accepted.
func (m *Manager) Record(ctx context.Context, routeID string, pt model.TrackingPoint) (model.TrackingPoint, bool, error) {
    m.mu.Lock()
    rs := m.routes[routeID]
    m.mu.Unlock()
    if rs == nil {
        return model.TrackingPoint{}, false, fmt.Errorf("%w: %s", ErrNotTracking, routeID)
    }
    ts, err := time.Parse(time.RFC3339, pt.Timestamp)
    if err != nil {
        return model.TrackingPoint{}, false, fmt.Errorf("bad point timestamp %q: %w", pt.Timestamp, err)
    }

    rs.mu.Lock()
    defer rs.mu.Unlock()
    rs.lastSeen = time.Now()
    if !rs.lim.Allow() {
        m.log.Warn("tracking point rate limited", logger.String("routeId", routeID))
        metrics.TrackingPoints.WithLabelValues("rate_limited").Inc()
        return model.TrackingPoint{}, false, nil
    }
    if !rs.lastTS.IsZero() && !ts.After(rs.lastTS) {
        m.log.Warn("out-of-order tracking point dropped",
            logger.String("routeId", routeID), logger.String("ts", pt.Timestamp))
        metrics.TrackingPoints.WithLabelValues("dropped").Inc()
        return model.TrackingPoint{}, false, nil
    }
    pt.SequenceNo = rs.nextSeq
    if err := m.store.AppendPoint(ctx, routeID, pt); err != nil {
        return model.TrackingPoint{}, false, err
    }
    metrics.TrackingPoints.WithLabelValues("accepted").Inc()
    rs.nextSeq++
    rs.count++
    rs.last = &pt
    rs.lastTS = ts
    return pt, true, nil
}

// Stop closes the route's journey. The transition happens exactly once; a
// second Stop, like a Record after Stop, reports NotTracking.
func (m *Manager) Stop(ctx context.Context, routeID string) (model.TrackingSession, error) {
    m.mu.Lock()
    rs := m.routes[routeID]
    if rs != nil {
        delete(m.routes, routeID)
    }
    m.mu.Unlock()
    if rs == nil {
        return model.TrackingSession{}, fmt.Errorf("%w: %s", ErrNotTracking, routeID)
    }
    endedAt := time.Now().UTC().Format(time.RFC3339)
    if err := m.store.CloseSession(ctx, routeID, endedAt); err != nil {
        return model.TrackingSession{}, err
    }
    m.log.Info("journey stopped", logger.String("routeId", routeID), logger.Int("points", rs.count))
    return model.TrackingSession{
        RouteID: routeID, DriverID: rs.driverID, SessionID: rs.sessionID,
        Active: false, StartedAt: rs.startedAt, EndedAt: endedAt,
    }, nil
}

// ListActive is the live fleet-status view: latest point plus a running
// point count for every route currently tracking.
func (m *Manager) ListActive() []model.ActiveJourney {
    m.mu.Lock()
    ids := make([]string, 0, len(m.routes))
    states := make([]*routeState, 0, len(m.routes))
    for id, rs := range m.routes {
        ids = append(ids, id)
        states = append(states, rs)
    }
    m.mu.Unlock()

    out := []model.ActiveJourney{}
    for i, rs := range states {
        rs.mu.Lock()
        j := model.ActiveJourney{RouteID: ids[i], DriverID: rs.driverID, SessionID: rs.sessionID, PointCount: rs.count}
        if rs.last != nil {
            last := *rs.last
            j.LastPoint = &last
        }
        rs.mu.Unlock()
        out = append(out, j)
    }
    return out
}

// TripSummary aggregates a route's stored session into a trip report.
func (m *Manager) TripSummary(ctx context.Context, routeID string) (map[string]any, error) {
    sess, err := m.store.GetSession(ctx, routeID)
    if errors.Is(err, store.ErrNotFound) {
        return nil, fmt.Errorf("%w: %s", ErrNotTracking, routeID)
    }
    if err != nil {
        return nil, err
    }
    var distKm float64
    for i := 1; i < len(sess.Points); i++ {
        distKm += haversineKm(sess.Points[i-1].Lat, sess.Points[i-1].Lng, sess.Points[i].Lat, sess.Points[i].Lng)
    }
    out := map[string]any{
        "routeId":    sess.RouteID,
        "driverId":   sess.DriverID,
        "sessionId":  sess.SessionID,
        "active":     sess.Active,
        "startedAt":  sess.StartedAt,
        "pointCount": len(sess.Points),
        "distanceKm": math.Round(distKm*100) / 100,
    }
    if sess.EndedAt != "" {
        out["endedAt"] = sess.EndedAt
    }
    if n := len(sess.Points); n > 0 {
        out["lastPoint"] = sess.Points[n-1]
    }
    return out, nil
}

// StartSweeper launches the background loop that auto-closes sessions with
// no Record call inside the inactivity window.
func (m *Manager) StartSweeper() {
    m.wg.Add(1)
    go func() {
        defer m.wg.Done()
        interval := m.window / 4
        if interval < time.Second {
            interval = time.Second
        }
        ticker := time.NewTicker(interval)
        defer ticker.Stop()
        for {
            select {
            case <-m.stop:
                return
            case <-ticker.C:
                m.sweepOnce()
            }
        }
    }()
}

func (m *Manager) sweepOnce() {
    cutoff := time.Now().Add(-m.window)
    m.mu.Lock()
    var stale []string
    for id, rs := range m.routes {
        rs.mu.Lock()
        idle := rs.lastSeen.Before(cutoff)
        rs.mu.Unlock()
        if idle {
            stale = append(stale, id)
        }
    }
    m.mu.Unlock()
    for _, id := range stale {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        if _, err := m.Stop(ctx, id); err != nil {
            m.log.Warn("sweep close failed", logger.String("routeId", id), logger.Error(err))
        } else {
            m.log.Info("stale journey auto-closed", logger.String("routeId", id))
        }
        cancel()
    }
}

// Shutdown stops the sweeper.
func (m *Manager) Shutdown() {
    close(m.stop)
    m.wg.Wait()
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
    const earthRadiusKm = 6371.0
    rad := func(d float64) float64 { return d * math.Pi / 180 }
    dLat := rad(lat2 - lat1)
    dLng := rad(lng2 - lng1)
    a := math.Sin(dLat/2)*math.Sin(dLat/2) +
        math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
    return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
