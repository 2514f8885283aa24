package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "routeops/internal/model"
)

// Postgres keeps plans/approvals in tables keyed by (plan_date, session) and
// tracking sessions keyed by route_id. Plan payloads are stored as JSONB:
// the plan is always replaced wholesale, never merged.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in lexical order.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return err }
    }
    return nil
}

func (p *Postgres) SavePlan(ctx context.Context, plan model.RoutePlan) (model.RoutePlan, error) {
    payload, err := json.Marshal(plan)
    if err != nil { return model.RoutePlan{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO plans (plan_date, session, version, num_drivers, total_deliveries, payload, planned_at)
        VALUES ($1,$2,$3,$4,$5,$6,now())
        ON CONFLICT (plan_date, session) DO UPDATE SET version=$3, num_drivers=$4, total_deliveries=$5, payload=$6, planned_at=now()`,
        plan.Key.Date, plan.Key.Session, plan.Version, plan.NumDrivers, plan.TotalDeliveries, payload)
    if err != nil { return model.RoutePlan{}, err }
    return plan, nil
}

func (p *Postgres) GetPlan(ctx context.Context, key model.PlanKey) (model.RoutePlan, error) {
    var payload []byte
    err := p.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE plan_date=$1 AND session=$2`, key.Date, key.Session).Scan(&payload)
    if errors.Is(err, sql.ErrNoRows) { return model.RoutePlan{}, ErrNotFound }
    if err != nil { return model.RoutePlan{}, err }
    var plan model.RoutePlan
    if err := json.Unmarshal(payload, &plan); err != nil { return model.RoutePlan{}, err }
    return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context) ([]model.PlanSummary, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT p.plan_date::text, p.session, p.num_drivers, p.total_deliveries, p.planned_at, (a.plan_date IS NOT NULL)
        FROM plans p LEFT JOIN approvals a ON a.plan_date=p.plan_date AND a.session=p.session
        ORDER BY p.plan_date, p.session`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.PlanSummary{}
    for rows.Next() {
        var s model.PlanSummary
        var sess string
        var plannedAt time.Time
        if err := rows.Scan(&s.Key.Date, &sess, &s.NumDrivers, &s.TotalDeliveries, &plannedAt, &s.Approved); err != nil { return nil, err }
        s.Key.Session = model.Session(sess)
        s.PlannedAt = plannedAt.UTC().Format(time.RFC3339)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) SaveApproval(ctx context.Context, rec model.ApprovalRecord) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO approvals (plan_date, session, approved_at, spreadsheet_url, spreadsheet_name, manifest_url, manifest_name)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (plan_date, session) DO UPDATE SET approved_at=$3, spreadsheet_url=$4, spreadsheet_name=$5, manifest_url=$6, manifest_name=$7`,
        rec.Key.Date, rec.Key.Session, rec.ApprovedAt, rec.Artifacts.SpreadsheetURL, rec.Artifacts.SpreadsheetName, rec.Artifacts.ManifestURL, rec.Artifacts.ManifestName)
    return err
}

func (p *Postgres) GetApproval(ctx context.Context, key model.PlanKey) (model.ApprovalRecord, error) {
    rec := model.ApprovalRecord{Key: key}
    err := p.db.QueryRowContext(ctx, `SELECT approved_at, spreadsheet_url, spreadsheet_name, manifest_url, manifest_name
        FROM approvals WHERE plan_date=$1 AND session=$2`, key.Date, key.Session).
        Scan(&rec.ApprovedAt, &rec.Artifacts.SpreadsheetURL, &rec.Artifacts.SpreadsheetName, &rec.Artifacts.ManifestURL, &rec.Artifacts.ManifestName)
    if errors.Is(err, sql.ErrNoRows) { return model.ApprovalRecord{}, ErrNotFound }
    if err != nil { return model.ApprovalRecord{}, err }
    return rec, nil
}

func (p *Postgres) DeleteApproval(ctx context.Context, key model.PlanKey) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM approvals WHERE plan_date=$1 AND session=$2`, key.Date, key.Session)
    return err
}

func (p *Postgres) SaveSession(ctx context.Context, sess model.TrackingSession) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO tracking_sessions (route_id, session_id, driver_id, active, started_at, ended_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (route_id) DO UPDATE SET session_id=$2, driver_id=$3, active=$4, started_at=$5, ended_at=$6`,
        sess.RouteID, sess.SessionID, sess.DriverID, sess.Active, sess.StartedAt, nullIfEmpty(sess.EndedAt))
    return err
}

func (p *Postgres) GetSession(ctx context.Context, routeID string) (model.TrackingSession, error) {
    s := model.TrackingSession{RouteID: routeID}
    var ended sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT session_id::text, driver_id, active, started_at, ended_at
        FROM tracking_sessions WHERE route_id=$1`, routeID).
        Scan(&s.SessionID, &s.DriverID, &s.Active, &s.StartedAt, &ended)
    if errors.Is(err, sql.ErrNoRows) { return model.TrackingSession{}, ErrNotFound }
    if err != nil { return model.TrackingSession{}, err }
    s.EndedAt = ended.String
    rows, err := p.db.QueryContext(ctx, `SELECT seq, ts, lat, lng, speed_kmh, heading_deg, accuracy_m
        FROM tracking_points WHERE session_id=$1 ORDER BY seq`, s.SessionID)
    if err != nil { return model.TrackingSession{}, err }
    defer rows.Close()
    for rows.Next() {
        var pt model.TrackingPoint
        var speed, heading, acc sql.NullFloat64
        if err := rows.Scan(&pt.SequenceNo, &pt.Timestamp, &pt.Lat, &pt.Lng, &speed, &heading, &acc); err != nil { return model.TrackingSession{}, err }
        if speed.Valid { v := speed.Float64; pt.SpeedKmh = &v }
        if heading.Valid { v := heading.Float64; pt.HeadingDeg = &v }
        if acc.Valid { v := acc.Float64; pt.AccuracyM = &v }
        s.Points = append(s.Points, pt)
    }
    return s, rows.Err()
}

func (p *Postgres) AppendPoint(ctx context.Context, routeID string, pt model.TrackingPoint) error {
    var sessionID string
    err := p.db.QueryRowContext(ctx, `SELECT session_id::text FROM tracking_sessions WHERE route_id=$1 AND active`, routeID).Scan(&sessionID)
    if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO tracking_points (session_id, seq, ts, lat, lng, speed_kmh, heading_deg, accuracy_m)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        sessionID, pt.SequenceNo, pt.Timestamp, pt.Lat, pt.Lng, floatPtr(pt.SpeedKmh), floatPtr(pt.HeadingDeg), floatPtr(pt.AccuracyM))
    return err
}

func (p *Postgres) CloseSession(ctx context.Context, routeID string, endedAt string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE tracking_sessions SET active=false, ended_at=$2 WHERE route_id=$1`, routeID, endedAt)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ListActiveSessions(ctx context.Context) ([]model.TrackingSession, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT route_id, session_id::text, driver_id, started_at FROM tracking_sessions WHERE active ORDER BY route_id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.TrackingSession{}
    for rows.Next() {
        s := model.TrackingSession{Active: true}
        if err := rows.Scan(&s.RouteID, &s.SessionID, &s.DriverID, &s.StartedAt); err != nil { return nil, err }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil { return nil, err }
    // latest point + running count per session
    for i := range out {
        var cnt int
        if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM tracking_points WHERE session_id=$1`, out[i].SessionID).Scan(&cnt); err != nil { return nil, err }
        if cnt == 0 { continue }
        var pt model.TrackingPoint
        var speed, heading, acc sql.NullFloat64
        err := p.db.QueryRowContext(ctx, `SELECT seq, ts, lat, lng, speed_kmh, heading_deg, accuracy_m
            FROM tracking_points WHERE session_id=$1 ORDER BY seq DESC LIMIT 1`, out[i].SessionID).
            Scan(&pt.SequenceNo, &pt.Timestamp, &pt.Lat, &pt.Lng, &speed, &heading, &acc)
        if err != nil { return nil, err }
        if speed.Valid { v := speed.Float64; pt.SpeedKmh = &v }
        if heading.Valid { v := heading.Float64; pt.HeadingDeg = &v }
        if acc.Valid { v := acc.Float64; pt.AccuracyM = &v }
        // ListActive consumers only need the tail; keep the slice short
        out[i].Points = []model.TrackingPoint{pt}
    }
    return out, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error) {
    id := uuid.New().String()
    events, err := json.Marshal(req.Events)
    if err != nil { return Subscription{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
        id, req.URL, events, nullIfEmpty(req.Secret))
    if err != nil { return Subscription{}, err }
    return Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, COALESCE(secret,'') FROM subscriptions WHERE events ? $1`, eventType)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []Subscription
    for rows.Next() {
        var s Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, COALESCE(secret,'') FROM subscriptions ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []Subscription{}
    for rows.Next() {
        var s Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, response_code=$4, latency_ms=$5, updated_at=now() WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), response_code=$2, latency_ms=$3, updated_at=now() WHERE id=$1`,
        id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4, updated_at=now() WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, COALESCE(last_error,''), url FROM webhook_deliveries WHERE status=$1 ORDER BY next_attempt_at DESC LIMIT $2`, status, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, COALESCE(last_error,''), url FROM webhook_deliveries ORDER BY next_attempt_at DESC LIMIT $1`, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, et, st, lastErr, url string
        var attempts int
        if err := rows.Scan(&id, &et, &st, &attempts, &lastErr, &url); err != nil { return nil, err }
        item := map[string]any{"id": id, "eventType": et, "status": st, "attempts": attempts, "url": url}
        if lastErr != "" { item["lastError"] = lastErr }
        out = append(out, item)
    }
    return out, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) PlanStats(ctx context.Context, date string) (map[string]any, error) {
    q := `SELECT count(*),
        COALESCE(sum(jsonb_array_length(payload->'routes')),0),
        COALESCE(sum(total_deliveries),0)
        FROM plans`
    args := []any{}
    if date != "" { q += ` WHERE plan_date=$1`; args = append(args, date) }
    var plans, routes, stops int
    if err := p.db.QueryRowContext(ctx, q, args...).Scan(&plans, &routes, &stops); err != nil { return nil, err }
    var approved int
    qa := `SELECT count(*) FROM approvals`
    if date != "" {
        if err := p.db.QueryRowContext(ctx, qa+` WHERE plan_date=$1`, date).Scan(&approved); err != nil { return nil, err }
    } else {
        if err := p.db.QueryRowContext(ctx, qa).Scan(&approved); err != nil { return nil, err }
    }
    return map[string]any{"plans": plans, "routes": routes, "stops": stops, "approved": approved}, nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func floatPtr(f *float64) any { if f == nil { return nil }; return *f }
