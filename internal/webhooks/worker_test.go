package webhooks

import (
    "context"
    "io"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "routeops/internal/store"
    "routeops/pkg/logger"
)

type recordStore struct {
    *store.Memory
    mu    sync.Mutex
    marks []markRec
    fails []failRec
}

type markRec struct {
    ID      string
    Success bool
    Code    int
    LastErr string
}

type failRec struct {
    ID      string
    Code    int
    LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    r.mu.Lock()
    r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
    r.mu.Unlock()
    return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    r.mu.Lock()
    r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
    r.mu.Unlock()
    return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnceSuccessAndSignature(t *testing.T) {
    var gotSig, gotType string
    var gotBody []byte
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotSig = r.Header.Get("X-Signature")
        gotType = r.Header.Get("X-Event-Type")
        gotBody, _ = io.ReadAll(r.Body)
        w.WriteHeader(200)
    }))
    defer srv.Close()

    rs := &recordStore{Memory: store.NewMemory()}
    w := &Worker{Store: rs, HTTP: srv.Client(), Log: logger.NewNop(), Stop: make(chan struct{}), MaxAttempts: 3}
    payload := []byte(`{"id":"evt1","type":"plan.approved"}`)
    id, err := rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanApproved, srv.URL, "secret", payload)
    if err != nil || id == "" { t.Fatalf("enqueue failed: %v", err) }

    w.processOnce()

    if gotType != EventPlanApproved { t.Fatalf("event type header: %q", gotType) }
    if !VerifyHMAC("secret", gotBody, gotSig) { t.Fatalf("signature does not verify: %q", gotSig) }
    if len(rs.marks) == 0 || !rs.marks[0].Success { t.Fatalf("expected mark success, got: %+v", rs.marks) }
}

func TestWorkerProcessOnceRetryThenFail(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
    defer srv.Close()

    rs := &recordStore{Memory: store.NewMemory()}
    w := &Worker{Store: rs, HTTP: srv.Client(), Log: logger.NewNop(), Stop: make(chan struct{}), MaxAttempts: 2}
    _, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventJourneyStarted, srv.URL, "", []byte(`{}`))

    // First attempt: scheduled for retry, not yet failed.
    w.processOnce()
    if len(rs.marks) != 1 || rs.marks[0].Success { t.Fatalf("first attempt should mark retry: %+v", rs.marks) }
    if len(rs.fails) != 0 { t.Fatalf("failed too early") }

    // Force it due again and hit the attempt cap.
    _ = rs.Memory.RetryWebhookDelivery(context.Background(), rs.marks[0].ID)
    w.processOnce()
    if len(rs.fails) != 1 { t.Fatalf("expected permanent failure, got: %+v", rs.fails) }
}

func TestNextBackoff(t *testing.T) {
    if nextBackoff(0) != time.Second { t.Fatalf("attempt 0: %v", nextBackoff(0)) }
    if nextBackoff(3) != 8*time.Second { t.Fatalf("attempt 3: %v", nextBackoff(3)) }
    if nextBackoff(99) != time.Hour { t.Fatalf("cap: %v", nextBackoff(99)) }
    if nextBackoff(-1) != time.Second { t.Fatalf("negative: %v", nextBackoff(-1)) }
}

func TestSignVerifyHMAC(t *testing.T) {
    body := []byte(`{"hello":"world"}`)
    sig := SignHMAC("secret", body)
    if !VerifyHMAC("secret", body, sig) { t.Fatalf("valid signature rejected") }
    if VerifyHMAC("other", body, sig) { t.Fatalf("wrong secret accepted") }
    if VerifyHMAC("secret", []byte(`tampered`), sig) { t.Fatalf("tampered body accepted") }
    if VerifyHMAC("secret", body, "not-hex") { t.Fatalf("garbage signature accepted") }
}

func TestPublisherEnqueuesMatchingSubscriptions(t *testing.T) {
    st := store.NewMemory()
    ctx := context.Background()
    _, _ = st.CreateSubscription(ctx, store.SubscriptionRequest{URL: "https://a.example/hook", Events: []string{EventPlanApproved}})
    _, _ = st.CreateSubscription(ctx, store.SubscriptionRequest{URL: "https://b.example/hook", Events: []string{EventJourneyStarted}})

    p := NewPublisher(st)
    p.Emit(ctx, EventPlanApproved, map[string]any{"date": "2026-03-02", "session": "lunch"})

    due, err := st.FetchDueWebhookDeliveries(ctx, 10)
    if err != nil { t.Fatalf("fetch: %v", err) }
    if len(due) != 1 { t.Fatalf("want one delivery, got %d", len(due)) }
    if due[0].EventType != EventPlanApproved { t.Fatalf("event type: %s", due[0].EventType) }
    if due[0].URL != "https://a.example/hook" { t.Fatalf("url: %s", due[0].URL) }
}
