package optimizer

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"

    "routeops/internal/model"
)

func TestOptimizeDecodesNestedExecutive(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/optimize" { t.Errorf("path: %s", r.URL.Path) }
        var req model.PlanRequest
        _ = json.NewDecoder(r.Body).Decode(&req)
        if req.Date != "2026-03-02" { t.Errorf("request date: %s", req.Date) }
        _, _ = w.Write([]byte(`{
            "numDrivers": 1,
            "withinTimeConstraint": true,
            "warnings": ["traffic data was stale"],
            "routes": [{
                "routeId": "R1",
                "executive": {"id": "e1", "name": "Asha", "contact": "+91 98450 00000"},
                "mapLink": "https://maps.example/r1",
                "totalDistanceKm": 10.5,
                "estimatedTimeHours": 1.2,
                "stops": [
                    {"deliveryId": "S1", "customerName": "Meera", "location": {"lat": 12.97, "lng": 77.59}, "packages": 2}
                ]
            }],
            "comparison": {"aiDistanceKm": 10.5, "baselineDistanceKm": 14.2, "recommendation": "use_optimized"}
        }`))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "", 0)
    plan, err := c.Optimize(context.Background(), model.PlanRequest{Date: "2026-03-02", Session: "lunch"})
    if err != nil { t.Fatalf("optimize: %v", err) }
    if len(plan.Routes) != 1 { t.Fatalf("routes: %d", len(plan.Routes)) }
    rt := plan.Routes[0]
    if rt.Executive.Name != "Asha" || rt.Executive.Contact == "" { t.Fatalf("executive: %+v", rt.Executive) }
    if rt.MapLink != "https://maps.example/r1" { t.Fatalf("mapLink: %s", rt.MapLink) }
    if rt.Stops[0].Location.Lat != 12.97 { t.Fatalf("stop location: %+v", rt.Stops[0].Location) }
    if len(plan.Warnings) != 1 { t.Fatalf("warnings: %+v", plan.Warnings) }
    if plan.Comparison.Recommendation != "use_optimized" { t.Fatalf("comparison: %+v", plan.Comparison) }
}

func TestOptimizeDecodesFlatDriverFields(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{
            "routes": [
                {"driverId": "d7", "driverName": "Ravi", "mapUrl": "https://maps.example/alt",
                 "stops": [{"deliveryId": "S1", "lat": 1.5, "lng": 2.5}]},
                {"stops": []}
            ]
        }`))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "", 0)
    plan, err := c.Optimize(context.Background(), model.PlanRequest{Date: "2026-03-02", Session: "lunch"})
    if err != nil { t.Fatalf("optimize: %v", err) }

    first := plan.Routes[0]
    if first.RouteID != "R1" { t.Fatalf("generated route id: %s", first.RouteID) }
    if first.Executive.ID != "d7" || first.Executive.Name != "Ravi" { t.Fatalf("flat driver: %+v", first.Executive) }
    if first.MapLink != "https://maps.example/alt" { t.Fatalf("mapUrl fallback: %s", first.MapLink) }
    if first.Stops[0].Location.Lat != 1.5 { t.Fatalf("flat lat/lng: %+v", first.Stops[0].Location) }

    // No driver identity at all: a placeholder name is synthesized.
    second := plan.Routes[1]
    if second.Executive.Name != "Driver 2" { t.Fatalf("placeholder: %q", second.Executive.Name) }
}

func TestOptimizeUpstreamError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(422)
        _, _ = w.Write([]byte(`{"error": "no deliveries for window", "warnings": ["check the date"]}`))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "", 0)
    _, err := c.Optimize(context.Background(), model.PlanRequest{Date: "2026-03-02", Session: "lunch"})
    var se *model.ServiceError
    if !errors.As(err, &se) { t.Fatalf("want ServiceError, got %v", err) }
    if se.Service != "optimizer" || se.Status != 422 { t.Fatalf("got %+v", se) }
    if se.Message != "no deliveries for window" { t.Fatalf("message: %q", se.Message) }
    if len(se.Warnings) != 1 { t.Fatalf("warnings: %+v", se.Warnings) }
}

func TestOptimizeBadPayload(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`<html>gateway timeout</html>`))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "", 0)
    _, err := c.Optimize(context.Background(), model.PlanRequest{Date: "2026-03-02", Session: "lunch"})
    var se *model.ServiceError
    if !errors.As(err, &se) { t.Fatalf("want ServiceError, got %v", err) }
}

func TestOptimizeNetworkError(t *testing.T) {
    c := NewClient("http://127.0.0.1:1", "", 0)
    _, err := c.Optimize(context.Background(), model.PlanRequest{Date: "2026-03-02", Session: "lunch"})
    var se *model.ServiceError
    if !errors.As(err, &se) { t.Fatalf("want ServiceError, got %v", err) }
    if se.Status != 0 { t.Fatalf("network failure carries no status: %+v", se) }
}

func TestPredictStart(t *testing.T) {
    optSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        t.Errorf("optimizer should not be called")
    }))
    defer optSrv.Close()
    predSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/predict-start" { t.Errorf("path: %s", r.URL.Path) }
        _, _ = w.Write([]byte(`{
            "predictedStartTime": "2026-03-02T08:30:00Z",
            "predictedCompletionTime": "2026-03-02T11:00:00Z",
            "durationHours": 2.5,
            "confidence": 0.82,
            "perDriverPredictions": [{"routeId": "R1", "startTime": "2026-03-02T08:30:00Z", "durationHours": 2.5}]
        }`))
    }))
    defer predSrv.Close()

    c := NewClient(optSrv.URL, predSrv.URL, 0)
    pred, err := c.PredictStart(context.Background(), model.PredictRequest{Date: "2026-03-02", Session: "lunch"})
    if err != nil { t.Fatalf("predict: %v", err) }
    if pred.PredictedStartTime != "2026-03-02T08:30:00Z" { t.Fatalf("start: %s", pred.PredictedStartTime) }
    if len(pred.PerDriver) != 1 { t.Fatalf("per driver: %+v", pred.PerDriver) }
}

func TestPredictorURLDefaultsToBase(t *testing.T) {
    c := NewClient("http://engine.local", "", 0)
    if c.PredictorURL != "http://engine.local" { t.Fatalf("got %s", c.PredictorURL) }
}
