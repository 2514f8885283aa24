// Package optimizer adapts the external route-optimization engine and
// start-time predictor to domain types.
package optimizer

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "routeops/internal/model"
)

// Client calls the optimization engine and the start-time predictor. Both
// are long-running upstreams: every request carries a bounded timeout and
// honors caller cancellation, so a dispatcher navigating away aborts the
// call mid-flight.
type Client struct {
    BaseURL      string
    PredictorURL string
    HTTP         *http.Client
}

func NewClient(baseURL, predictorURL string, timeout time.Duration) *Client {
    if timeout <= 0 {
        timeout = 60 * time.Second
    }
    if predictorURL == "" {
        predictorURL = baseURL
    }
    return &Client{BaseURL: baseURL, PredictorURL: predictorURL, HTTP: &http.Client{Timeout: timeout}}
}

// wireRoute tolerates the engine's loosely-shaped payloads: driver identity
// may arrive as a nested executive object or as flat driverId/driverName
// fields, and the map link under either mapLink or mapUrl. Fallback order
// is nested object first, then flat fields.
type wireRoute struct {
    RouteID            string           `json:"routeId"`
    Executive          *model.Executive `json:"executive"`
    DriverID           string           `json:"driverId"`
    DriverName         string           `json:"driverName"`
    DriverContact      string           `json:"driverContact"`
    Stops              []wireStop       `json:"stops"`
    TotalDistanceKm    float64          `json:"totalDistanceKm"`
    EstimatedTimeHours float64          `json:"estimatedTimeHours"`
    MapLink            string           `json:"mapLink"`
    MapURL             string           `json:"mapUrl"`
}

type wireStop struct {
    DeliveryID   string          `json:"deliveryId"`
    CustomerName string          `json:"customerName"`
    Address      string          `json:"address"`
    Location     *model.GeoPoint `json:"location"`
    Lat          float64         `json:"lat"`
    Lng          float64         `json:"lng"`
    Packages     int             `json:"packages"`
}

type optimizeResponse struct {
    NumDrivers           int                  `json:"numDrivers"`
    WithinTimeConstraint bool                 `json:"withinTimeConstraint"`
    Warnings             []string             `json:"warnings"`
    Routes               []wireRoute          `json:"routes"`
    Comparison           model.PlanComparison `json:"comparison"`
}

type problemBody struct {
    Message  string   `json:"message"`
    Error    string   `json:"error"`
    Warnings []string `json:"warnings"`
}

func (r wireRoute) toRoute(idx int) model.Route {
    exec := model.Executive{}
    if r.Executive != nil {
        exec = *r.Executive
    }
    if exec.ID == "" {
        exec.ID = r.DriverID
    }
    if exec.Name == "" {
        exec.Name = r.DriverName
    }
    if exec.Name == "" {
        exec.Name = fmt.Sprintf("Driver %d", idx+1)
    }
    if exec.Contact == "" {
        exec.Contact = r.DriverContact
    }
    link := r.MapLink
    if link == "" {
        link = r.MapURL
    }
    rt := model.Route{
        RouteID:         r.RouteID,
        Executive:       exec,
        TotalDistanceKm: r.TotalDistanceKm,
        EstimatedHours:  r.EstimatedTimeHours,
        MapLink:         link,
    }
    if rt.RouteID == "" {
        rt.RouteID = fmt.Sprintf("R%d", idx+1)
    }
    for _, s := range r.Stops {
        loc := model.GeoPoint{Lat: s.Lat, Lng: s.Lng}
        if s.Location != nil {
            loc = *s.Location
        }
        rt.Stops = append(rt.Stops, model.Stop{
            DeliveryID:   s.DeliveryID,
            CustomerName: s.CustomerName,
            Address:      s.Address,
            Location:     loc,
            Packages:     s.Packages,
        })
    }
    return rt
}

// Optimize requests a route set for the given depot, driver count and
// delivery date/session. Upstream warnings are carried through on success.
func (c *Client) Optimize(ctx context.Context, req model.PlanRequest) (model.RoutePlan, error) {
    var out optimizeResponse
    if err := c.post(ctx, c.HTTP, c.BaseURL+"/optimize", "optimizer", req, &out); err != nil {
        return model.RoutePlan{}, err
    }
    plan := model.RoutePlan{
        NumDrivers:           out.NumDrivers,
        WithinTimeConstraint: out.WithinTimeConstraint,
        Warnings:             out.Warnings,
        Comparison:           out.Comparison,
    }
    for i, wr := range out.Routes {
        plan.Routes = append(plan.Routes, wr.toRoute(i))
    }
    return plan, nil
}

// PredictStart asks the predictor when the session's deliveries should
// leave the depot.
func (c *Client) PredictStart(ctx context.Context, req model.PredictRequest) (model.StartPrediction, error) {
    var out model.StartPrediction
    if err := c.post(ctx, c.HTTP, c.PredictorURL+"/predict-start", "predictor", req, &out); err != nil {
        return model.StartPrediction{}, err
    }
    return out, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, url, service string, in, out any) error {
    body, err := json.Marshal(in)
    if err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := hc.Do(req)
    if err != nil {
        return &model.ServiceError{Service: service, Message: err.Error()}
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        var pb problemBody
        _ = json.NewDecoder(resp.Body).Decode(&pb)
        msg := pb.Message
        if msg == "" {
            msg = pb.Error
        }
        if msg == "" {
            msg = http.StatusText(resp.StatusCode)
        }
        return &model.ServiceError{Service: service, Status: resp.StatusCode, Message: msg, Warnings: pb.Warnings}
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
        return &model.ServiceError{Service: service, Message: "bad response payload: " + err.Error()}
    }
    return nil
}
