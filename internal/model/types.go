package model

import (
    "fmt"
    "strings"
    "time"
)

// Core domain types for draft route plans and live journeys.

// Session is the meal window a delivery run belongs to.
type Session string

const (
    SessionBreakfast Session = "breakfast"
    SessionLunch     Session = "lunch"
    SessionDinner    Session = "dinner"
)

// ParseSession validates a session string from the wire.
func ParseSession(s string) (Session, error) {
    switch Session(strings.ToLower(s)) {
    case SessionBreakfast:
        return SessionBreakfast, nil
    case SessionLunch:
        return SessionLunch, nil
    case SessionDinner:
        return SessionDinner, nil
    }
    return "", fmt.Errorf("invalid session: %q (want breakfast, lunch or dinner)", s)
}

// PlanKey identifies one draft plan: a delivery date plus a meal session.
type PlanKey struct {
    Date    string  `json:"date"` // YYYY-MM-DD
    Session Session `json:"session"`
}

func (k PlanKey) String() string { return k.Date + "|" + string(k.Session) }

// ParseDate checks the date half of a key.
func ParseDate(s string) error {
    _, err := time.Parse("2006-01-02", s)
    return err
}

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// Executive is the driver assigned to a route.
type Executive struct {
    ID      string `json:"id"`
    Name    string `json:"name,omitempty"`
    Contact string `json:"contact,omitempty"`
}

type Stop struct {
    DeliveryID   string   `json:"deliveryId"`
    CustomerName string   `json:"customerName,omitempty"`
    Address      string   `json:"address,omitempty"`
    Location     GeoPoint `json:"location"`
    Packages     int      `json:"packages,omitempty"`
    Position     int      `json:"position"` // 1-based, derived from list index
}

type Route struct {
    RouteID         string    `json:"routeId"`
    Executive       Executive `json:"executive"`
    Stops           []Stop    `json:"stops"`
    TotalDistanceKm float64   `json:"totalDistanceKm"`
    EstimatedHours  float64   `json:"estimatedTimeHours"`
    MetricsStale    bool      `json:"metricsStale,omitempty"` // set after a stop move until re-estimated
    MapLink         string    `json:"mapLink,omitempty"`
}

// PlanComparison compares the optimizer result against the manual baseline.
type PlanComparison struct {
    AIDistanceKm       float64 `json:"aiDistanceKm"`
    AITimeHours        float64 `json:"aiTimeHours"`
    BaselineDistanceKm float64 `json:"baselineDistanceKm"`
    BaselineTimeHours  float64 `json:"baselineTimeHours"`
    Recommendation     string  `json:"recommendation,omitempty"`
}

type RoutePlan struct {
    Key                  PlanKey        `json:"key"`
    Version              int            `json:"version"`
    NumDrivers           int            `json:"numDrivers"`
    TotalDeliveries      int            `json:"totalDeliveries"`
    WithinTimeConstraint bool           `json:"withinTimeConstraint"`
    Warnings             []string       `json:"warnings,omitempty"`
    Routes               []Route        `json:"routes"`
    Comparison           PlanComparison `json:"comparison"`
    PlannedAt            string         `json:"plannedAt,omitempty"`
}

// PlanSummary is the light listing shape for selection UIs.
type PlanSummary struct {
    Key             PlanKey `json:"key"`
    NumDrivers      int     `json:"numDrivers"`
    TotalDeliveries int     `json:"totalDeliveries"`
    Approved        bool    `json:"approved"`
    PlannedAt       string  `json:"plannedAt,omitempty"`
}

// ExportArtifacts are the download locations written by an approval.
type ExportArtifacts struct {
    SpreadsheetURL  string `json:"spreadsheetUrl"`
    SpreadsheetName string `json:"spreadsheetName"`
    ManifestURL     string `json:"manifestUrl"`
    ManifestName    string `json:"manifestName"`
}

// ApprovalRecord exists once per plan key; re-approval overwrites artifacts.
type ApprovalRecord struct {
    Key        PlanKey         `json:"key"`
    ApprovedAt string          `json:"approvedAt"`
    Artifacts  ExportArtifacts `json:"exportArtifacts"`
}

type TrackingPoint struct {
    Timestamp  string   `json:"ts"`
    Lat        float64  `json:"lat"`
    Lng        float64  `json:"lng"`
    SpeedKmh   *float64 `json:"speedKmh,omitempty"`
    HeadingDeg *float64 `json:"headingDeg,omitempty"`
    AccuracyM  *float64 `json:"accuracyM,omitempty"`
    SequenceNo int      `json:"sequenceNo"`
}

type TrackingSession struct {
    RouteID   string          `json:"routeId"`
    DriverID  string          `json:"driverId"`
    SessionID string          `json:"sessionId"`
    Active    bool            `json:"active"`
    StartedAt string          `json:"startedAt"`
    EndedAt   string          `json:"endedAt,omitempty"`
    Points    []TrackingPoint `json:"points,omitempty"`
}

// ActiveJourney is one row of the live fleet-status view.
type ActiveJourney struct {
    RouteID    string         `json:"routeId"`
    DriverID   string         `json:"driverId"`
    SessionID  string         `json:"sessionId"`
    PointCount int            `json:"pointCount"`
    LastPoint  *TrackingPoint `json:"lastPoint,omitempty"`
}

// Requests

type PlanRequest struct {
    Date       string   `json:"date"`
    Session    string   `json:"session"`
    NumDrivers int      `json:"numDrivers,omitempty"`
    Depot      GeoPoint `json:"depot"`
}

type ReassignRequest struct {
    RouteID   string    `json:"routeId"`
    Executive Executive `json:"executive"`
    IfVersion int       `json:"ifVersion,omitempty"`
}

type ExchangeRequest struct {
    RouteID1  string `json:"routeId1"`
    RouteID2  string `json:"routeId2"`
    IfVersion int    `json:"ifVersion,omitempty"`
}

type MoveStopRequest struct {
    FromRouteID string `json:"fromRouteId"`
    ToRouteID   string `json:"toRouteId"`
    DeliveryID  string `json:"deliveryId"`
    InsertAt    int    `json:"insertAtPosition,omitempty"` // 1-based; 0 means append
    IfVersion   int    `json:"ifVersion,omitempty"`
}

// Predictor wire types

type PredictRequest struct {
    Date    string   `json:"date"`
    Session string   `json:"session"`
    Depot   GeoPoint `json:"depot"`
}

type DriverPrediction struct {
    DriverID  string  `json:"driverId,omitempty"`
    RouteID   string  `json:"routeId,omitempty"`
    StartTime string  `json:"startTime"`
    Hours     float64 `json:"durationHours"`
}

type StartPrediction struct {
    PredictedStartTime      string             `json:"predictedStartTime"`
    PredictedCompletionTime string             `json:"predictedCompletionTime"`
    DurationHours           float64            `json:"durationHours"`
    Confidence              float64            `json:"confidence"`
    PerDriver               []DriverPrediction `json:"perDriverPredictions,omitempty"`
}

// Export collaborator response

type ExportResult struct {
    SpreadsheetURL  string `json:"spreadsheetUrl"`
    SpreadsheetName string `json:"spreadsheetName"`
    ManifestURL     string `json:"manifestUrl"`
    ManifestName    string `json:"manifestName"`
    Message         string `json:"message,omitempty"`
}
