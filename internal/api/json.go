package api

import (
    "encoding/json"
    "errors"
    "net/http"

    "routeops/internal/model"
    "routeops/internal/plans"
    "routeops/internal/store"
    "routeops/internal/tracking"
)

// Problem represents an RFC7807 problem details response body. Warnings is
// an extension member carrying upstream advisories from external services.
type Problem struct {
    Type     string   `json:"type"`
    Title    string   `json:"title"`
    Status   int      `json:"status"`
    Detail   string   `json:"detail,omitempty"`
    Instance string   `json:"instance,omitempty"`
    Warnings []string `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    writeJSON(w, status, Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}

// writeError maps the domain error taxonomy onto problem responses.
func writeError(w http.ResponseWriter, err error, instance string) {
    var se *model.ServiceError
    switch {
    case errors.As(err, &se):
        writeJSON(w, http.StatusBadGateway, Problem{
            Type: "about:blank", Title: "Upstream service failed", Status: http.StatusBadGateway,
            Detail: se.Error(), Instance: instance, Warnings: se.Warnings,
        })
    case errors.Is(err, plans.ErrPlanNotFound),
        errors.Is(err, plans.ErrRouteNotFound),
        errors.Is(err, plans.ErrStopNotFound),
        errors.Is(err, tracking.ErrNotTracking),
        errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), instance)
    case errors.Is(err, plans.ErrInvalidArg),
        errors.Is(err, plans.ErrSameRoute),
        errors.Is(err, plans.ErrEmptyPlan):
        writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), instance)
    case errors.Is(err, plans.ErrStaleVersion),
        errors.Is(err, tracking.ErrAlreadyTracking):
        writeProblem(w, http.StatusConflict, "Conflict", err.Error(), instance)
    default:
        writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), instance)
    }
}
