// Package api implements HTTP handlers for the route plan coordination
// service.
package api

import "net/http"

// Principal is the caller identity extracted from headers. Real
// authentication lives with an external collaborator; here we only gate
// which role may mutate plans, following the upstream gateway's headers.
type Principal struct {
    Role     string // admin, dispatcher, driver, viewer
    DriverID string
}

func getPrincipal(r *http.Request) Principal {
    role := r.Header.Get("X-Role")
    if role == "" {
        role = "dispatcher"
    }
    return Principal{Role: role, DriverID: r.Header.Get("X-Driver-Id")}
}

// CanDispatch reports whether the principal may edit or approve plans.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
