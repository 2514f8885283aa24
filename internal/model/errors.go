package model

import "fmt"

// ServiceError reports a failure from an external collaborator (optimizer,
// start-time predictor, export storage). Warnings carry upstream advisories
// and may also accompany a success elsewhere.
type ServiceError struct {
    Service  string   `json:"service"`
    Status   int      `json:"status,omitempty"`
    Message  string   `json:"message"`
    Warnings []string `json:"warnings,omitempty"`
}

func (e *ServiceError) Error() string {
    if e.Status != 0 {
        return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.Status)
    }
    return fmt.Sprintf("%s: %s", e.Service, e.Message)
}
