package plans

import "errors"

// Error taxonomy for plan lookup and mutation. Handlers map these onto
// HTTP problem responses with errors.Is.
var (
    ErrPlanNotFound  = errors.New("plan not found")
    ErrRouteNotFound = errors.New("route not found in plan")
    ErrStopNotFound  = errors.New("stop not found on route")
    ErrSameRoute     = errors.New("source and destination route are the same")
    ErrInvalidArg    = errors.New("invalid argument")
    ErrEmptyPlan     = errors.New("plan has no routes")
    ErrStaleVersion  = errors.New("plan version changed since read")
)
