package api

import (
    "fmt"

    "routeops/internal/model"
)

func validatePlanRequest(req *model.PlanRequest) error {
    if req.Date == "" { return fmt.Errorf("date required") }
    if err := model.ParseDate(req.Date); err != nil {
        return fmt.Errorf("invalid date %q: want YYYY-MM-DD", req.Date)
    }
    if _, err := model.ParseSession(req.Session); err != nil { return err }
    if req.NumDrivers < 0 {
        return fmt.Errorf("numDrivers must not be negative")
    }
    if req.Depot.Lat < -90 || req.Depot.Lat > 90 || req.Depot.Lng < -180 || req.Depot.Lng > 180 {
        return fmt.Errorf("depot coordinates out of range")
    }
    return nil
}
