// Package export builds and uploads the approval artifacts: a tabular
// spreadsheet and a plain-text driver manifest.
package export

import (
    "bytes"
    "encoding/csv"
    "fmt"
    "strconv"
    "strings"

    "routeops/internal/model"
)

// RenderSpreadsheet produces the dispatch spreadsheet (CSV) with one row
// per stop in visiting order.
func RenderSpreadsheet(plan model.RoutePlan) ([]byte, error) {
    var buf bytes.Buffer
    w := csv.NewWriter(&buf)
    header := []string{"route", "driver", "contact", "position", "delivery_id", "customer", "address", "lat", "lng", "packages"}
    if err := w.Write(header); err != nil {
        return nil, err
    }
    for _, rt := range plan.Routes {
        for _, st := range rt.Stops {
            row := []string{
                rt.RouteID,
                rt.Executive.Name,
                rt.Executive.Contact,
                strconv.Itoa(st.Position),
                st.DeliveryID,
                st.CustomerName,
                st.Address,
                strconv.FormatFloat(st.Location.Lat, 'f', 6, 64),
                strconv.FormatFloat(st.Location.Lng, 'f', 6, 64),
                strconv.Itoa(st.Packages),
            }
            if err := w.Write(row); err != nil {
                return nil, err
            }
        }
    }
    w.Flush()
    return buf.Bytes(), w.Error()
}

// RenderManifest produces the human-readable text manifest: one block per
// route, stops in visiting order.
func RenderManifest(plan model.RoutePlan) []byte {
    var b strings.Builder
    fmt.Fprintf(&b, "DELIVERY MANIFEST  %s (%s)\n", plan.Key.Date, plan.Key.Session)
    fmt.Fprintf(&b, "Drivers: %d   Deliveries: %d\n", plan.NumDrivers, plan.TotalDeliveries)
    for _, rt := range plan.Routes {
        fmt.Fprintf(&b, "\n== Route %s / %s", rt.RouteID, rt.Executive.Name)
        if rt.Executive.Contact != "" {
            fmt.Fprintf(&b, " (%s)", rt.Executive.Contact)
        }
        b.WriteString(" ==\n")
        for _, st := range rt.Stops {
            fmt.Fprintf(&b, "%2d. %s, %s", st.Position, st.CustomerName, st.Address)
            if st.Packages > 1 {
                fmt.Fprintf(&b, " [%d pkgs]", st.Packages)
            }
            b.WriteString("\n")
        }
        fmt.Fprintf(&b, "    %.1f km, est %.1f h\n", rt.TotalDistanceKm, rt.EstimatedHours)
    }
    if len(plan.Warnings) > 0 {
        b.WriteString("\nWarnings:\n")
        for _, wmsg := range plan.Warnings {
            fmt.Fprintf(&b, "  - %s\n", wmsg)
        }
    }
    return []byte(b.String())
}
