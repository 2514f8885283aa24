// Package main runs a demo GPS feeder: it starts a journey for a route and
// streams simulated points over the websocket ingest endpoint.
package main

import (
    "bytes"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "os"
    "time"

    "github.com/gorilla/websocket"
)

type pointFrame struct {
    RouteID string `json:"routeId"`
    Point   struct {
        Timestamp string  `json:"ts"`
        Lat       float64 `json:"lat"`
        Lng       float64 `json:"lng"`
    } `json:"point"`
}

type ack struct {
    Accepted bool   `json:"accepted"`
    Seq      int    `json:"seq,omitempty"`
    Warning  string `json:"warning,omitempty"`
    Error    string `json:"error,omitempty"`
}

func main() {
    port := os.Getenv("PORT")
    if port == "" {
        port = "8080"
    }
    routeID := os.Getenv("ROUTE_ID")
    if routeID == "" {
        routeID = "R1"
    }
    base := fmt.Sprintf("http://localhost:%s", port)

    // Start a journey on the route
    body := []byte(`{"driverId":"drv-demo"}`)
    req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/journeys/%s/start", base, routeID), bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    resp, err := http.DefaultClient.Do(req)
    if err != nil {
        log.Fatal(err)
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
        log.Fatalf("start journey: unexpected status %d", resp.StatusCode)
    }
    log.Printf("journey running on route %s", routeID)

    // Connect the ingest socket
    u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/journeys/ws"}
    c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
    if err != nil {
        log.Fatal("dial:", err)
    }
    defer func() { _ = c.Close() }()

    // Walk a short north-east path from a Bangalore depot
    lat, lng := 12.9716, 77.5946
    for i := 0; i < 10; i++ {
        var f pointFrame
        f.RouteID = routeID
        f.Point.Timestamp = time.Now().UTC().Format(time.RFC3339)
        f.Point.Lat = lat
        f.Point.Lng = lng
        if err := c.WriteJSON(f); err != nil {
            log.Fatal(err)
        }
        var a ack
        if err := c.ReadJSON(&a); err != nil {
            log.Fatal(err)
        }
        if a.Error != "" {
            log.Printf("point %d rejected: %s", i+1, a.Error)
        } else if !a.Accepted {
            log.Printf("point %d dropped: %s", i+1, a.Warning)
        } else {
            log.Printf("point %d acked seq=%d", i+1, a.Seq)
        }
        lat += 0.0008
        lng += 0.0005
        time.Sleep(700 * time.Millisecond)
    }

    // Stop the journey
    stopReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/journeys/%s/stop", base, routeID), bytes.NewReader([]byte("{}")))
    stopReq.Header.Set("Content-Type", "application/json")
    sr, err := http.DefaultClient.Do(stopReq)
    if err != nil {
        log.Fatal(err)
    }
    defer func() { _ = sr.Body.Close() }()
    var out json.RawMessage
    _ = json.NewDecoder(sr.Body).Decode(&out)
    log.Printf("journey stopped: %s", string(out))
}
