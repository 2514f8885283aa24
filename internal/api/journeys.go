package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/websocket"

    "routeops/internal/model"
    "routeops/internal/webhooks"
    "routeops/pkg/logger"
)

// JourneysActiveHandler handles GET /v1/journeys/active — the live fleet
// view: latest point plus running point count per active route.
func (s *Server) JourneysActiveHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": s.Tracker.ListActive()})
}

// FleetStreamHandler handles GET /v1/journeys/stream — SSE over every
// journey lifecycle and location event.
func (s *Server) FleetStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    s.streamTopic(w, r, TopicFleet)
}

// JourneyByIDHandler handles /v1/journeys/{routeId}/{op} where op is one of
// start, stop, points, summary, stream.
func (s *Server) JourneyByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/journeys/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[0] == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "want /v1/journeys/{routeId}/{op}", r.URL.Path)
        return
    }
    routeID := parts[0]
    switch parts[1] {
    case "start":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var req struct {
            DriverID string `json:"driverId"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        sess, err := s.Tracker.Start(r.Context(), routeID, req.DriverID)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        data := map[string]any{"routeId": routeID, "driverId": req.DriverID, "sessionId": sess.SessionID}
        s.Pub.Emit(r.Context(), webhooks.EventJourneyStarted, data)
        s.Broker.Publish(routeID, Event{Type: webhooks.EventJourneyStarted, Data: data})
        s.Broker.Publish(TopicFleet, Event{Type: webhooks.EventJourneyStarted, Data: data})
        writeJSON(w, http.StatusCreated, sess)
    case "stop":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        sess, err := s.Tracker.Stop(r.Context(), routeID)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        data := map[string]any{"routeId": routeID, "driverId": sess.DriverID, "sessionId": sess.SessionID}
        s.Pub.Emit(r.Context(), webhooks.EventJourneyStopped, data)
        s.Broker.Publish(routeID, Event{Type: webhooks.EventJourneyStopped, Data: data})
        s.Broker.Publish(TopicFleet, Event{Type: webhooks.EventJourneyStopped, Data: data})
        writeJSON(w, http.StatusOK, sess)
    case "points":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var pt model.TrackingPoint
        if err := json.NewDecoder(r.Body).Decode(&pt); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.recordPoint(w, r, routeID, pt)
    case "summary":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        sum, err := s.Tracker.TripSummary(r.Context(), routeID)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, sum)
    case "stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.streamTopic(w, r, routeID)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "unknown journey operation: "+parts[1], r.URL.Path)
    }
}

func (s *Server) recordPoint(w http.ResponseWriter, r *http.Request, routeID string, pt model.TrackingPoint) {
    stored, accepted, err := s.Tracker.Record(r.Context(), routeID, pt)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    if !accepted {
        // dropped, not an error: report the warning so the device can resync
        writeJSON(w, http.StatusAccepted, map[string]any{
            "accepted": false,
            "warning":  "point dropped: timestamp does not advance past last recorded point",
        })
        return
    }
    data := map[string]any{
        "routeId": routeID, "lat": stored.Lat, "lng": stored.Lng,
        "ts": stored.Timestamp, "seq": stored.SequenceNo,
    }
    s.Broker.Publish(routeID, Event{Type: "journey.location", Data: data})
    s.Broker.Publish(TopicFleet, Event{Type: "journey.location", Data: data})
    writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "point": stored})
}

// streamTopic writes broker events for a topic as SSE until the client
// disconnects.
func (s *Server) streamTopic(w http.ResponseWriter, r *http.Request, topic string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)
    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"topic\":%q,\"ts\":%q}\n\n", topic, time.Now().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, open := <-ch:
            if !open { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            heartbeat()
        }
    }
}

var wsUpgrader = websocket.Upgrader{
    ReadBufferSize:  1024,
    WriteBufferSize: 1024,
    CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsPointFrame struct {
    RouteID string              `json:"routeId"`
    Point   model.TrackingPoint `json:"point"`
}

type wsAck struct {
    Accepted bool   `json:"accepted"`
    Seq      int    `json:"seq,omitempty"`
    Warning  string `json:"warning,omitempty"`
    Error    string `json:"error,omitempty"`
}

// WSIngestHandler handles GET /v1/journeys/ws: one socket per driver device
// streaming point frames for its active route, acked frame by frame.
func (s *Server) WSIngestHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := wsUpgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()
    for {
        var frame wsPointFrame
        if err := conn.ReadJSON(&frame); err != nil {
            return
        }
        if frame.RouteID == "" {
            _ = conn.WriteJSON(wsAck{Error: "routeId required"})
            continue
        }
        stored, accepted, err := s.Tracker.Record(r.Context(), frame.RouteID, frame.Point)
        if err != nil {
            _ = conn.WriteJSON(wsAck{Error: err.Error()})
            continue
        }
        if !accepted {
            _ = conn.WriteJSON(wsAck{Warning: "point dropped: out of order"})
            continue
        }
        data := map[string]any{
            "routeId": frame.RouteID, "lat": stored.Lat, "lng": stored.Lng,
            "ts": stored.Timestamp, "seq": stored.SequenceNo,
        }
        s.Broker.Publish(frame.RouteID, Event{Type: "journey.location", Data: data})
        s.Broker.Publish(TopicFleet, Event{Type: "journey.location", Data: data})
        if err := conn.WriteJSON(wsAck{Accepted: true, Seq: stored.SequenceNo}); err != nil {
            s.Log.Debug("ws ack write failed", logger.Error(err))
            return
        }
    }
}
