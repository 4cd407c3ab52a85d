package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/gorilla/websocket"

    "wavebatch/internal/events"
    "wavebatch/internal/model"
)

const heartbeatEvery = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

func (s *Server) heartbeat() time.Duration {
    if s.Heartbeat > 0 { return s.Heartbeat }
    return heartbeatEvery
}

// finishedRun reports whether the stored run has ended. Streams check it on
// every heartbeat in case the broker lost the finished event.
func (s *Server) finishedRun(r *http.Request, id string) (model.Run, bool) {
    run, err := s.Store.GetRun(r.Context(), id)
    return run, err == nil && run.Finished()
}

// finishedEvent describes a run that already reached a terminal status.
func finishedEvent(run model.Run) events.Event {
    return events.Event{Type: events.TypeRunFinished, Data: map[string]any{
        "runId": run.ID, "status": run.Status, "efficiency": run.Efficiency, "error": run.Error,
    }}
}

// streamRunEvents serves GET /v1/runs/{id}/events/stream as Server-Sent Events.
// The stream ends after the run's finished event.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, id string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    // subscribe before the status check so a finish in between is not lost
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    run, err := s.Store.GetRun(r.Context(), id)
    if err != nil { writeError(w, r, "Get run failed", err); return }

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    send := func(evt events.Event) {
        b, _ := json.Marshal(evt.Data)
        fmt.Fprintf(w, "event: %s\n", evt.Type)
        fmt.Fprintf(w, "data: %s\n\n", string(b))
        flusher.Flush()
    }
    if run.Finished() {
        send(finishedEvent(run))
        return
    }
    send(events.Event{Type: events.TypeRunStatus, Data: map[string]any{"runId": id, "status": run.Status}})

    heartbeat := time.NewTicker(s.heartbeat())
    defer heartbeat.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            send(evt)
            if evt.Type == events.TypeRunFinished { return }
        case <-heartbeat.C:
            if done, ok := s.finishedRun(r, id); ok {
                send(finishedEvent(done))
                return
            }
            send(events.Event{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
        }
    }
}

// runEventsWS serves GET /v1/runs/{id}/ws: the same events as the SSE stream,
// one JSON message per event.
func (s *Server) runEventsWS(w http.ResponseWriter, r *http.Request, id string) {
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    run, err := s.Store.GetRun(r.Context(), id)
    if err != nil { writeError(w, r, "Get run failed", err); return }

    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    closeNormal := func() {
        _ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(time.Second))
    }
    if run.Finished() {
        _ = conn.WriteJSON(finishedEvent(run))
        closeNormal()
        return
    }

    // read loop only notices the client going away
    gone := make(chan struct{})
    conn.SetReadLimit(1 << 16)
    go func() {
        defer close(gone)
        for {
            if _, _, err := conn.ReadMessage(); err != nil { return }
        }
    }()

    if err := conn.WriteJSON(events.Event{Type: events.TypeRunStatus, Data: map[string]any{"runId": id, "status": run.Status}}); err != nil { return }
    ping := time.NewTicker(s.heartbeat())
    defer ping.Stop()
    for {
        select {
        case <-gone:
            return
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            _ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
            if err := conn.WriteJSON(evt); err != nil { return }
            if evt.Type == events.TypeRunFinished {
                closeNormal()
                return
            }
        case <-ping.C:
            if done, ok := s.finishedRun(r, id); ok {
                _ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
                _ = conn.WriteJSON(finishedEvent(done))
                closeNormal()
                return
            }
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil { return }
        }
    }
}
