// Package events fans run progress out to streaming clients.
package events

import (
    "sync"
)

// Run event types.
const (
    TypeRunStatus     = "run.status"
    TypeRunCheckpoint = "run.checkpoint"
    TypeRunFinished   = "run.finished"
)

type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Broker delivers events published for a run id to every subscriber of that id.
type Broker interface {
    Subscribe(runID string) chan Event
    Unsubscribe(runID string, ch chan Event)
    Publish(runID string, evt Event)
}

type Memory struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // runId -> set of channels
}

func NewMemory() *Memory {
    return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(runID string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[runID] == nil { b.subs[runID] = map[chan Event]struct{}{} }
    b.subs[runID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Memory) Unsubscribe(runID string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[runID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, runID) }
    close(ch)
}

// Publish never blocks; slow subscribers miss progress events but always
// receive run.finished.
func (b *Memory) Publish(runID string, evt Event) {
    b.mu.Lock()
    m := b.subs[runID]
    for ch := range m {
        deliver(ch, evt)
    }
    b.mu.Unlock()
}

// deliver sends evt without blocking. A full buffer drops evt, except for
// run.finished which evicts the oldest buffered event instead.
// Callers must be the only sender on ch.
func deliver(ch chan Event, evt Event) {
    select {
    case ch <- evt:
        return
    default:
    }
    if evt.Type != TypeRunFinished {
        return
    }
    select {
    case <-ch:
    default:
    }
    select { case ch <- evt: default: }
}
