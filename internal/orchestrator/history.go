package orchestrator

import (
	"sync"
	"time"
)

const defaultHistorySize = 500

type StageEvent struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     StageView `json:"stage"`
}

type History struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []StageEvent
}

func NewHistory(maxEvents int) *History {
	if maxEvents <= 0 {
		maxEvents = defaultHistorySize
	}
	return &History{
		maxEvents: maxEvents,
		events:    make([]StageEvent, 0, maxEvents),
	}
}

func (h *History) Publish(event StageEvent) StageEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event.Seq = h.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.events = append(h.events, event)
	if len(h.events) > h.maxEvents {
		trim := len(h.events) - h.maxEvents
		h.events = append([]StageEvent(nil), h.events[trim:]...)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (h *History) Since(seq int64) []StageEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]StageEvent, 0, len(h.events))
	for _, e := range h.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

func (h *History) Run(runID string) []StageEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []StageEvent
	for _, e := range h.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}
