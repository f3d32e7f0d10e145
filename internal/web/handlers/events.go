package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/jcalado/lumina-sub001/internal/syncer"
)

// eventChannelBuffer is the per-listener buffer. A listener that falls
// this far behind starts dropping events instead of stalling the job.
const eventChannelBuffer = 64

// EventHub fans sync engine events out to SSE listeners, keyed by job
// id. It implements syncer.EventSink so the orchestrator stays unaware
// of the web layer.
type EventHub struct {
	listeners map[string][]chan syncer.Event
	mu        sync.RWMutex
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		listeners: make(map[string][]chan syncer.Event),
	}
}

// Publish delivers an event to every listener of its job. Never blocks.
func (h *EventHub) Publish(event syncer.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, listener := range h.listeners[event.JobID] {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// AddListener registers a new listener for a job's events.
func (h *EventHub) AddListener(jobID string) chan syncer.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan syncer.Event, eventChannelBuffer)
	h.listeners[jobID] = append(h.listeners[jobID], ch)
	return ch
}

// RemoveListener unregisters and closes a listener.
func (h *EventHub) RemoveListener(jobID string, ch chan syncer.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chans := h.listeners[jobID]
	for i, listener := range chans {
		if listener == ch {
			h.listeners[jobID] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.listeners[jobID]) == 0 {
		delete(h.listeners, jobID)
	}
}

// isTerminalEvent reports whether an event ends its SSE stream.
func isTerminalEvent(t string) bool {
	return t == syncer.EventJobCompleted || t == syncer.EventJobFailed || t == syncer.EventJobCancelled
}

// setupSSE sets the SSE headers and returns the flusher. On failure it
// writes an error response and returns false.
func setupSSE(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
