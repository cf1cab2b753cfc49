package progress

import (
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Event types published by the pipeline.
const (
	EventRunStarted     = "run_started"
	EventRunFinished    = "run_finished"
	EventVideoStarted   = "video_started"
	EventVideoCompleted = "video_completed"
	EventVideoFailed    = "video_failed"
	EventVideoSkipped   = "video_skipped"
)

// Event is one pipeline progress notification.
type Event struct {
	Type    string              `json:"type"`
	RunID   string              `json:"run_id,omitempty"`
	VideoID string              `json:"video_id,omitempty"`
	Error   string              `json:"error,omitempty"`
	Summary *types.BatchSummary `json:"summary,omitempty"`
	Time    time.Time           `json:"time"`
}

// Hub fans pipeline events out to websocket subscribers. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than
// stalling the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber, dropping it for slow ones.
// A nil hub is a no-op so callers can leave progress unwired.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
