package event

import (
	"sync"
	"time"
)

// History is a bounded in-memory event log. When the log exceeds its
// maximum it is trimmed to half, dropping the oldest events.
type History struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewHistory creates a history retaining at most max events.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1
	}
	return &History{
		events: make([]Event, 0, max),
		max:    max,
	}
}

// Append records an event, trimming to half capacity when full.
func (h *History) Append(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, evt)
	if len(h.events) > h.max {
		keep := h.max / 2
		if keep < 1 {
			keep = 1
		}
		// Copy into a fresh slice so the dropped prefix can be collected.
		trimmed := make([]Event, keep, h.max)
		copy(trimmed, h.events[len(h.events)-keep:])
		h.events = trimmed
	}
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// HistoryFilter selects events from the history. Zero fields match
// everything.
type HistoryFilter struct {
	// Source matches the publishing module.
	Source string

	// Type matches the exact event type.
	Type string

	// Category matches the event category.
	Category Category

	// Since excludes events published before this instant.
	Since time.Time

	// Until excludes events published after this instant.
	Until time.Time
}

// matches reports whether an event passes the filter.
func (f HistoryFilter) matches(evt Event) bool {
	if f.Source != "" && evt.Source != f.Source {
		return false
	}
	if f.Type != "" && evt.Type != f.Type {
		return false
	}
	if f.Category != "" && evt.Category != f.Category {
		return false
	}
	if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && evt.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Query returns the retained events passing the filter, oldest first.
func (h *History) Query(filter HistoryFilter) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0, len(h.events))
	for _, evt := range h.events {
		if filter.matches(evt) {
			result = append(result, evt)
		}
	}
	return result
}
