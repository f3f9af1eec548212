package sshmanager

import (
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

// EventType identifies an outbound event.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventData           EventType = "data"
	EventError          EventType = "error"
	EventDisconnected   EventType = "disconnected"
	EventMonitorStopped EventType = "monitor-stopped"
)

// LineEvent is one line of a followed file. The last event of a session
// carries a LineEvent with IsTerminal set, no content, and the error that
// ended the session if there was one.
type LineEvent struct {
	Content    string `json:"content"`
	IsTerminal bool   `json:"is_terminal"`
	Path       string `json:"path"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Event is delivered to subscribers. Events of one session arrive in
// emission order; nothing is guaranteed across sessions.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	Path      string       `json:"path,omitempty"`
	Line      *LineEvent   `json:"line,omitempty"`
	Message   string       `json:"message,omitempty"`
	Kind      sshconn.Kind `json:"kind,omitempty"`
	Time      time.Time    `json:"time"`
}

// Endpoint returns the endpoint the event belongs to.
func (e Event) Endpoint() sshconn.Endpoint {
	return sshconn.Endpoint{Host: e.Host, Port: e.Port}
}

// IsTerminal reports whether the event is the last one of its session.
func (e Event) IsTerminal() bool {
	return e.Line != nil && e.Line.IsTerminal
}

// Publisher receives events from tail sessions.
type Publisher interface {
	Publish(Event)
}

// maxEventsPerEndpoint limits the number of stored lifecycle events per endpoint.
const maxEventsPerEndpoint = 100

// EventLog keeps a ring buffer of the most recent lifecycle events (every
// type except data) per endpoint, for debugging and UI display.
type EventLog struct {
	mu     sync.RWMutex
	events map[sshconn.Endpoint][]Event
}

// NewEventLog returns an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{events: make(map[sshconn.Endpoint][]Event)}
}

// Record stores ev if it is a lifecycle event and logs it.
func (l *EventLog) Record(ev Event) {
	if ev.Type == EventData {
		return
	}
	ep := ev.Endpoint()

	l.mu.Lock()
	events := append(l.events[ep], ev)
	if len(events) > maxEventsPerEndpoint {
		events = events[len(events)-maxEventsPerEndpoint:]
	}
	l.events[ep] = events
	l.mu.Unlock()

	log.Printf("[tail] event %s/%s %s: %s", ep, ev.Type,
		logutil.SanitizeForLog(ev.Path), logutil.SanitizeForLog(ev.Message))
}

// Events returns all stored events for ep.
func (l *EventLog) Events(ep sshconn.Endpoint) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.events[ep]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// Recent returns the most recent n events for ep.
func (l *EventLog) Recent(ep sshconn.Endpoint, n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.events[ep]
	if n < 0 || len(events) <= n {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}
	result := make([]Event, n)
	copy(result, events[len(events)-n:])
	return result
}

// Clear removes all stored events for ep.
func (l *EventLog) Clear(ep sshconn.Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, ep)
}

// CountsByType returns, per endpoint, how many stored events have type t.
// Endpoints with no matching events are omitted.
func (l *EventLog) CountsByType(t EventType) map[sshconn.Endpoint]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[sshconn.Endpoint]int)
	for ep, events := range l.events {
		count := 0
		for _, e := range events {
			if e.Type == t {
				count++
			}
		}
		if count > 0 {
			result[ep] = count
		}
	}
	return result
}
