package jobs

import (
	"sync"
	"time"

	"github.com/galeed/Conversor/internal/domain"
)

// EventType classifies messages emitted during a conversion session.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
	EventTypeEngine EventType = "engine"
)

// Event is a sequenced payload consumed by UI subscribers. Log events
// carry either a free-text line in Message or a full command record.
type Event struct {
	Seq         int64              `json:"seq"`
	Timestamp   time.Time          `json:"timestamp"`
	JobID       string             `json:"jobId,omitempty"`
	Type        EventType          `json:"type"`
	Status      domain.JobStatus   `json:"status,omitempty"`
	EngineState domain.EngineState `json:"engineState,omitempty"`
	Message     string             `json:"message,omitempty"`
	Command     string             `json:"command,omitempty"`
	Args        []string           `json:"args,omitempty"`
	ExitCode    int                `json:"exitCode,omitempty"`
	Stdout      string             `json:"stdout,omitempty"`
	Stderr      string             `json:"stderr,omitempty"`
	OutputPath  string             `json:"outputPath,omitempty"`
	FileName    string             `json:"fileName,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Latest returns the most recent event message, or empty when no
// events were published yet. The diagnostic display shows only the
// latest line; older lines stay in the buffer for the log panel.
func (b *EventBus) Latest() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return ""
	}
	return b.events[len(b.events)-1].Message
}
