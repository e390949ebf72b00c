package events

import "time"

// Event defines the contract for everything published on the session bus.
type Event interface {
	// EventType returns the unique code for this event (e.g. "SESSION_UPDATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the common implementation used across the system.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	// TypeSessionUpdated carries the action name and fresh session snapshot
	// after every applied store transition.
	TypeSessionUpdated = "SESSION_UPDATED"

	// TypeNotice carries a transient, user-visible notification (poll
	// timeout, failed chat round-trip, export outcome).
	TypeNotice = "NOTICE"
)

// Notice severity levels, mirroring the toast levels the client renders.
const (
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeSuccess = "success"
)

// NewSessionUpdated builds the event published after a store transition.
func NewSessionUpdated(sessionId, action string, session interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeSessionUpdated,
		Data: map[string]interface{}{
			"session_id": sessionId,
			"action":     action,
			"session":    session,
		},
		OccurredAt: time.Now(),
	}
}

// NewNotice builds a transient user-visible notification event.
func NewNotice(sessionId, level, text string) BaseEvent {
	return BaseEvent{
		Type: TypeNotice,
		Data: map[string]interface{}{
			"session_id": sessionId,
			"level":      level,
			"text":       text,
		},
		OccurredAt: time.Now(),
	}
}

// Noticer is implemented by whatever surfaces transient notices to the user.
// Core components call it instead of talking to the transport directly.
type Noticer interface {
	Notice(level, text string)
}

// NopNoticer discards notices; used in tests and headless runs.
type NopNoticer struct{}

func (NopNoticer) Notice(level, text string) {}
