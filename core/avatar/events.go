package avatar

import "time"

// EventType identifies one kind of event emitted by a live avatar session.
type EventType string

const (
	EventStreamReady              EventType = "stream_ready"
	EventStreamDisconnected       EventType = "stream_disconnected"
	EventConnectionQualityChanged EventType = "connection_quality_changed"

	EventUserStart          EventType = "user_start"
	EventUserStop           EventType = "user_stop"
	EventAvatarStartTalking EventType = "avatar_start_talking"
	EventAvatarStopTalking  EventType = "avatar_stop_talking"

	EventUserTalkingMessage   EventType = "user_talking_message"
	EventAvatarTalkingMessage EventType = "avatar_talking_message"
	EventUserEndMessage       EventType = "user_end_message"
	EventAvatarEndMessage     EventType = "avatar_end_message"
)

// EventTypes lists every event type a session emits, in a stable order.
// Listener registration and teardown iterate this same list so the two stay
// symmetric.
func EventTypes() []EventType {
	return []EventType{
		EventStreamReady,
		EventStreamDisconnected,
		EventConnectionQualityChanged,
		EventUserStart,
		EventUserStop,
		EventAvatarStartTalking,
		EventAvatarStopTalking,
		EventUserTalkingMessage,
		EventAvatarTalkingMessage,
		EventUserEndMessage,
		EventAvatarEndMessage,
	}
}

// Event is a single event received from the vendor's realtime stream.
type Event struct {
	Type EventType
	// Message carries the transcript fragment for talking-message events.
	Message string
	// Quality carries the new rating for connection-quality events.
	Quality string
	// TaskID identifies the speech task the event belongs to, when the vendor
	// provides one.
	TaskID string

	ReceivedAt time.Time
}
