package avatar

import "context"

// TaskType selects how the avatar treats dispatched text.
type TaskType string

const (
	// TaskRepeat speaks the text verbatim.
	TaskRepeat TaskType = "repeat"
	// TaskChat lets the vendor's own conversational mode answer the text.
	TaskChat TaskType = "chat"
)

// MediaStream describes the live audio/video stream of a session. Media
// decoding is out of scope here; the descriptor is handed to whatever player
// the host embeds.
type MediaStream struct {
	URL         string
	AccessToken string
}

// SessionInfo is returned by session creation.
type SessionInfo struct {
	SessionID    string
	SessionToken string
	Media        *MediaStream
}

// Handle is the command/event surface of one vendor avatar session. It is the
// only thing the orchestration core knows about the vendor.
type Handle interface {
	// CreateSession creates the vendor session from an already-cleaned payload
	// (no recursively-undefined keys, see orchestration.CleanPayload).
	CreateSession(ctx context.Context, payload map[string]any) (*SessionInfo, error)
	// StartSession starts the media stream of a created session.
	StartSession(ctx context.Context) error
	// Speak dispatches one speech task.
	Speak(ctx context.Context, text string, taskType TaskType) error
	// StartVoiceChat enables the microphone pipeline. Only valid once the
	// session has signalled stream-ready.
	StartVoiceChat(ctx context.Context) error
	StopVoiceChat(ctx context.Context) error
	// Interrupt cuts off the avatar mid-sentence.
	Interrupt(ctx context.Context) error
	// StopSession tears the vendor session down.
	StopSession(ctx context.Context) error

	// On registers a handler for one event type and returns its disposer.
	On(eventType EventType, handler func(Event)) (dispose func())
}
