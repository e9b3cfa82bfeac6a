package orchestration

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Sender identifies which side of the conversation a message belongs to.
type Sender string

const (
	SenderClient Sender = "client"
	SenderAvatar Sender = "avatar"
)

// Message is one turn-unit of the visible transcript. Content accumulates
// while the turn streams; IsComplete flips once on end of turn.
type Message struct {
	ID         string
	Sender     Sender
	Content    string
	IsComplete bool
}

// History is the ordered conversation log. It reconciles partial transcript
// events from both sides into append-and-coalesce messages and is the single
// shared resource between transcript events and the LLM turn, so every
// mutation is one mutex-guarded reducer step.
type History struct {
	mu       sync.Mutex
	messages []Message
	// openSender tracks whose streaming turn is currently open; empty when no
	// turn is open.
	openSender Sender
	// suppressAvatar drops avatar partials while the relay is driving speech
	// manually, so the vendor's talking-event echo is not inserted twice.
	suppressAvatar bool

	onChange func()
}

func NewHistory() *History {
	return &History{}
}

// SetChangeCallback registers a callback invoked after every mutation. The
// callback runs outside the history lock.
func (h *History) SetChangeCallback(onChange func()) {
	h.mu.Lock()
	h.onChange = onChange
	h.mu.Unlock()
}

// OnPartialTranscript applies one incremental transcript fragment. Fragments
// from the sender whose turn is open extend that sender's open message;
// fragments from the other sender open a new message without closing the
// previous one.
func (h *History) OnPartialTranscript(sender Sender, text string) {
	h.mu.Lock()
	if h.suppressAvatar && sender == SenderAvatar {
		h.mu.Unlock()
		return
	}

	if h.openSender == sender {
		if idx := h.lastOpenIndex(sender); idx >= 0 {
			h.messages[idx].Content += text
			h.notifyLocked()
			return
		}
	}

	h.messages = append(h.messages, Message{
		ID:      uuid.NewString(),
		Sender:  sender,
		Content: text,
	})
	h.openSender = sender
	h.notifyLocked()
}

// OnEndOfTurn marks the last message complete and resets the open-sender
// tracker. A no-op on empty history, so it is safe to apply repeatedly.
func (h *History) OnEndOfTurn() {
	h.mu.Lock()
	if len(h.messages) == 0 {
		h.openSender = ""
		h.mu.Unlock()
		return
	}

	h.messages[len(h.messages)-1].IsComplete = true
	h.openSender = ""
	h.notifyLocked()
}

// AddComplete appends an already-complete message, leaving the open-sender
// tracker untouched. Used for typed text and for the assembled LLM response.
func (h *History) AddComplete(sender Sender, content string) Message {
	message := Message{
		ID:         uuid.NewString(),
		Sender:     sender,
		Content:    content,
		IsComplete: true,
	}

	h.mu.Lock()
	h.messages = append(h.messages, message)
	h.notifyLocked()
	return message
}

// Clear empties the log and resets the tracker.
func (h *History) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.openSender = ""
	h.notifyLocked()
}

// SetSuppressAvatar toggles suppression of avatar partial transcripts.
func (h *History) SetSuppressAvatar(suppress bool) {
	h.mu.Lock()
	h.suppressAvatar = suppress
	h.mu.Unlock()
}

// Messages returns a point-in-time copy of the log, in insertion order.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var snapshot []Message
	if err := copier.Copy(&snapshot, &h.messages); err != nil {
		snapshot = make([]Message, len(h.messages))
		copy(snapshot, h.messages)
	}
	return snapshot
}

// LastMessage returns a copy of the most recent message, if any.
func (h *History) LastMessage() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// LastCompleteClientMessage returns the most recent complete, non-empty
// client message, if any.
func (h *History) LastCompleteClientMessage() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.messages) - 1; i >= 0; i-- {
		message := h.messages[i]
		if message.Sender == SenderClient && message.IsComplete && strings.TrimSpace(message.Content) != "" {
			return message, true
		}
	}
	return Message{}, false
}

// lastOpenIndex finds the most recent incomplete message of the given sender.
// Callers hold h.mu.
func (h *History) lastOpenIndex(sender Sender) int {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Sender == sender && !h.messages[i].IsComplete {
			return i
		}
	}
	return -1
}

// notifyLocked releases h.mu and runs the change callback.
func (h *History) notifyLocked() {
	onChange := h.onChange
	h.mu.Unlock()
	if onChange != nil {
		onChange()
	}
}
