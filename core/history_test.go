package orchestration

import (
	"testing"
)

func TestHistoryCoalescesPartialsFromSameSender(t *testing.T) {
	history := NewHistory()

	history.OnPartialTranscript(SenderClient, "Hel")
	history.OnPartialTranscript(SenderClient, "lo there")

	messages := history.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Content != "Hello there" {
		t.Fatalf("expected coalesced content %q, got %q", "Hello there", messages[0].Content)
	}
	if messages[0].IsComplete {
		t.Fatalf("expected streaming message to be incomplete")
	}
}

func TestHistoryOpensNewMessageOnSenderChange(t *testing.T) {
	history := NewHistory()

	history.OnPartialTranscript(SenderClient, "What is the weather")
	history.OnPartialTranscript(SenderAvatar, "Let me check")
	history.OnPartialTranscript(SenderClient, " tomorrow")

	messages := history.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages after sender changes, got %d", len(messages))
	}
	if messages[0].Sender != SenderClient || messages[1].Sender != SenderAvatar || messages[2].Sender != SenderClient {
		t.Fatalf("unexpected sender order: %v %v %v", messages[0].Sender, messages[1].Sender, messages[2].Sender)
	}
	if messages[2].Content != " tomorrow" {
		t.Fatalf("expected third message %q, got %q", " tomorrow", messages[2].Content)
	}
}

func TestHistoryEndOfTurnCompletesLastMessage(t *testing.T) {
	history := NewHistory()

	history.OnPartialTranscript(SenderClient, "Hello")
	history.OnEndOfTurn()

	message, ok := history.LastMessage()
	if !ok {
		t.Fatalf("expected a message")
	}
	if !message.IsComplete {
		t.Fatalf("expected end of turn to complete the message")
	}

	history.OnPartialTranscript(SenderClient, "Again")
	messages := history.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected a fresh message after end of turn, got %d messages", len(messages))
	}
}

func TestHistoryEndOfTurnOnEmptyHistoryIsSafe(t *testing.T) {
	history := NewHistory()

	history.OnEndOfTurn()
	history.OnEndOfTurn()

	if messages := history.Messages(); len(messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(messages))
	}
}

func TestHistorySuppressDropsAvatarPartialsOnly(t *testing.T) {
	history := NewHistory()
	history.SetSuppressAvatar(true)

	history.OnPartialTranscript(SenderAvatar, "echoed speech")
	history.OnPartialTranscript(SenderClient, "still recorded")

	messages := history.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected only the client partial, got %d messages", len(messages))
	}
	if messages[0].Sender != SenderClient {
		t.Fatalf("expected client message, got %v", messages[0].Sender)
	}

	history.SetSuppressAvatar(false)
	history.OnPartialTranscript(SenderAvatar, "audible again")
	if messages := history.Messages(); len(messages) != 2 {
		t.Fatalf("expected avatar partials to flow after release, got %d messages", len(messages))
	}
}

func TestHistoryAddCompleteLeavesOpenTurnIntact(t *testing.T) {
	history := NewHistory()

	history.OnPartialTranscript(SenderClient, "spoken so far")
	history.AddComplete(SenderClient, "typed message")
	history.OnPartialTranscript(SenderClient, " and more")

	messages := history.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "spoken so far and more" {
		t.Fatalf("expected the open spoken message to keep accumulating, got %q", messages[0].Content)
	}
	if !messages[1].IsComplete {
		t.Fatalf("expected the typed message to be complete")
	}
}

func TestHistorySnapshotIsIsolated(t *testing.T) {
	history := NewHistory()
	history.AddComplete(SenderClient, "original")

	snapshot := history.Messages()
	snapshot[0].Content = "mutated"

	messages := history.Messages()
	if messages[0].Content != "original" {
		t.Fatalf("snapshot mutation leaked into history: %q", messages[0].Content)
	}
}

func TestHistoryClearResetsLog(t *testing.T) {
	history := NewHistory()
	history.OnPartialTranscript(SenderClient, "before clear")
	history.Clear()

	if messages := history.Messages(); len(messages) != 0 {
		t.Fatalf("expected empty history after clear, got %d messages", len(messages))
	}

	history.OnPartialTranscript(SenderClient, "after clear")
	messages := history.Messages()
	if len(messages) != 1 || messages[0].Content != "after clear" {
		t.Fatalf("expected a fresh message after clear, got %+v", messages)
	}
}

func TestHistoryChangeCallbackFiresPerMutation(t *testing.T) {
	history := NewHistory()

	var notifications int
	history.SetChangeCallback(func() { notifications++ })

	history.OnPartialTranscript(SenderClient, "one")
	history.OnPartialTranscript(SenderClient, " two")
	history.OnEndOfTurn()
	history.AddComplete(SenderAvatar, "three")
	history.Clear()

	if notifications != 5 {
		t.Fatalf("expected 5 change notifications, got %d", notifications)
	}
}

func TestHistoryLastCompleteClientMessage(t *testing.T) {
	history := NewHistory()

	if _, ok := history.LastCompleteClientMessage(); ok {
		t.Fatalf("expected no complete client message in empty history")
	}

	history.OnPartialTranscript(SenderClient, "first question")
	history.OnEndOfTurn()
	history.AddComplete(SenderAvatar, "an answer")
	history.OnPartialTranscript(SenderClient, "still streaming")

	message, ok := history.LastCompleteClientMessage()
	if !ok {
		t.Fatalf("expected a complete client message")
	}
	if message.Content != "first question" {
		t.Fatalf("expected %q, got %q", "first question", message.Content)
	}
}
