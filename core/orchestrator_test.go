package orchestration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/avosel/visage-core/core/avatar"
	"github.com/avosel/visage-core/core/llms"
)

type fakeStream struct {
	chunks []string
	err    error
}

func (s *fakeStream) Chunks(ctx context.Context) func(func(llms.Chunk, error) bool) {
	return func(yield func(llms.Chunk, error) bool) {
		if s.err != nil {
			yield(llms.Chunk{}, s.err)
			return
		}
		for _, content := range s.chunks {
			if !yield(llms.Chunk{Content: content}, nil) {
				return
			}
		}
		yield(llms.Chunk{Done: true}, nil)
	}
}

type fakeAdapter struct {
	mu       sync.Mutex
	calls    int
	requests []llms.Request
	// attempts are served in call order; calls beyond the list get a default
	// successful stream.
	attempts []*fakeStream
	// gate, when non-nil, blocks every call until closed.
	gate chan struct{}
}

func (a *fakeAdapter) PromptWithStream(ctx context.Context, req llms.Request) llms.Stream {
	a.mu.Lock()
	a.calls++
	a.requests = append(a.requests, req)
	index := a.calls - 1
	gate := a.gate
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if index < len(a.attempts) {
		return a.attempts[index]
	}
	return &fakeStream{chunks: []string{"Understood."}}
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAdapter) recordedRequests() []llms.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llms.Request(nil), a.requests...)
}

func retryableAdapterError() error {
	return &llms.AdapterError{Provider: "openai", StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
}

func permanentAdapterError() error {
	return &llms.AdapterError{Provider: "openai", StatusCode: http.StatusUnauthorized, Err: errors.New("bad api key")}
}

func newTestOrchestrator(adapter llms.Adapter, handle avatar.Handle, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithAdapter(adapter), WithAvatarHandle(handle)}, opts...)
	o := NewOrchestrator(opts...)
	// Tests must not wait out real pacing and backoff delays.
	o.relayConfig.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func lastAvatarMessage(o *Orchestrator) (Message, bool) {
	messages := o.History()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == SenderAvatar {
			return messages[i], true
		}
	}
	return Message{}, false
}

func TestOrchestratorRespondsToSpokenUserTurn(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{attempts: []*fakeStream{{chunks: []string{"Here is one. ", "Why did the gopher cross the road?"}}}}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{VoiceChat: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	handle.emit(avatar.Event{Type: avatar.EventStreamReady})
	waitFor(t, "voice chat to start", func() bool { return o.VoiceChatActive() })

	handle.emit(avatar.Event{Type: avatar.EventUserTalkingMessage, Message: "Tell me a joke"})
	handle.emit(avatar.Event{Type: avatar.EventUserEndMessage})

	waitFor(t, "avatar response in history", func() bool {
		_, ok := lastAvatarMessage(o)
		return ok
	})

	message, _ := lastAvatarMessage(o)
	if message.Content != "Here is one. Why did the gopher cross the road?" {
		t.Fatalf("unexpected response recorded: %q", message.Content)
	}

	spoken := handle.spokenTexts()
	if len(spoken) != 2 || spoken[0] != "Here is one." || spoken[1] != "Why did the gopher cross the road?" {
		t.Fatalf("expected sentence chunks dispatched in order, got %v", spoken)
	}
}

func TestOrchestratorAdmitsOnlyOneTurnAtATime(t *testing.T) {
	handle := newFakeHandle()
	gate := make(chan struct{})
	adapter := &fakeAdapter{gate: gate}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first := Message{ID: "turn-1", Sender: SenderClient, Content: "first", IsComplete: true}
	second := Message{ID: "turn-2", Sender: SenderClient, Content: "second", IsComplete: true}

	var wg sync.WaitGroup
	for _, message := range []Message{first, second} {
		wg.Add(1)
		go func(message Message) {
			defer wg.Done()
			o.respondTo(message)
		}(message)
	}
	wg.Wait()

	close(gate)
	waitFor(t, "in-flight turn to drain", func() bool { return !o.inFlight.Load() })

	if calls := adapter.callCount(); calls != 1 {
		t.Fatalf("expected exactly one admitted turn, got %d adapter calls", calls)
	}
}

func TestOrchestratorStopWhileTurnInFlight(t *testing.T) {
	handle := newFakeHandle()
	gate := make(chan struct{})
	adapter := &fakeAdapter{gate: gate}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "Hi"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}
	waitFor(t, "turn to enter generation", func() bool { return adapter.callCount() == 1 })

	// Release the turn concurrently with Stop; the race detector verifies
	// that the emitter swap and the turn's history notifications stay
	// serialized.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		close(gate)
	}()
	go func() {
		defer wg.Done()
		if err := o.Stop(context.Background()); err != nil {
			t.Errorf("stop failed: %v", err)
		}
	}()
	wg.Wait()

	waitFor(t, "in-flight turn to drain", func() bool { return !o.inFlight.Load() })
	if state := o.State(); state != StateInactive {
		t.Fatalf("expected inactive after stop, got %v", state)
	}
}

func TestOrchestratorIgnoresSpokenTurnEndWithoutVoiceChat(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	handle.emit(avatar.Event{Type: avatar.EventUserTalkingMessage, Message: "stray transcript"})
	handle.emit(avatar.Event{Type: avatar.EventUserEndMessage})
	time.Sleep(20 * time.Millisecond)

	if calls := adapter.callCount(); calls != 0 {
		t.Fatalf("expected no turn outside voice chat, got %d adapter calls", calls)
	}
}

func TestOrchestratorDoesNotReprocessSameMessage(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	message := Message{ID: "turn-1", Sender: SenderClient, Content: "hello", IsComplete: true}
	o.respondTo(message)
	waitFor(t, "first turn to finish", func() bool { return !o.inFlight.Load() && adapter.callCount() == 1 })

	o.respondTo(message)
	time.Sleep(20 * time.Millisecond)

	if calls := adapter.callCount(); calls != 1 {
		t.Fatalf("expected the repeated message to be skipped, got %d adapter calls", calls)
	}
}

func TestOrchestratorSuppressesAvatarEchoDuringTurn(t *testing.T) {
	handle := newFakeHandle()
	gate := make(chan struct{})
	adapter := &fakeAdapter{gate: gate}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "Hi"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}
	waitFor(t, "turn to enter generation", func() bool { return adapter.callCount() == 1 })

	handle.emit(avatar.Event{Type: avatar.EventAvatarTalkingMessage, Message: "echoed speech"})
	if _, ok := lastAvatarMessage(o); ok {
		t.Fatalf("expected the avatar echo to be suppressed mid-turn")
	}

	close(gate)
	waitFor(t, "turn to finish", func() bool { return !o.inFlight.Load() })
	waitFor(t, "avatar response in history", func() bool {
		_, ok := lastAvatarMessage(o)
		return ok
	})

	handle.emit(avatar.Event{Type: avatar.EventAvatarTalkingMessage, Message: "audible again"})
	messages := o.History()
	if messages[len(messages)-1].Content != "audible again" {
		t.Fatalf("expected avatar partials to flow once the turn released suppression, got %+v", messages)
	}
}

func TestOrchestratorRetriesTransientFailuresWithBackoff(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{attempts: []*fakeStream{
		{err: retryableAdapterError()},
		{err: retryableAdapterError()},
		{chunks: []string{"All good."}},
	}}
	o := newTestOrchestrator(adapter, handle)

	recorder := &sleepRecorder{}
	o.sleep = recorder.sleep

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "Hello"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}

	waitFor(t, "avatar response after retries", func() bool {
		message, ok := lastAvatarMessage(o)
		return ok && message.Content == "All good."
	})

	if calls := adapter.callCount(); calls != 3 {
		t.Fatalf("expected 3 generation attempts, got %d", calls)
	}

	backoffs := recorder.recorded()
	if len(backoffs) != 2 || backoffs[0] != time.Second || backoffs[1] != 2*time.Second {
		t.Fatalf("expected backoffs of 1s and 2s, got %v", backoffs)
	}
}

func TestOrchestratorSpeaksApologyAfterExhaustedRetries(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{attempts: []*fakeStream{
		{err: retryableAdapterError()},
		{err: retryableAdapterError()},
		{err: retryableAdapterError()},
	}}
	o := newTestOrchestrator(adapter, handle)

	var turnErrMu sync.Mutex
	var turnErr error
	err := o.Start(context.Background(), SessionConfig{}, WithTurnErrorCallback(func(err error) {
		turnErrMu.Lock()
		turnErr = err
		turnErrMu.Unlock()
	}))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := o.SendText(context.Background(), "Hello"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}

	waitFor(t, "apology spoken", func() bool {
		spoken := handle.spokenTexts()
		return len(spoken) == 1 && spoken[0] == apologyText
	})

	if calls := adapter.callCount(); calls != 3 {
		t.Fatalf("expected all 3 attempts used, got %d", calls)
	}

	message, ok := lastAvatarMessage(o)
	if !ok || message.Content != apologyText {
		t.Fatalf("expected the apology recorded in history, got %+v", message)
	}

	turnErrMu.Lock()
	defer turnErrMu.Unlock()
	if turnErr == nil {
		t.Fatalf("expected the turn error callback to fire")
	}
}

func TestOrchestratorDoesNotRetryPermanentFailures(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{attempts: []*fakeStream{{err: permanentAdapterError()}}}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "Hello"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}

	waitFor(t, "apology spoken", func() bool { return len(handle.spokenTexts()) == 1 })

	if calls := adapter.callCount(); calls != 1 {
		t.Fatalf("expected a single attempt for a permanent failure, got %d", calls)
	}
}

func TestOrchestratorSendTextRequiresConnection(t *testing.T) {
	o := newTestOrchestrator(&fakeAdapter{}, newFakeHandle())

	err := o.SendText(context.Background(), "hello")
	var invalidState *InvalidStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestOrchestratorSendTextIgnoresBlankInput(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(adapter, handle)

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "   "); err != nil {
		t.Fatalf("expected blank input to be a no-op, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if calls := adapter.callCount(); calls != 0 {
		t.Fatalf("expected no turn for blank input, got %d adapter calls", calls)
	}
	if messages := o.History(); len(messages) != 0 {
		t.Fatalf("expected no history entry for blank input, got %d messages", len(messages))
	}
}

func TestOrchestratorBuildsRequestFromTranscript(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(adapter, handle, WithSystemPrompt("Answer briefly."), WithModel("gpt-4o"))

	if err := o.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(context.Background(), "Hello there"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}

	waitFor(t, "turn to finish", func() bool { return adapter.callCount() == 1 && !o.inFlight.Load() })

	requests := adapter.recordedRequests()
	request := requests[0]
	if request.Model != "gpt-4o" {
		t.Fatalf("expected model override, got %q", request.Model)
	}
	if len(request.Messages) != 2 {
		t.Fatalf("expected system prompt plus user turn, got %d messages", len(request.Messages))
	}
	if request.Messages[0].Role != llms.RoleSystem || request.Messages[0].Content != "Answer briefly." {
		t.Fatalf("unexpected system message: %+v", request.Messages[0])
	}
	if request.Messages[1].Role != llms.RoleUser || request.Messages[1].Content != "Hello there" {
		t.Fatalf("unexpected user message: %+v", request.Messages[1])
	}
}

func TestOrchestratorStopResetsTurnTracking(t *testing.T) {
	handle := newFakeHandle()
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(adapter, handle)
	ctx := context.Background()

	if err := o.Start(ctx, SessionConfig{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := o.SendText(ctx, "hello"); err != nil {
		t.Fatalf("send text failed: %v", err)
	}
	waitFor(t, "turn to finish", func() bool { return adapter.callCount() == 1 && !o.inFlight.Load() })

	if err := o.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if state := o.State(); state != StateInactive {
		t.Fatalf("expected inactive after stop, got %v", state)
	}
	if messages := o.History(); len(messages) != 0 {
		t.Fatalf("expected history cleared on stop, got %d messages", len(messages))
	}

	if err := o.Start(ctx, SessionConfig{}); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := o.SendText(ctx, "hello again"); err != nil {
		t.Fatalf("send text after restart failed: %v", err)
	}
	waitFor(t, "turn after restart", func() bool { return adapter.callCount() == 2 })
}

func TestOrchestratorWarnsOnLowCreditStart(t *testing.T) {
	handle := newFakeHandle()
	o := newTestOrchestrator(&fakeAdapter{}, handle, WithQuotaSource(&fakeQuotaSource{credits: 2}))

	var warning string
	err := o.Start(context.Background(), SessionConfig{}, WithWarningCallback(func(message string) {
		warning = message
	}))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if warning == "" {
		t.Fatalf("expected a low-credit warning surfaced through the callback")
	}
}

func TestOrchestratorQuotaGateBlocksStart(t *testing.T) {
	handle := newFakeHandle()
	o := newTestOrchestrator(&fakeAdapter{}, handle, WithQuotaSource(&fakeQuotaSource{credits: 0}))

	err := o.Start(context.Background(), SessionConfig{})
	var exhausted *QuotaExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected QuotaExhaustedError, got %v", err)
	}
	if state := o.State(); state != StateInactive {
		t.Fatalf("expected session untouched by a blocked start, got %v", state)
	}
}
