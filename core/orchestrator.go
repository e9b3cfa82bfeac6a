package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/avosel/visage-core/core/avatar"
	"github.com/avosel/visage-core/core/llms"
)

const (
	// turnAttempts bounds LLM generation retries for one user turn.
	turnAttempts       = 3
	turnBackoffBase    = time.Second
	turnAttemptTimeout = 30 * time.Second

	// apologyText is spoken verbatim when all generation attempts fail. The
	// user hears an answer either way.
	apologyText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// Orchestrator ties the avatar session, the conversation history and the LLM
// together: it watches the transcript for completed user turns, generates a
// streaming response and relays it to the avatar as paced speech.
type Orchestrator struct {
	session *Session
	history *History
	adapter llms.Adapter
	quota   QuotaSource

	systemPrompt string
	model        string
	temperature  *float64
	maxTokens    int

	relayConfig relayConfig

	// emitMu guards emit: Start swaps in the per-start callbacks and
	// Stop/Shutdown swap the no-op emitter back while turn goroutines and the
	// vendor event loop are still emitting.
	emitMu sync.Mutex
	emit   eventEmitter

	// inFlight admits at most one LLM turn at a time. Turns that lose the
	// race are dropped, not queued; the transcript they would have answered
	// is stale by the time the running turn finishes.
	inFlight        atomic.Bool
	processedMu     sync.Mutex
	lastProcessedID string

	attempts       int
	backoffBase    time.Duration
	attemptTimeout time.Duration
	sleep          func(context.Context, time.Duration) error

	// baseContext is guarded by processedMu; turn goroutines capture it
	// during admission.
	baseContext context.Context
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		history:        NewHistory(),
		emit:           noopEventEmitter,
		attempts:       turnAttempts,
		backoffBase:    turnBackoffBase,
		attemptTimeout: turnAttemptTimeout,
		sleep:          sleepContext,
		baseContext:    context.Background(),
	}
	o.session = newSessionMachine(o.history, o.emitEvent, o.onUserTurnComplete)
	o.history.SetChangeCallback(func() {
		o.emitEvent(historyChangedEvent{Messages: o.history.Messages()})
	})

	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) setEmitter(emit eventEmitter) {
	o.emitMu.Lock()
	o.emit = emit
	o.emitMu.Unlock()
}

func (o *Orchestrator) emitEvent(event any) {
	o.emitMu.Lock()
	emit := o.emit
	o.emitMu.Unlock()
	emit(event)
}

// Start runs the pre-flight quota gate and brings the avatar session up.
// The per-start callbacks stay registered until Stop.
func (o *Orchestrator) Start(ctx context.Context, cfg SessionConfig, opts ...OrchestrateOption) error {
	var options OrchestrateOptions
	for _, opt := range opts {
		opt(&options)
	}
	o.setEmitter(newCallbackEventEmitter(options))
	o.processedMu.Lock()
	o.baseContext = ctx
	o.processedMu.Unlock()

	warn := func(message string) { o.emitEvent(warningEvent{Message: message}) }
	if err := gateOnQuota(ctx, o.quota, options.confirmLowCredits, warn); err != nil {
		o.setEmitter(noopEventEmitter)
		return err
	}

	if err := o.session.Start(ctx, cfg); err != nil {
		o.setEmitter(noopEventEmitter)
		return err
	}
	return nil
}

// Stop tears the session down and forgets the per-start callbacks.
func (o *Orchestrator) Stop(ctx context.Context) error {
	err := o.session.Stop(ctx)
	o.setEmitter(noopEventEmitter)

	o.processedMu.Lock()
	o.lastProcessedID = ""
	o.processedMu.Unlock()
	return err
}

// Shutdown is the abrupt-exit path; see Session.Shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.session.Shutdown(ctx)
	o.setEmitter(noopEventEmitter)

	o.processedMu.Lock()
	o.lastProcessedID = ""
	o.processedMu.Unlock()
}

// SendText submits a typed user message. It lands in the history as a
// complete client turn and triggers a response exactly like a spoken one.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if state := o.session.State(); state != StateConnected {
		return &InvalidStateError{Op: "send text", State: state}
	}

	message := o.history.AddComplete(SenderClient, text)
	o.respondTo(message)
	return nil
}

// Speak has the avatar speak the given text verbatim, bypassing the LLM.
func (o *Orchestrator) Speak(ctx context.Context, text string) error {
	return o.session.Speak(ctx, text)
}

// Interrupt cuts the avatar off mid-sentence.
func (o *Orchestrator) Interrupt(ctx context.Context) error {
	return o.session.Interrupt(ctx)
}

func (o *Orchestrator) State() SessionState { return o.session.State() }

func (o *Orchestrator) SessionID() string { return o.session.SessionID() }

// Media returns the live media stream descriptor, nil unless connected.
func (o *Orchestrator) Media() *avatar.MediaStream { return o.session.Media() }

func (o *Orchestrator) VoiceChatActive() bool { return o.session.VoiceChatActive() }

// History returns a point-in-time snapshot of the conversation log.
func (o *Orchestrator) History() []Message { return o.history.Messages() }

// onUserTurnComplete fires when the vendor marks the end of a spoken user
// turn. Spoken turns only trigger while voice chat is active; typed turns go
// through SendText instead.
func (o *Orchestrator) onUserTurnComplete() {
	if !o.session.VoiceChatActive() {
		return
	}
	message, ok := o.history.LastCompleteClientMessage()
	if !ok {
		return
	}
	o.respondTo(message)
}

// respondTo admits one LLM turn for the given user message. Admission is a
// compare-and-swap, so two transcript events racing here can never both
// start a turn; the loser is dropped.
func (o *Orchestrator) respondTo(message Message) {
	if o.adapter == nil {
		return
	}

	o.processedMu.Lock()
	if message.ID == o.lastProcessedID {
		o.processedMu.Unlock()
		return
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		o.processedMu.Unlock()
		logger.Debug("dropping user turn, another response is in flight", "message_id", message.ID)
		return
	}
	o.lastProcessedID = message.ID
	ctx := o.baseContext
	o.processedMu.Unlock()

	go o.runTurn(ctx, message)
}

func (o *Orchestrator) runTurn(ctx context.Context, message Message) {
	defer o.inFlight.Store(false)

	ctx, span := tracer.Start(ctx, "respond to user turn")
	defer span.End()

	// The avatar echoes whatever it speaks back as talking events. While the
	// relay drives speech the response is recorded directly, so the echo is
	// suppressed to keep it out of the transcript twice.
	o.history.SetSuppressAvatar(true)
	defer o.history.SetSuppressAvatar(false)

	request := o.buildRequest()

	response, err := o.generateWithRetry(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("response generation failed", "message_id", message.ID, "error", err)
		o.emitEvent(turnErrorEvent{Err: err})

		if speakErr := o.session.Speak(ctx, apologyText); speakErr != nil {
			logger.Warn("failed to speak fallback apology", "error", speakErr)
		} else {
			o.history.AddComplete(SenderAvatar, apologyText)
		}
		return
	}

	if strings.TrimSpace(response) != "" {
		o.history.AddComplete(SenderAvatar, response)
	}
}

// buildRequest assembles the LLM request from the system prompt and the
// completed turns of the transcript.
func (o *Orchestrator) buildRequest() llms.Request {
	history := o.history.Messages()

	messages := make([]llms.Message, 0, len(history)+1)
	if o.systemPrompt != "" {
		messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: o.systemPrompt})
	}
	for _, message := range history {
		if !message.IsComplete || strings.TrimSpace(message.Content) == "" {
			continue
		}
		role := llms.RoleUser
		if message.Sender == SenderAvatar {
			role = llms.RoleAssistant
		}
		messages = append(messages, llms.Message{Role: role, Content: message.Content})
	}

	return llms.Request{
		Messages:    messages,
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

// generateWithRetry runs generation attempts with exponential backoff.
// Cancellation of the turn context stops immediately; non-retryable adapter
// errors are not retried.
func (o *Orchestrator) generateWithRetry(ctx context.Context, request llms.Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		if attempt > 1 {
			backoff := o.backoffBase << (attempt - 2)
			logger.Warn("retrying response generation", "attempt", attempt, "backoff", backoff, "error", lastErr)
			if err := o.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		response, err := o.generateOnce(ctx, request)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !llms.IsRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// generateOnce streams one generation attempt through a fresh relay. Each
// attempt gets its own deadline so a stalled stream cannot hold the turn
// open indefinitely.
func (o *Orchestrator) generateOnce(ctx context.Context, request llms.Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	speech := newRelay(o.session, o.relayConfig)

	stream := o.adapter.PromptWithStream(attemptCtx, request)
	for chunk, err := range stream.Chunks(attemptCtx) {
		if err != nil {
			return "", err
		}
		if chunk.Content != "" {
			if err := speech.Push(attemptCtx, chunk.Content); err != nil {
				return "", err
			}
		}
		if chunk.Done {
			break
		}
	}

	if err := speech.Finish(attemptCtx); err != nil {
		return "", err
	}
	return speech.Text(), nil
}
