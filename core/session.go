package orchestration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/avosel/visage-core/core/avatar"
)

// SessionState is the lifecycle state of the avatar session.
type SessionState string

const (
	StateInactive   SessionState = "inactive"
	StateConnecting SessionState = "connecting"
	StateConnected  SessionState = "connected"
)

// HandleFactory builds a vendor avatar handle from a bearer session token.
type HandleFactory func(sessionToken string) avatar.Handle

const (
	defaultStreamReadyTimeout = 10 * time.Second
	defaultBeaconTimeout      = 2 * time.Second
)

// Session governs the avatar session lifecycle and exclusively owns the
// vendor handle and its live media stream. All listener registrations made
// on Start are held as disposers so teardown stays symmetric no matter how
// the listener set evolves.
type Session struct {
	mu           sync.Mutex
	state        SessionState
	handle       avatar.Handle
	newHandle    HandleFactory
	sessionID    string
	sessionToken string
	media        *avatar.MediaStream
	disposers    []func()
	// voiceChatPending is set between a Start that requested voice chat and
	// the stream-ready event that allows starting it.
	voiceChatPending bool
	streamReadyTimer *time.Timer

	voiceChatActive atomic.Bool
	avatarTalking   atomic.Bool

	history       *History
	emit          func(event any)
	onUserTurnEnd func()

	streamReadyTimeout time.Duration
	beaconTimeout      time.Duration
}

func newSessionMachine(history *History, emit func(event any), onUserTurnEnd func()) *Session {
	return &Session{
		state:              StateInactive,
		history:            history,
		emit:               emit,
		onUserTurnEnd:      onUserTurnEnd,
		streamReadyTimeout: defaultStreamReadyTimeout,
		beaconTimeout:      defaultBeaconTimeout,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the vendor-assigned identifier, empty unless connected.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Media returns the live media stream descriptor, nil unless connected.
func (s *Session) Media() *avatar.MediaStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

func (s *Session) VoiceChatActive() bool { return s.voiceChatActive.Load() }

// Start brings the session from INACTIVE through CONNECTING to CONNECTED.
// On any failure the state is rolled back to INACTIVE before the typed error
// is returned, so there is no partial-success state to clean up.
func (s *Session) Start(ctx context.Context, cfg SessionConfig) error {
	ctx, span := tracer.Start(ctx, "start avatar session")
	defer span.End()

	s.mu.Lock()
	if s.state != StateInactive {
		state := s.state
		s.mu.Unlock()
		return &InvalidStateError{Op: "start", State: state}
	}
	if s.handle == nil {
		if cfg.Token == "" {
			s.mu.Unlock()
			return &MissingTokenError{}
		}
		if s.newHandle == nil {
			s.mu.Unlock()
			return fmt.Errorf("no avatar handle factory configured")
		}
		s.handle = s.newHandle(cfg.Token)
	}
	s.state = StateConnecting
	handle := s.handle
	s.mu.Unlock()

	s.registerListeners(ctx, handle)

	// The vendor rejects payloads with recursively-undefined fields with a
	// 400, so the payload is cleaned before transmission.
	payload := CleanPayload(cfg.payload())
	info, err := handle.CreateSession(ctx, payload)
	if err != nil {
		err = classifyStartError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.rollback(ctx)
		return err
	}
	span.SetAttributes(attribute.String("session.id", info.SessionID))

	s.mu.Lock()
	s.sessionID = info.SessionID
	s.sessionToken = info.SessionToken
	s.media = info.Media
	s.mu.Unlock()

	if err := handle.StartSession(ctx); err != nil {
		err = classifyStartError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.rollback(ctx)
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	if cfg.VoiceChat {
		s.voiceChatPending = true
		s.streamReadyTimer = time.AfterFunc(s.streamReadyTimeout, s.onStreamReadyTimeout)
	}
	s.mu.Unlock()
	return nil
}

// Stop tears the session down and returns it to INACTIVE. Idempotent; safe
// to call in any state. Listener deregistration mirrors registration exactly
// since both walk the same disposer list.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateInactive && s.disposers == nil {
		s.mu.Unlock()
		return nil
	}
	disposers := s.disposers
	s.disposers = nil
	handle := s.handle
	hadSession := s.sessionID != ""
	s.sessionID = ""
	s.sessionToken = ""
	s.media = nil
	s.voiceChatPending = false
	if s.streamReadyTimer != nil {
		s.streamReadyTimer.Stop()
		s.streamReadyTimer = nil
	}
	s.state = StateInactive
	s.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	s.history.Clear()

	wasVoiceChat := s.voiceChatActive.Swap(false)
	s.avatarTalking.Store(false)

	var stopErr error
	if handle != nil {
		if wasVoiceChat {
			if err := handle.StopVoiceChat(ctx); err != nil {
				logger.Warn("failed to stop voice chat", "error", err)
			}
		}
		if hadSession {
			if err := handle.StopSession(ctx); err != nil {
				stopErr = fmt.Errorf("failed to stop avatar session: %w", err)
				logger.Warn("failed to stop avatar session", "error", err)
			}
		}
	}
	return stopErr
}

// Shutdown is the page-unload path: a best-effort asynchronous cleanup
// notification races ahead of the normal stop, because the host may go away
// before in-flight stop calls resolve.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	handle := s.handle
	connected := s.state == StateConnected
	beaconTimeout := s.beaconTimeout
	s.mu.Unlock()

	if connected && handle != nil {
		go func() {
			beaconCtx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
			defer cancel()
			if err := handle.StopSession(beaconCtx); err != nil {
				logger.Warn("cleanup beacon failed", "error", err)
			}
		}()
	}

	if err := s.Stop(ctx); err != nil {
		logger.Warn("session stop during shutdown failed", "error", err)
	}
}

// Speak dispatches one verbatim speech task to the connected avatar.
func (s *Session) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		return &InvalidStateError{Op: "speak", State: state}
	}
	handle := s.handle
	s.mu.Unlock()

	return handle.Speak(ctx, text, avatar.TaskRepeat)
}

// Interrupt cuts the avatar off mid-sentence.
func (s *Session) Interrupt(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		return &InvalidStateError{Op: "interrupt", State: state}
	}
	handle := s.handle
	s.mu.Unlock()

	return handle.Interrupt(ctx)
}

func (s *Session) registerListeners(ctx context.Context, handle avatar.Handle) {
	eventTypes := avatar.EventTypes()
	disposers := make([]func(), 0, len(eventTypes))
	for _, eventType := range eventTypes {
		disposers = append(disposers, handle.On(eventType, func(event avatar.Event) {
			s.handleEvent(ctx, event)
		}))
	}

	s.mu.Lock()
	s.disposers = disposers
	s.mu.Unlock()
}

func (s *Session) handleEvent(ctx context.Context, event avatar.Event) {
	switch event.Type {
	case avatar.EventStreamReady:
		s.handleStreamReady(ctx)
	case avatar.EventStreamDisconnected:
		s.emit(streamDisconnectedEvent{})
		if err := s.Stop(context.Background()); err != nil {
			logger.Warn("teardown after vendor disconnect failed", "error", err)
		}
	case avatar.EventConnectionQualityChanged:
		s.emit(connectionQualityEvent{Quality: event.Quality})
	case avatar.EventUserStart:
		s.emit(userTalkingEvent{Talking: true})
		if s.avatarTalking.Load() {
			go func() {
				if err := s.Interrupt(ctx); err != nil {
					logger.Warn("failed to interrupt avatar", "error", err)
				}
			}()
		}
	case avatar.EventUserStop:
		s.emit(userTalkingEvent{Talking: false})
	case avatar.EventAvatarStartTalking:
		s.avatarTalking.Store(true)
		s.emit(avatarTalkingEvent{Talking: true})
	case avatar.EventAvatarStopTalking:
		s.avatarTalking.Store(false)
		s.emit(avatarTalkingEvent{Talking: false})
	case avatar.EventUserTalkingMessage:
		s.history.OnPartialTranscript(SenderClient, event.Message)
	case avatar.EventAvatarTalkingMessage:
		s.history.OnPartialTranscript(SenderAvatar, event.Message)
	case avatar.EventUserEndMessage:
		s.history.OnEndOfTurn()
		if s.onUserTurnEnd != nil {
			s.onUserTurnEnd()
		}
	case avatar.EventAvatarEndMessage:
		s.history.OnEndOfTurn()
	}
}

// handleStreamReady starts voice chat if it was requested. This is the
// earliest it may start: the microphone pipeline only becomes usable once
// the stream is ready.
func (s *Session) handleStreamReady(ctx context.Context) {
	s.mu.Lock()
	if s.streamReadyTimer != nil {
		s.streamReadyTimer.Stop()
		s.streamReadyTimer = nil
	}
	pending := s.voiceChatPending
	s.voiceChatPending = false
	handle := s.handle
	s.mu.Unlock()

	if pending && handle != nil {
		if err := handle.StartVoiceChat(ctx); err != nil {
			logger.Warn("failed to start voice chat", "error", err)
			s.emit(warningEvent{Message: "voice chat could not be started"})
		} else {
			s.voiceChatActive.Store(true)
			s.emit(voiceChatStartedEvent{})
		}
	}

	s.emit(streamReadyEvent{})
}

func (s *Session) onStreamReadyTimeout() {
	s.mu.Lock()
	pending := s.voiceChatPending
	s.voiceChatPending = false
	s.streamReadyTimer = nil
	s.mu.Unlock()

	if pending {
		s.emit(warningEvent{Message: "avatar stream did not become ready in time; voice chat was not started"})
	}
}

// rollback reverts a failed Start. The handle is kept so a later Start can
// retry without a fresh token.
func (s *Session) rollback(ctx context.Context) {
	if err := s.Stop(ctx); err != nil {
		logger.Warn("rollback after failed start reported an error", "error", err)
	}
}

// classifyStartError maps vendor session-creation failures onto the typed
// errors callers branch on.
func classifyStartError(err error) error {
	var dispatchErr *avatar.DispatchError
	if !errors.As(err, &dispatchErr) {
		return err
	}
	if strings.Contains(strings.ToLower(dispatchErr.Error()), "quota") {
		return &QuotaExhaustedError{}
	}
	if dispatchErr.StatusCode == http.StatusBadRequest {
		return &ConfigRejectedError{Err: err}
	}
	return err
}
