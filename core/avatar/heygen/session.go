package heygen

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/avosel/visage-core/core/avatar"
)

var _ avatar.Handle = (*Session)(nil)

// Session drives one live streaming-avatar session. REST calls are
// authenticated with the bearer session token; events arrive over the
// realtime websocket opened at session creation.
type Session struct {
	token      string
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string

	stream    *eventStream
	closeOnce sync.Once
}

type SessionOption func(*Session)

// WithSessionBaseURL overrides the API host, mainly for tests.
func WithSessionBaseURL(url string) SessionOption {
	return func(s *Session) { s.baseURL = url }
}

func WithSessionHTTPClient(httpClient *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = httpClient }
}

// NewSession builds a session handle from a bearer session token issued by
// Client.CreateSessionToken.
func NewSession(sessionToken string, opts ...SessionOption) *Session {
	s := &Session{
		token:   sessionToken,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		stream: newEventStream(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResumeSession builds a handle for a session that already exists, e.g. one
// created by a browser client that relays task calls through a backend. The
// handle can Speak, Interrupt and StopSession; it carries no event stream.
func ResumeSession(sessionToken, sessionID string, opts ...SessionOption) *Session {
	s := NewSession(sessionToken, opts...)
	s.sessionID = sessionID
	return s
}

func (s *Session) CreateSession(ctx context.Context, payload map[string]any) (*avatar.SessionInfo, error) {
	ctx, span := tracer.Start(ctx, "create streaming session")
	defer span.End()

	var response struct {
		Data struct {
			SessionID        string `json:"session_id"`
			URL              string `json:"url"`
			AccessToken      string `json:"access_token"`
			RealtimeEndpoint string `json:"realtime_endpoint"`
		} `json:"data"`
	}
	if err := s.call(ctx, http.MethodPost, "/v1/streaming.new", payload, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if response.Data.SessionID == "" {
		err := &avatar.DispatchError{Op: "streaming.new", Err: fmt.Errorf("response carried no session id")}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("response.session_id", response.Data.SessionID))

	s.mu.Lock()
	s.sessionID = response.Data.SessionID
	s.mu.Unlock()

	if response.Data.RealtimeEndpoint != "" {
		if err := s.stream.connect(ctx, response.Data.RealtimeEndpoint); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	return &avatar.SessionInfo{
		SessionID:    response.Data.SessionID,
		SessionToken: s.token,
		Media: &avatar.MediaStream{
			URL:         response.Data.URL,
			AccessToken: response.Data.AccessToken,
		},
	}, nil
}

func (s *Session) StartSession(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start streaming session")
	defer span.End()

	if err := s.call(ctx, http.MethodPost, "/v1/streaming.start", s.sessionPayload(), nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Session) Speak(ctx context.Context, text string, taskType avatar.TaskType) error {
	ctx, span := tracer.Start(ctx, "send speech task")
	defer span.End()
	span.SetAttributes(
		attribute.Int("request.text_length", len(text)),
		attribute.String("request.task_type", string(taskType)),
	)

	payload := s.sessionPayload()
	payload["text"] = text
	payload["task_type"] = string(taskType)

	if err := s.call(ctx, http.MethodPost, "/v1/streaming.task", payload, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Session) StartVoiceChat(_ context.Context) error {
	return s.stream.send(map[string]any{"type": "start_voice_chat"})
}

func (s *Session) StopVoiceChat(_ context.Context) error {
	return s.stream.send(map[string]any{"type": "stop_voice_chat"})
}

func (s *Session) Interrupt(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "interrupt avatar")
	defer span.End()

	if err := s.call(ctx, http.MethodPost, "/v1/streaming.interrupt", s.sessionPayload(), nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Session) StopSession(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stop streaming session")
	defer span.End()

	var stopErr error
	s.closeOnce.Do(func() {
		defer s.stream.close()
		if err := s.call(ctx, http.MethodPost, "/v1/streaming.stop", s.sessionPayload(), nil); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			stopErr = err
		}
	})
	return stopErr
}

func (s *Session) On(eventType avatar.EventType, handler func(avatar.Event)) func() {
	return s.stream.on(eventType, handler)
}

func (s *Session) sessionPayload() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"session_id": s.sessionID}
}

func (s *Session) call(ctx context.Context, method, path string, payload, out any) error {
	return doCall(ctx, s.httpClient, method, s.baseURL+path, payload, out, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+s.token)
	})
}
