package heygen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avosel/visage-core/core/avatar"
)

// eventStream owns the realtime websocket of one session plus the listener
// table. Teardown symmetry relies on the table: On hands out a disposer and
// dropping a listener never touches any other registration.
type eventStream struct {
	listenersMu sync.RWMutex
	listeners   map[avatar.EventType]map[int]func(avatar.Event)
	nextID      int

	conn    *websocket.Conn
	writeMu sync.Mutex

	closed atomic.Bool
}

func newEventStream() *eventStream {
	return &eventStream{
		listeners: map[avatar.EventType]map[int]func(avatar.Event){},
	}
}

func (s *eventStream) on(eventType avatar.EventType, handler func(avatar.Event)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++

	handlers := s.listeners[eventType]
	if handlers == nil {
		handlers = map[int]func(avatar.Event){}
		s.listeners[eventType] = handlers
	}
	handlers[id] = handler

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners[eventType], id)
	}
}

func (s *eventStream) emit(event avatar.Event) {
	s.listenersMu.RLock()
	handlers := make([]func(avatar.Event), 0, len(s.listeners[event.Type]))
	for _, handler := range s.listeners[event.Type] {
		handlers = append(handlers, handler)
	}
	s.listenersMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (s *eventStream) connect(ctx context.Context, endpoint string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to realtime endpoint: %w", err)
	}

	s.conn = conn
	go s.readLoop()
	return nil
}

// wireEvent is the vendor's realtime message envelope.
type wireEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
	Quality string `json:"quality"`
}

func (s *eventStream) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				logger.Warn("realtime stream read failed", "error", err)
				// The vendor went away without a stream_disconnected event;
				// synthesize one so the session machine still tears down.
				s.emit(avatar.Event{Type: avatar.EventStreamDisconnected, ReceivedAt: time.Now()})
			}
			return
		}

		var wire wireEvent
		if err := json.Unmarshal(payload, &wire); err != nil {
			logger.Warn("discarding malformed realtime event", "error", err)
			continue
		}
		if wire.Type == "" {
			continue
		}

		s.emit(avatar.Event{
			Type:       avatar.EventType(wire.Type),
			Message:    wire.Message,
			TaskID:     wire.TaskID,
			Quality:    wire.Quality,
			ReceivedAt: time.Now(),
		})
	}
}

func (s *eventStream) send(command any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("realtime stream is not connected")
	}
	if err := s.conn.WriteJSON(command); err != nil {
		return fmt.Errorf("failed to send realtime command: %w", err)
	}
	return nil
}

func (s *eventStream) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}
}
