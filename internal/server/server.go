package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avosel/visage-core/core/avatar"
	"github.com/avosel/visage-core/core/avatar/heygen"
	"github.com/avosel/visage-core/core/llms"
)

// sessionRelay is the session-scoped slice of the vendor API the relay
// endpoints need.
type sessionRelay interface {
	Speak(ctx context.Context, text string, taskType avatar.TaskType) error
	Interrupt(ctx context.Context) error
	StopSession(ctx context.Context) error
}

// Server is the backend relay in front of the vendor API. It keeps the
// account API key server-side: browser clients receive short-lived session
// tokens and relay session commands through here.
type Server struct {
	heygen  *heygen.Client
	adapter llms.Adapter
	engine  *gin.Engine

	newSession func(sessionToken, sessionID string) sessionRelay

	// beaconTimeout bounds the asynchronous cleanup stop triggered by the
	// unload beacon endpoint.
	beaconTimeout time.Duration
}

type Option func(*Server)

// WithSessionFactory overrides how relayed session handles are built, mainly
// for tests.
func WithSessionFactory(factory func(sessionToken, sessionID string) sessionRelay) Option {
	return func(s *Server) { s.newSession = factory }
}

func New(client *heygen.Client, adapter llms.Adapter, opts ...Option) *Server {
	s := &Server{
		heygen:  client,
		adapter: adapter,
		newSession: func(sessionToken, sessionID string) sessionRelay {
			return heygen.ResumeSession(sessionToken, sessionID)
		},
		beaconTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := s.engine.Group("/api")
	api.POST("/token", s.createToken)
	api.GET("/avatars", s.listAvatars)
	api.GET("/quota", s.remainingQuota)
	api.POST("/task", s.relayTask)
	api.POST("/interrupt", s.relayInterrupt)
	api.POST("/beacon", s.cleanupBeacon)
	api.POST("/chat", s.chatStream)
}

// Handler exposes the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("relay server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
