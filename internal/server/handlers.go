package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avosel/visage-core/core/avatar"
)

type apiError struct {
	Error string `json:"error"`
}

// writeError maps vendor dispatch failures onto their upstream status and
// everything else onto 502.
func writeError(c *gin.Context, err error) {
	status := http.StatusBadGateway

	var dispatchErr *avatar.DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr.StatusCode != 0 {
		status = dispatchErr.StatusCode
	}

	logger.Warn("request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	c.JSON(status, apiError{Error: err.Error()})
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) createToken(c *gin.Context) {
	token, err := s.heygen.CreateSessionToken(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) listAvatars(c *gin.Context) {
	avatars, err := s.heygen.ListAvatars(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatars": avatars})
}

type quotaResponse struct {
	Credits int `json:"credits"`
	Minutes int `json:"minutes"`
}

func (s *Server) remainingQuota(c *gin.Context) {
	quota, err := s.heygen.RemainingQuota(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quotaResponse{Credits: quota.Credits(), Minutes: quota.Minutes()})
}

type sessionRequest struct {
	SessionID    string `json:"session_id" binding:"required"`
	SessionToken string `json:"session_token" binding:"required"`
}

type taskRequest struct {
	sessionRequest
	Text     string `json:"text" binding:"required"`
	TaskType string `json:"task_type"`
}

func (s *Server) relayTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body: " + err.Error()})
		return
	}

	taskType := avatar.TaskType(req.TaskType)
	if taskType == "" {
		taskType = avatar.TaskRepeat
	}

	session := s.newSession(req.SessionToken, req.SessionID)
	if err := session.Speak(c.Request.Context(), req.Text, taskType); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) relayInterrupt(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body: " + err.Error()})
		return
	}

	session := s.newSession(req.SessionToken, req.SessionID)
	if err := session.Interrupt(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// cleanupBeacon accepts the page-unload cleanup notification. The response
// never waits for the vendor call: the sender is going away and only needs
// the request accepted.
func (s *Server) cleanupBeacon(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body: " + err.Error()})
		return
	}

	session := s.newSession(req.SessionToken, req.SessionID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.beaconTimeout)
		defer cancel()
		if err := session.StopSession(ctx); err != nil {
			logger.Warn("beacon cleanup failed", "session_id", req.SessionID, "error", err)
		}
	}()

	c.Status(http.StatusAccepted)
}
