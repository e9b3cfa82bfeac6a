package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/avosel/visage-core/core/llms"
)

type chatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages" binding:"required,min=1"`
	Model    string        `json:"model"`
}

// chatStream runs one completion and streams the tokens back as server-sent
// events: "message" events carry content, one "done" event closes the stream,
// mid-stream failures become an "error" event since the status line is
// already committed.
func (s *Server) chatStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "stream chat completion")
	defer span.End()

	if s.adapter == nil {
		c.JSON(http.StatusServiceUnavailable, apiError{Error: "no language model configured"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Error: "invalid request body: " + err.Error()})
		return
	}

	messages := make([]llms.Message, 0, len(req.Messages))
	for _, message := range req.Messages {
		role := llms.Role(message.Role)
		switch role {
		case llms.RoleSystem, llms.RoleUser, llms.RoleAssistant:
		default:
			c.JSON(http.StatusBadRequest, apiError{Error: fmt.Sprintf("unknown role %q", message.Role)})
			return
		}
		messages = append(messages, llms.Message{Role: role, Content: message.Content})
	}
	span.SetAttributes(attribute.Int("request.message_count", len(messages)))

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	stream := s.adapter.PromptWithStream(ctx, llms.Request{Messages: messages, Model: req.Model})
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.SSEvent("error", err.Error())
			c.Writer.Flush()
			return
		}
		if chunk.Content != "" {
			c.SSEvent("message", chunk.Content)
			c.Writer.Flush()
		}
		if chunk.Done {
			break
		}
	}

	c.SSEvent("done", "")
	c.Writer.Flush()
}
