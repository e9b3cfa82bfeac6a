package orchestration

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/avosel/visage-core/core/avatar"
)

// Speaker dispatches one unit of text to the avatar's speech task.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

const (
	// dispatchAttempts bounds per-chunk retries; one lost chunk must never
	// abort the whole response.
	dispatchAttempts   = 2
	dispatchRetryDelay = 500 * time.Millisecond
	// interChunkDelay paces dispatches. The downstream speech engine queues
	// audio and can fall behind or dedupe if chunks arrive faster than they
	// render.
	interChunkDelay = 1200 * time.Millisecond
)

// relayConfig carries the tunable knobs of a relay; zero values select the
// defaults above.
type relayConfig struct {
	maxChunkLength int
	pacing         time.Duration
	retryDelay     time.Duration
	sleep          func(context.Context, time.Duration) error
}

// relay transforms an LLM token stream into paced, sentence-shaped speech
// chunks and forwards them in strict production order. Push blocks while
// pacing, which is what applies backpressure to stream consumption.
type relay struct {
	speaker Speaker
	chunker *sentenceChunker

	accumulated strings.Builder
	dispatched  int

	pacing     time.Duration
	retryDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

func newRelay(speaker Speaker, config relayConfig) *relay {
	r := &relay{
		speaker:    speaker,
		chunker:    newSentenceChunker(config.maxChunkLength),
		pacing:     config.pacing,
		retryDelay: config.retryDelay,
		sleep:      config.sleep,
	}
	if r.pacing == 0 {
		r.pacing = interChunkDelay
	}
	if r.retryDelay == 0 {
		r.retryDelay = dispatchRetryDelay
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	return r
}

// Push consumes one content fragment. Any chunks that became ready are
// dispatched before Push returns; only context errors propagate.
func (r *relay) Push(ctx context.Context, fragment string) error {
	r.accumulated.WriteString(fragment)

	for _, chunk := range r.chunker.Push(fragment) {
		if err := r.dispatch(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Finish flushes the remaining buffer as a final stream-end chunk. No pacing
// delay trails the final dispatch.
func (r *relay) Finish(ctx context.Context) error {
	if chunk := r.chunker.Flush(); chunk != nil {
		return r.dispatch(ctx, *chunk)
	}
	return nil
}

// Text returns the full accumulated response seen so far.
func (r *relay) Text() string {
	return r.accumulated.String()
}

func (r *relay) dispatch(ctx context.Context, chunk SpeechChunk) error {
	ctx, span := tracer.Start(ctx, "dispatch speech chunk")
	defer span.End()
	span.SetAttributes(
		attribute.String("chunk.reason", string(chunk.Reason)),
		attribute.Int("chunk.length", len(chunk.Text)),
	)

	if r.dispatched > 0 {
		if err := r.sleep(ctx, r.pacing); err != nil {
			return err
		}
	}
	r.dispatched++

	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		err := r.speaker.Speak(ctx, chunk.Text)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		span.RecordError(err)
		if !avatar.IsTemporary(err) {
			logger.Warn("dropping speech chunk", "reason", chunk.Reason, "error", err)
			return nil
		}
		if attempt == dispatchAttempts {
			logger.Warn("dropping speech chunk after retries", "reason", chunk.Reason, "attempts", attempt, "error", err)
			return nil
		}
		if err := r.sleep(ctx, r.retryDelay); err != nil {
			return err
		}
	}
	return nil
}

// sleepContext sleeps for the given duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
