package llms

import "context"

// Stream is a lazy, finite, non-restartable sequence of completion chunks.
//
// Chunks terminates after a chunk with Done set has been yielded or after an
// error is yielded. Errors may arrive mid-stream without a preceding Done.
type Stream interface {
	Chunks(context.Context) func(func(Chunk, error) bool)
}

// Chunk is a single increment of a streamed completion.
type Chunk struct {
	// Content is the text fragment carried by this chunk. May be empty on
	// metadata-only chunks.
	Content string
	// Done marks the end of the stream.
	Done bool
}
