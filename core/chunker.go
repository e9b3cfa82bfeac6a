package orchestration

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkReason records why a speech chunk was cut where it was.
type ChunkReason string

const (
	ReasonSentenceBoundary ChunkReason = "sentence_boundary"
	ReasonMaxLength        ChunkReason = "max_length"
	ReasonStreamEnd        ChunkReason = "stream_end"
)

// SpeechChunk is one unit of text dispatched to the avatar's speech task.
type SpeechChunk struct {
	Text   string
	Reason ChunkReason
}

// defaultMaxChunkLength bounds worst-case latency on boundary-free text such
// as code blocks.
const defaultMaxChunkLength = 500

// sentenceChunker accumulates streamed text and cuts it into speakable
// chunks at sentence boundaries, with a forced flush once the buffer outgrows
// the maximum length.
type sentenceChunker struct {
	buffer    string
	maxLength int
}

func newSentenceChunker(maxLength int) *sentenceChunker {
	if maxLength <= 0 {
		maxLength = defaultMaxChunkLength
	}
	return &sentenceChunker{maxLength: maxLength}
}

// Push appends a fragment to the buffer and returns every chunk that became
// ready, in production order.
func (c *sentenceChunker) Push(fragment string) []SpeechChunk {
	c.buffer += fragment

	var chunks []SpeechChunk
	for {
		if p := sentenceBoundary(c.buffer); p >= 0 {
			candidate := strings.TrimSpace(c.buffer[:p])
			c.buffer = c.buffer[p:]
			if candidate != "" {
				chunks = append(chunks, SpeechChunk{Text: candidate, Reason: ReasonSentenceBoundary})
			}
			continue
		}

		if len(c.buffer) > c.maxLength {
			candidate := strings.TrimSpace(c.buffer)
			c.buffer = ""
			if candidate != "" {
				chunks = append(chunks, SpeechChunk{Text: candidate, Reason: ReasonMaxLength})
			}
			continue
		}

		return chunks
	}
}

// Flush drains whatever is left in the buffer as a final stream-end chunk.
// Returns nil when the remainder trims to nothing.
func (c *sentenceChunker) Flush() *SpeechChunk {
	candidate := strings.TrimSpace(c.buffer)
	c.buffer = ""
	if candidate == "" {
		return nil
	}
	return &SpeechChunk{Text: candidate, Reason: ReasonStreamEnd}
}

// sentenceBoundary returns the index just past the first sentence-terminal
// punctuation that is followed by whitespace or the end of the buffer, or -1
// when no boundary exists.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
		default:
			continue
		}

		if i+1 == len(s) {
			return i + 1
		}
		if r, _ := utf8.DecodeRuneInString(s[i+1:]); unicode.IsSpace(r) {
			return i + 1
		}
	}
	return -1
}
