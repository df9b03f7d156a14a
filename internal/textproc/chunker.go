package textproc

import (
	"fmt"
	"strings"
)

// Chunker splits extracted document text into overlapping fixed-size word
// windows. Deterministic: identical input yields identical output.
type Chunker struct {
	size    int // window size in words
	overlap int // words shared between consecutive windows
}

// NewChunker validates the window configuration up front so a bad overlap
// fails at construction, not halfway through a job.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: window size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be in [0, %d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text on whitespace and emits consecutive windows of size
// words, advancing by size-overlap each step. The final window may be short.
// Empty or whitespace-only text yields no chunks; the caller decides whether
// that is a failure.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end >= len(words) {
			// Final window: whatever remains, possibly short. Stopping here
			// avoids a trailing window made entirely of overlap.
			chunks = append(chunks, strings.Join(words[start:], " "))
			break
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
