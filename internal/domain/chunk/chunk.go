// Package chunk splits document text into overlapping retrieval passages.
package chunk

import (
	"fmt"
	"unicode"

	"github.com/nexa-labs/ragd/internal/domain"
)

// Default splitter parameters, in words.
const (
	DefaultSize    = 400
	DefaultOverlap = 80
)

// Chunk is a bounded text span of a document, the unit of retrieval.
// Never mutated after creation; removal cascades with the parent document.
type Chunk struct {
	documentID string
	ordinal    int
	text       string
	start      int // rune offset of the span start in the source text
	end        int // rune offset one past the span end
}

// ID returns the chunk identifier, derived from parent ID and ordinal.
func (c *Chunk) ID() string { return fmt.Sprintf("%s:%d", c.documentID, c.ordinal) }

// DocumentID returns the parent document identifier.
func (c *Chunk) DocumentID() string { return c.documentID }

// Ordinal returns the chunk position within the document.
func (c *Chunk) Ordinal() int { return c.ordinal }

// Text returns the chunk text span.
func (c *Chunk) Text() string { return c.text }

// Start returns the rune offset of the span start.
func (c *Chunk) Start() int { return c.start }

// End returns the rune offset one past the span end.
func (c *Chunk) End() int { return c.end }

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(documentID string, ordinal int, text string, start, end int) Chunk {
	return Chunk{documentID: documentID, ordinal: ordinal, text: text, start: start, end: end}
}

// Splitter produces overlapping word-window chunks with deterministic boundaries.
// The same input always yields the same spans, which keeps re-ingestion
// detection via content checksum sound.
type Splitter struct {
	size    int // window size in words
	overlap int // words shared between consecutive windows
}

// NewSplitter validates the chunking parameters.
func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("%w: chunk size must be positive, got %d",
			domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("%w: overlap must be in [0, size), got size=%d overlap=%d",
			domain.ErrInvalidConfig, size, overlap)
	}
	return Splitter{size: size, overlap: overlap}, nil
}

// Size returns the window size in words.
func (s Splitter) Size() int { return s.size }

// Overlap returns the overlap in words.
func (s Splitter) Overlap() int { return s.overlap }

// Split covers the whole text with overlapping chunks. The final chunk may be
// shorter than the window. Whitespace-only input yields no chunks.
func (s Splitter) Split(documentID, text string) []Chunk {
	words := scanWords(text)
	if len(words) == 0 {
		return nil
	}

	runes := []rune(text)

	var chunks []Chunk
	ordinal := 0
	start := 0
	for start < len(words) {
		end := start + s.size
		if end > len(words) {
			end = len(words)
		}

		first, last := words[start], words[end-1]
		chunks = append(chunks, Chunk{
			documentID: documentID,
			ordinal:    ordinal,
			text:       string(runes[first.start:last.end]),
			start:      first.start,
			end:        last.end,
		})
		ordinal++

		if end == len(words) {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// wordSpan is a single whitespace-delimited token with its rune offsets.
type wordSpan struct {
	start, end int
}

func scanWords(text string) []wordSpan {
	var spans []wordSpan
	inWord := false
	start := 0
	pos := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				spans = append(spans, wordSpan{start: start, end: pos})
				inWord = false
			}
		} else if !inWord {
			start = pos
			inWord = true
		}
		pos++
	}
	if inWord {
		spans = append(spans, wordSpan{start: start, end: pos})
	}
	return spans
}
