// Package chunker splits cleaned document text into bounded, overlapping
// segments for embedding.
//
// The recursive chunker prefers coarse split points (paragraph breaks) and
// falls back through finer separators down to hard character cuts, so chunks
// stay close to the target size without cutting mid-sentence when a better
// boundary exists. Overlap carries trailing context from one chunk into the
// next so meaning is not lost at a boundary.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidConfig indicates invalid chunker configuration.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker splits text into an ordered sequence of chunks.
type Chunker interface {
	// Chunk splits text into ordered, non-empty segments. Text shorter than
	// the target size yields a single segment equal to the input. Empty
	// input yields no segments.
	Chunk(text string) []string
}

// DefaultSeparators is the split-point preference order, coarsest first.
// The empty string means a hard character cut and must come last.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker splits text on a prioritized separator list.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker creates a chunker targeting size characters per chunk
// with overlap characters carried between adjacent chunks.
//
// Returns ErrInvalidConfig when size is not positive or overlap is negative
// or not strictly smaller than size. Passing nil separators uses
// DefaultSeparators.
func NewRecursiveChunker(size, overlap int, separators []string) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{
		size:       size,
		overlap:    overlap,
		separators: separators,
	}, nil
}

// Size returns the target chunk size in characters.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the number of characters carried between chunks.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered, non-empty segments.
func (c *RecursiveChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len([]rune(text)) <= c.size {
		return []string{text}
	}

	raw := c.split(text, c.separators)

	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// split recursively breaks text using the first applicable separator, then
// merges the resulting pieces back into chunks of up to size characters.
func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, separator)
	}

	var chunks []string
	var pending []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if len([]rune(piece)) <= c.size {
			pending = append(pending, piece)
			continue
		}
		// Oversize piece: flush what fits, then recurse with finer separators.
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending, separator)...)
			pending = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, c.split(piece, finer)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending, separator)...)
	}
	return chunks
}

// merge joins pieces into chunks of up to size characters, seeding each new
// chunk with the last overlap characters of the previous one. The seed is
// shortened when a full overlap plus the next piece would exceed the target
// size, so merged chunks never overshoot it.
func (c *RecursiveChunker) merge(pieces []string, separator string) []string {
	sep := []rune(separator)
	var chunks []string
	var current []rune

	for _, piece := range pieces {
		runes := []rune(piece)

		next := len(current) + len(runes)
		if len(current) > 0 {
			next += len(sep)
		}

		if len(current) > 0 && next > c.size {
			chunks = append(chunks, string(current))

			seed := c.overlap
			if budget := c.size - len(sep) - len(runes); seed > budget {
				seed = budget
			}
			if seed > len(current) {
				seed = len(current)
			}
			if seed > 0 {
				current = append([]rune(nil), current[len(current)-seed:]...)
			} else {
				current = nil
			}
		}

		if len(current) > 0 && len(sep) > 0 {
			current = append(current, sep...)
		}
		current = append(current, runes...)
	}

	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}

var sentencePattern = regexp.MustCompile(`[.!?]+`)

// SentenceChunker groups whole sentences instead of targeting a character
// budget. Useful for short channel messages where splitting mid-sentence
// hurts retrieval more than uneven chunk sizes.
type SentenceChunker struct {
	maxSentences int
}

// NewSentenceChunker creates a chunker grouping up to maxSentences per chunk.
func NewSentenceChunker(maxSentences int) (*SentenceChunker, error) {
	if maxSentences <= 0 {
		return nil, fmt.Errorf("%w: max sentences must be positive, got %d", ErrInvalidConfig, maxSentences)
	}
	return &SentenceChunker{maxSentences: maxSentences}, nil
}

// Chunk splits text into sentence groups.
func (c *SentenceChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	parts := sentencePattern.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}

	var chunks []string
	for i := 0; i < len(sentences); i += c.maxSentences {
		end := i + c.maxSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], ". "))
	}
	return chunks
}

var (
	_ Chunker = (*RecursiveChunker)(nil)
	_ Chunker = (*SentenceChunker)(nil)
)
