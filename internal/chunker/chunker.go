// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chunker splits extracted page text into overlapping word windows,
// the unit of retrieval for the index.
package chunker

import (
	"strings"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// Strategy selects how a document is cut into chunks.
type Strategy string

const (
	// StrategyWindow cuts fixed-size overlapping word windows.
	StrategyWindow Strategy = "window"
	// StrategyParagraph keeps each non-empty paragraph as one chunk.
	StrategyParagraph Strategy = "paragraph"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Config controls chunk geometry. Size and Overlap are measured in words.
type Config struct {
	Size     int
	Overlap  int
	Strategy Strategy
}

// DefaultConfig returns the 500/50 window configuration.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap, Strategy: StrategyWindow}
}

// Validate rejects geometries that cannot make forward progress.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return wikierr.Errorf(wikierr.CodeChunkerConfigInvalid,
			"chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return wikierr.Errorf(wikierr.CodeChunkerConfigInvalid,
			"chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return wikierr.Errorf(wikierr.CodeChunkerConfigInvalid,
			"chunk overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	switch c.Strategy {
	case "", StrategyWindow, StrategyParagraph:
	default:
		return wikierr.Errorf(wikierr.CodeChunkerConfigInvalid,
			"unknown chunking strategy %q", c.Strategy)
	}
	return nil
}

// Chunk is an immutable slice of a document's words.
type Chunk struct {
	Text string
	// SourceOffset is the index of the chunk's first word in the document.
	SourceOffset int
	// Sequence is the chunk's position among the document's chunks.
	Sequence int
}

// Chunker cuts documents according to a validated Config.
type Chunker struct {
	cfg Config
}

// New validates cfg and returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyWindow
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split cuts text into overlapping windows of c.Size words. Window i starts at
// word i*(Size-Overlap); the last window may be short. Splitting stops as
// soon as a window reaches the end of the text, so no trailing chunk consists
// only of overlap.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []Chunk{}, nil
	}

	step := c.cfg.Size - c.cfg.Overlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.cfg.Size, len(words))
		chunks = append(chunks, Chunk{
			Text:         strings.Join(words[start:end], " "),
			SourceOffset: start,
			Sequence:     len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// SplitParagraphs emits one chunk per non-empty paragraph. Offsets count
// words in the paragraphs joined by a single space.
func (c *Chunker) SplitParagraphs(paragraphs []string) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(paragraphs))
	offset := 0
	for _, p := range paragraphs {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:         strings.Join(words, " "),
			SourceOffset: offset,
			Sequence:     len(chunks),
		})
		offset += len(words)
	}
	return chunks, nil
}

// SplitDocument dispatches on the configured strategy.
func (c *Chunker) SplitDocument(paragraphs []string) ([]Chunk, error) {
	if c.cfg.Strategy == StrategyParagraph {
		return c.SplitParagraphs(paragraphs)
	}
	return c.Split(strings.Join(paragraphs, " "))
}

// Texts returns the chunk texts in sequence order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}
