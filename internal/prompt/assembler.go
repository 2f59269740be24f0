// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package prompt turns retrieved chunks into a bounded context and renders
// the generation prompt around it.
package prompt

import (
	"strings"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const DefaultMaxTokens = 512

// Assembler concatenates retrieved chunk texts and caps the result at
// MaxTokens as measured by its Tokenizer.
type Assembler struct {
	tokenizer Tokenizer
	maxTokens int
}

func NewAssembler(tokenizer Tokenizer, maxTokens int) (*Assembler, error) {
	if tokenizer == nil {
		return nil, wikierr.New(wikierr.CodeContextConfigInvalid, "tokenizer is required")
	}
	if maxTokens <= 0 {
		return nil, wikierr.Errorf(wikierr.CodeContextConfigInvalid,
			"context max tokens must be positive, got %d", maxTokens)
	}
	return &Assembler{tokenizer: tokenizer, maxTokens: maxTokens}, nil
}

func (a *Assembler) MaxTokens() int { return a.maxTokens }

func (a *Assembler) Tokenizer() Tokenizer { return a.tokenizer }

// Assemble joins texts in order with a single space. A join that already
// fits the budget is returned unchanged.
func (a *Assembler) Assemble(texts []string) string {
	joined := strings.Join(texts, " ")
	if a.tokenizer.Count(joined) <= a.maxTokens {
		return joined
	}
	return a.tokenizer.Truncate(joined, a.maxTokens)
}
