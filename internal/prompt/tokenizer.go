// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prompt

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"google.golang.org/genai"
	"google.golang.org/genai/tokenizer"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	TokenizerAuto     = "auto"
	TokenizerWords    = "words"
	TokenizerTiktoken = "tiktoken"
	TokenizerGemini   = "gemini"

	defaultEncoding = tiktoken.MODEL_CL100K_BASE
)

// BPE ranks ship inside the binary so tiktoken never reaches the network.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Tokenizer measures and cuts text in the units the context budget is
// expressed in.
type Tokenizer interface {
	Name() string
	Count(text string) int
	// Truncate returns text rebuilt from its first max tokens.
	Truncate(text string, max int) string
}

// NewTokenizer returns the named tokenizer for the generation model ref
// ("provider/name"). auto resolves the model's own tokenizer.
func NewTokenizer(name, model string) (Tokenizer, error) {
	switch name {
	case "", TokenizerAuto:
		tok, err := ForModel(model)
		if err == nil {
			return tok, nil
		}
		fallback, ferr := NewTiktoken("")
		if ferr != nil {
			return nil, err
		}
		slog.Warn("model tokenizer unavailable, approximating context budget",
			"model", model, "tokenizer", fallback.Name(), "error", err)
		return fallback, nil
	case TokenizerWords:
		return WordTokenizer{}, nil
	case TokenizerTiktoken:
		return NewTiktoken(model)
	case TokenizerGemini:
		return NewGemini(model)
	default:
		return nil, wikierr.Errorf(wikierr.CodeContextConfigInvalid, "unknown tokenizer %q", name)
	}
}

// ForModel returns the tokenizer the generation model itself uses. Gemini
// models get their SentencePiece vocabulary. Everything else is BPE; Claude
// has no public tokenizer and is measured with cl100k_base.
func ForModel(model string) (Tokenizer, error) {
	provider, name := splitModel(model)
	if provider == "google" || strings.HasPrefix(name, "gemini") {
		return NewGemini(model)
	}
	return NewTiktoken(model)
}

func splitModel(model string) (provider, name string) {
	provider, name, ok := strings.Cut(model, "/")
	if !ok {
		return "", model
	}
	// Hub-style names ("openai-community/gpt2") keep only the last segment.
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return provider, name
}

// WordTokenizer segments on whitespace, the same way the chunker does.
type WordTokenizer struct{}

func (WordTokenizer) Name() string { return TokenizerWords }

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (WordTokenizer) Truncate(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ")
}

// o200k_base models newer than the tiktoken-go model table.
var o200kPrefixes = []string{"gpt-4.1", "gpt-4.5", "gpt-5", "o1", "o3", "o4"}

// EncodingFor names the BPE encoding of a model. GPT-2 and its distilled
// variants use the r50k_base vocabulary. Unknown models get cl100k_base.
func EncodingFor(model string) string {
	_, name := splitModel(model)
	name = strings.ToLower(name)

	switch {
	case name == "":
		return defaultEncoding
	case strings.HasPrefix(name, "gpt2"), strings.HasPrefix(name, "distilgpt2"):
		return tiktoken.MODEL_R50K_BASE
	}
	if enc, ok := tiktoken.MODEL_TO_ENCODING[name]; ok {
		return enc
	}
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(name, prefix) {
			return enc
		}
	}
	for _, prefix := range o200kPrefixes {
		if strings.HasPrefix(name, prefix) {
			return tiktoken.MODEL_O200K_BASE
		}
	}
	return defaultEncoding
}

// Tiktoken counts BPE tokens.
type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

func NewTiktoken(model string) (*Tiktoken, error) {
	encoding := EncodingFor(model)
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeContextTokenizerFailure, "loading tiktoken encoding",
			wikierr.Field("encoding", encoding), wikierr.Field("model", model))
	}
	return &Tiktoken{encoding: encoding, enc: enc}, nil
}

func (t *Tiktoken) Name() string { return TokenizerTiktoken + ":" + t.encoding }

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate decodes the first max tokens. Cutting inside a multi-byte rune can
// decode into more tokens than it came from, so the prefix shrinks until it
// re-encodes within budget.
func (t *Tiktoken) Truncate(text string, max int) string {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text
	}
	for n := max; n > 0; n-- {
		out := t.enc.Decode(tokens[:n])
		if t.Count(out) <= max {
			return out
		}
	}
	return ""
}

// Gemini counts with the SentencePiece model Gemini itself tokenizes with.
// The vocabulary is fetched once and cached under the OS temp dir.
type Gemini struct {
	model string
	tok   *tokenizer.LocalTokenizer
}

func NewGemini(model string) (*Gemini, error) {
	_, name := splitModel(model)
	tok, err := tokenizer.NewLocalTokenizer(name)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeContextTokenizerFailure, "loading gemini tokenizer",
			wikierr.Field("model", name))
	}
	return &Gemini{model: name, tok: tok}, nil
}

func (g *Gemini) Name() string { return TokenizerGemini + ":" + g.model }

// Count falls back to the byte length, which bounds the piece count from
// above, if the tokenizer rejects the input.
func (g *Gemini) Count(text string) int {
	if text == "" {
		return 0
	}
	res, err := g.tok.CountTokens(genai.Text(text), nil)
	if err != nil {
		return len(text)
	}
	return int(res.TotalTokens)
}

func (g *Gemini) Truncate(text string, max int) string {
	pieces, err := g.pieces(text)
	if err != nil {
		return strings.ToValidUTF8(text[:min(len(text), max)], "")
	}
	if len(pieces) <= max {
		return text
	}
	for n := max; n > 0; n-- {
		out := decodePieces(pieces[:n])
		if !strings.HasPrefix(text, " ") {
			out = strings.TrimPrefix(out, " ")
		}
		if g.Count(out) <= max {
			return out
		}
	}
	return ""
}

func (g *Gemini) pieces(text string) ([][]byte, error) {
	res, err := g.tok.ComputeTokens(genai.Text(text))
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, info := range res.TokensInfo {
		out = append(out, info.Tokens...)
	}
	return out, nil
}

// decodePieces rebuilds text from SentencePiece pieces: U+2581 marks a space
// and <0xNN> is a byte-fallback piece. A rune split at the cut is dropped.
func decodePieces(pieces [][]byte) string {
	var buf bytes.Buffer
	for _, p := range pieces {
		if b, ok := byteFallback(p); ok {
			buf.WriteByte(b)
			continue
		}
		buf.Write(bytes.ReplaceAll(p, []byte("▁"), []byte(" ")))
	}
	return strings.ToValidUTF8(buf.String(), "")
}

func byteFallback(p []byte) (byte, bool) {
	if len(p) != 6 || !bytes.HasPrefix(p, []byte("<0x")) || p[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(p[3:5]), 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
