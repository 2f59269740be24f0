// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/wikiqa/internal/chunker"
	"github.com/sigil-dev/wikiqa/internal/filter"
	"github.com/sigil-dev/wikiqa/internal/index"
	"github.com/sigil-dev/wikiqa/internal/prompt"
	"github.com/sigil-dev/wikiqa/internal/provider"
	"github.com/sigil-dev/wikiqa/internal/rag"
	"github.com/sigil-dev/wikiqa/internal/scraper"
	"github.com/stretchr/testify/require"
)

const testURL = "https://en.wikipedia.org/wiki/Paris"

type fakeFetcher struct {
	mu    sync.Mutex
	page  *scraper.Page
	pages map[string]*scraper.Page
	err   error
	calls int
	// block makes Fetch wait for ctx to expire.
	block bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*scraper.Page, error) {
	f.mu.Lock()
	f.calls++
	page, ok := f.pages[url]
	if !ok {
		page = f.page
	}
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil && !ok {
		return nil, err
	}
	p := *page
	p.URL = url
	return &p, nil
}

// fakeEmbedder returns a fixed vector per known text and a default otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Model() string  { return "fake-embedder" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(strings.Fields(t)))
	}
	return out, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedProvider answers every chat with reply and records the prompt.
type scriptedProvider struct {
	mu      sync.Mutex
	reply   string
	errText string
	prompts []string
	maxTok  int
}

func (p *scriptedProvider) Name() string                   { return "scripted" }
func (p *scriptedProvider) Available(context.Context) bool { return true }
func (p *scriptedProvider) Close() error                   { return nil }

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "scripted"}, nil
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Messages[0].Content)
	p.maxTok = req.Options.MaxTokens
	p.mu.Unlock()

	ch := make(chan provider.ChatEvent, 2)
	if p.errText != "" {
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: p.errText}
	} else {
		ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p.reply}
		ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

type fixture struct {
	fetcher    *fakeFetcher
	embedder   *fakeEmbedder
	provider   *scriptedProvider
	collection *index.Collection
	stages     map[rag.Flow][]rag.Stage
	svc        *rag.Service
}

type fixtureOpts struct {
	chunking   chunker.Config
	paragraphs []string
	vectors    map[string][]float32
	dim        int
	template   string
	filter     filter.Config
	reply      string
	topK       int

	scrapeTimeout time.Duration
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	if o.dim == 0 {
		o.dim = 2
	}
	if o.chunking.Size == 0 {
		o.chunking = chunker.DefaultConfig()
	}
	if o.template == "" {
		o.template = prompt.TemplateSentence
	}

	f := &fixture{
		fetcher:  &fakeFetcher{page: &scraper.Page{Title: "Paris", Paragraphs: o.paragraphs}},
		embedder: &fakeEmbedder{dim: o.dim, vectors: o.vectors},
		provider: &scriptedProvider{reply: o.reply},
		stages:   map[rag.Flow][]rag.Stage{},
	}

	ch, err := chunker.New(o.chunking)
	require.NoError(t, err)

	f.collection, err = index.Open(index.Config{Dimension: o.dim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.collection.Close() })

	asm, err := prompt.NewAssembler(prompt.WordTokenizer{}, prompt.DefaultMaxTokens)
	require.NoError(t, err)

	tmpl, err := prompt.ParseTemplate(o.template)
	require.NoError(t, err)

	flt, err := filter.New(o.filter)
	require.NoError(t, err)

	reg := provider.NewRegistry()
	reg.Register("scripted", f.provider)
	require.NoError(t, reg.SetDefault("scripted/test-model"))

	var mu sync.Mutex
	f.svc, err = rag.New(rag.Deps{
		Fetcher:    f.fetcher,
		Chunker:    ch,
		Embedder:   f.embedder,
		Collection: f.collection,
		Generator:  reg,
		Assembler:  asm,
		Prompt:     tmpl,
		Filter:     flt,
	}, rag.Options{
		TopK:          o.topK,
		ScrapeTimeout: o.scrapeTimeout,
		Hooks: &rag.Hooks{OnStage: func(flow rag.Flow, stage rag.Stage) {
			mu.Lock()
			f.stages[flow] = append(f.stages[flow], stage)
			mu.Unlock()
		}},
	})
	require.NoError(t, err)
	return f
}

// words returns n distinct whitespace-separated words.
func words(n int) string {
	var sb strings.Builder
	for i := range n {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("w")
		sb.WriteString(strings.Repeat("x", i%7))
	}
	return sb.String()
}

func singleProviderRouter(t *testing.T, p provider.Provider) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	reg.Register(p.Name(), p)
	require.NoError(t, reg.SetDefault(p.Name()+"/test-model"))
	return reg
}
