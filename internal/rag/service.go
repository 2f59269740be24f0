// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rag sequences the load and query pipelines: scrape, chunk, embed
// and index a page; then embed a question, retrieve context and generate an
// answer from it.
package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/wikiqa/internal/chunker"
	"github.com/sigil-dev/wikiqa/internal/embedding"
	"github.com/sigil-dev/wikiqa/internal/filter"
	"github.com/sigil-dev/wikiqa/internal/index"
	"github.com/sigil-dev/wikiqa/internal/prompt"
	"github.com/sigil-dev/wikiqa/internal/provider"
	"github.com/sigil-dev/wikiqa/internal/scraper"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	DefaultMaxNewTokens    = 100
	DefaultScrapeTimeout   = 30 * time.Second
	DefaultEmbedTimeout    = 60 * time.Second
	DefaultGenerateTimeout = 60 * time.Second

	// LoadedMessage is returned by a successful load.
	LoadedMessage = "Data loaded successfully."
)

// Deps are the collaborators a Service sequences. All are required.
type Deps struct {
	Fetcher    scraper.Fetcher
	Chunker    *chunker.Chunker
	Embedder   embedding.Embedder
	Collection *index.Collection
	Generator  provider.Router
	Assembler  *prompt.Assembler
	Prompt     *prompt.Template
	Filter     *filter.Filter
}

// Hooks observe pipeline progress. Used by tests.
type Hooks struct {
	OnStage func(flow Flow, stage Stage)
}

// Options tune a Service. Zero values take the defaults above.
type Options struct {
	TopK         int
	MaxNewTokens int
	// Temperature is left to the provider when nil.
	Temperature *float32
	// Model is the "provider/model" reference; empty means the router default.
	Model           string
	AllowedPrefixes []string

	ScrapeTimeout   time.Duration
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration

	Logger *slog.Logger
	Hooks  *Hooks
}

// LoadResult reports a completed load.
type LoadResult struct {
	RequestID string
	URL       string
	Title     string
	Chunks    int
	Message   string
}

// QueryResult reports a completed query.
type QueryResult struct {
	RequestID string
	Query     string
	Answer    string
	// Raw is the generator output before post-filtering.
	Raw     string
	Context string
	Sources []index.Result
}

// Status describes the loaded collection and the configured models.
type Status struct {
	Collection      string
	Documents       int
	Dimension       int
	EmbeddingModel  string
	GenerationModel string
	SourceURL       string
	SourceTitle     string
	LoadedAt        *time.Time
}

// Service runs load and query requests. It is safe for concurrent use; the
// collection serializes mutations against searches and mu ties each index
// swap to the source it came from.
type Service struct {
	fetcher    scraper.Fetcher
	chunker    *chunker.Chunker
	embedder   *embedding.Gateway
	collection *index.Collection
	generator  provider.Router
	assembler  *prompt.Assembler
	prompt     *prompt.Template
	filter     *filter.Filter
	opts       Options
	log        *slog.Logger

	mu       sync.RWMutex
	source   *LoadResult
	loadedAt time.Time
}

// New checks deps and fills option defaults. The embedder and collection
// dimensions must agree; a mismatch is a configuration error reported here
// rather than on the first request.
func New(deps Deps, opts Options) (*Service, error) {
	var missing []string
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Chunker == nil {
		missing = append(missing, "chunker")
	}
	if deps.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if deps.Collection == nil {
		missing = append(missing, "collection")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Assembler == nil {
		missing = append(missing, "assembler")
	}
	if deps.Prompt == nil {
		missing = append(missing, "prompt")
	}
	if deps.Filter == nil {
		missing = append(missing, "filter")
	}
	if len(missing) > 0 {
		return nil, wikierr.Errorf(wikierr.CodeConfigValidateInvalidValue,
			"rag service missing dependencies: %s", strings.Join(missing, ", "))
	}

	if deps.Embedder.Dimension() != deps.Collection.Dimension() {
		return nil, wikierr.New(wikierr.CodeIndexDimensionMismatch,
			"embedding dimension does not match index dimension",
			wikierr.FieldCollection(deps.Collection.Name()),
			wikierr.Field("embedding_model", deps.Embedder.Model()),
			wikierr.Field("embedding_dimension", deps.Embedder.Dimension()),
			wikierr.Field("index_dimension", deps.Collection.Dimension()),
		)
	}

	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = DefaultMaxNewTokens
	}
	if opts.ScrapeTimeout <= 0 {
		opts.ScrapeTimeout = DefaultScrapeTimeout
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = DefaultGenerateTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	gw, ok := deps.Embedder.(*embedding.Gateway)
	if !ok {
		gw = embedding.NewGateway(deps.Embedder)
	}

	return &Service{
		fetcher:    deps.Fetcher,
		chunker:    deps.Chunker,
		embedder:   gw,
		collection: deps.Collection,
		generator:  deps.Generator,
		assembler:  deps.Assembler,
		prompt:     deps.Prompt,
		filter:     deps.Filter,
		opts:       opts,
		log:        log,
	}, nil
}

// Load fetches rawURL, chunks and embeds its text and replaces the
// collection's contents with it. The collection is only touched in the
// indexing stage; a failure before that leaves the previous page in place.
func (s *Service) Load(ctx context.Context, rawURL string) (*LoadResult, error) {
	run := s.start(FlowLoad)
	rawURL = strings.TrimSpace(rawURL)

	if err := scraper.ValidateURL(rawURL, s.opts.AllowedPrefixes); err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageScraping, "url", rawURL)
	page, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageChunking, "paragraphs", len(page.Paragraphs))
	chunks, err := s.chunker.SplitDocument(page.Paragraphs)
	if err != nil {
		return nil, run.fail(err)
	}
	if len(chunks) == 0 {
		return nil, run.fail(wikierr.New(wikierr.CodeScrapeContentEmpty,
			"page has no paragraph text to index", wikierr.FieldURL(rawURL)))
	}

	run.enter(StageEmbedding, "chunks", len(chunks))
	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	vectors, err := s.embedder.Embed(embedCtx, chunker.Texts(chunks))
	cancel()
	if err != nil {
		return nil, run.fail(err)
	}

	res := &LoadResult{
		RequestID: run.id,
		URL:       rawURL,
		Title:     page.Title,
		Chunks:    len(chunks),
		Message:   LoadedMessage,
	}

	// The index swap and the source record change together, so the last
	// load to commit is the one both of them describe.
	run.enter(StageIndexing, "collection", s.collection.Name())
	s.mu.Lock()
	if err := s.collection.Replace(ctx, chunks, vectors); err != nil {
		s.mu.Unlock()
		return nil, run.fail(err)
	}
	s.source = res
	s.loadedAt = time.Now()
	s.mu.Unlock()

	run.enter(StageDone, "chunks", len(chunks), "title", page.Title)
	return res, nil
}

// Query answers q from the loaded page. It fails with a not-ready error,
// before any embedding or generation call, when nothing has been loaded.
func (s *Service) Query(ctx context.Context, q string) (*QueryResult, error) {
	run := s.start(FlowQuery)

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, run.fail(wikierr.New(wikierr.CodeRequestInvalidInput, "query must not be empty"))
	}

	n, err := s.collection.Len(ctx)
	if err != nil {
		return nil, run.fail(wikierr.With(err, wikierr.FieldCollection(s.collection.Name())))
	}
	if n == 0 {
		return nil, run.fail(wikierr.New(wikierr.CodeIndexNotReady,
			"No data loaded. Please load data first using /load.",
			wikierr.FieldCollection(s.collection.Name())))
	}

	run.enter(StageEmbeddingQuery)
	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	vec, err := s.embedder.EmbedQuery(embedCtx, q)
	cancel()
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageSearching, "top_k", s.opts.TopK)
	results, err := s.collection.Search(ctx, vec, s.opts.TopK)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageAssemblingContext, "results", len(results))
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	contextText := s.assembler.Assemble(texts)

	run.enter(StageGenerating, "model", s.opts.Model)
	promptText, err := s.prompt.Render(q, contextText)
	if err != nil {
		return nil, run.fail(err)
	}
	genCtx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	raw, err := provider.Generate(genCtx, s.generator, s.opts.Model, promptText, provider.GenerateOptions{
		MaxTokens:   s.opts.MaxNewTokens,
		Temperature: s.opts.Temperature,
	})
	cancel()
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StagePostFiltering, "mode", string(s.filter.Mode()))
	answer := s.filter.Apply(raw)
	if answer == s.filter.Fallback() {
		s.log.Warn("answer filtered to fallback", "request_id", run.id)
	}

	run.enter(StageDone)
	return &QueryResult{
		RequestID: run.id,
		Query:     q,
		Answer:    answer,
		Raw:       raw,
		Context:   contextText,
		Sources:   results,
	}, nil
}

// Status reports what is loaded and which models are configured.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.collection.Len(ctx)
	if err != nil {
		return nil, wikierr.With(err, wikierr.FieldCollection(s.collection.Name()))
	}

	st := &Status{
		Collection:      s.collection.Name(),
		Documents:       n,
		Dimension:       s.collection.Dimension(),
		EmbeddingModel:  s.embedder.Model(),
		GenerationModel: s.opts.Model,
	}
	if st.GenerationModel == "" {
		if d, ok := s.generator.(interface{ DefaultRef() string }); ok {
			st.GenerationModel = d.DefaultRef()
		}
	}

	if s.source != nil && n > 0 {
		st.SourceURL = s.source.URL
		st.SourceTitle = s.source.Title
		at := s.loadedAt
		st.LoadedAt = &at
	}

	return st, nil
}

func (s *Service) fetch(ctx context.Context, url string) (*scraper.Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.ScrapeTimeout)
	defer cancel()

	page, err := s.fetcher.Fetch(fetchCtx, url)
	if err == nil {
		return page, nil
	}
	if wikierr.CodeOf(err) != "" {
		return nil, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, wikierr.Reclassify(err, wikierr.CodeScrapeTimeout, "fetching page timed out", wikierr.FieldURL(url))
	}
	return nil, wikierr.Reclassify(err, wikierr.CodeScrapeUpstreamFailure, "fetching page", wikierr.FieldURL(url))
}

// tracker follows one request through its stages.
type tracker struct {
	svc   *Service
	flow  Flow
	id    string
	stage Stage
	began time.Time
}

func (s *Service) start(flow Flow) *tracker {
	r := &tracker{svc: s, flow: flow, id: uuid.NewString(), began: time.Now()}
	r.enter(StageIdle)
	return r
}

func (r *tracker) enter(stage Stage, attrs ...any) {
	r.stage = stage
	args := append([]any{"flow", r.flow, "stage", stage, "request_id", r.id}, attrs...)
	if stage == StageDone {
		args = append(args, "elapsed", time.Since(r.began))
		r.svc.log.Info("request complete", args...)
	} else {
		r.svc.log.Debug("stage transition", args...)
	}
	if h := r.svc.opts.Hooks; h != nil && h.OnStage != nil {
		h.OnStage(r.flow, stage)
	}
}

// fail moves the request to StageFailed and annotates err with where it
// happened.
func (r *tracker) fail(err error) error {
	failedIn := r.stage
	r.svc.log.Warn("request failed",
		"flow", r.flow,
		"stage", StageFailed,
		"failed_in", failedIn,
		"request_id", r.id,
		"code", wikierr.CodeOf(err),
		"error", err,
	)
	r.stage = StageFailed
	if h := r.svc.opts.Hooks; h != nil && h.OnStage != nil {
		h.OnStage(r.flow, StageFailed)
	}
	return wikierr.With(err, wikierr.FieldStage(string(failedIn)), wikierr.Field("request_id", r.id))
}
