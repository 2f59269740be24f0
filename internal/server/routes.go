// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
	"github.com/sigil-dev/wikiqa/pkg/health"
)

// WelcomeMessage is the body of GET /.
const WelcomeMessage = "Welcome to the Wikipedia QA System API"

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service information",
		Tags:        []string{"system"},
	}, s.handleRoot)

	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "load",
		Method:      http.MethodPost,
		Path:        "/load",
		Summary:     "Scrape, chunk, embed and index a Wikipedia article",
		Description: "Replaces any previously loaded article.",
		Tags:        []string{"qa"},
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusGatewayTimeout},
	}, s.handleLoad)

	huma.Register(s.api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/query",
		Summary:     "Answer a question from the loaded article",
		Tags:        []string{"qa"},
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusGatewayTimeout},
	}, s.handleQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Index and provider status",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

type messageOutput struct {
	Body struct {
		Message string `json:"message" example:"Welcome to the Wikipedia QA System API"`
	}
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

type loadInput struct {
	Body struct {
		URL string `json:"url" example:"https://en.wikipedia.org/wiki/Eiffel_Tower" doc:"Article URL"`
	}
}

type loadOutput struct {
	Body struct {
		Message        string `json:"message" example:"Data loaded successfully."`
		NumberOfChunks int    `json:"number_of_chunks" doc:"Chunks indexed"`
		Title          string `json:"title,omitempty" doc:"Article title"`
		RequestID      string `json:"request_id"`
	}
}

type queryInput struct {
	Body struct {
		Query string `json:"query" example:"Where is the Eiffel Tower?" doc:"Question to answer"`
	}
}

type queryOutput struct {
	Body struct {
		Query     string `json:"query"`
		Answer    string `json:"answer"`
		RequestID string `json:"request_id"`
	}
}

// StatusBody is the JSON body of GET /api/v1/status.
type StatusBody struct {
	Collection      string           `json:"collection"`
	Documents       int              `json:"documents" doc:"Chunks currently indexed"`
	Dimension       int              `json:"dimension"`
	EmbeddingModel  string           `json:"embedding_model"`
	GenerationModel string           `json:"generation_model"`
	SourceURL       string           `json:"source_url,omitempty"`
	SourceTitle     string           `json:"source_title,omitempty"`
	LoadedAt        *time.Time       `json:"loaded_at,omitempty"`
	Providers       []health.Metrics `json:"providers,omitempty"`
}

type statusOutput struct {
	Body StatusBody
}

func (s *Server) handleRoot(_ context.Context, _ *struct{}) (*messageOutput, error) {
	out := &messageOutput{}
	out.Body.Message = WelcomeMessage
	return out, nil
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	return out, nil
}

func (s *Server) handleLoad(ctx context.Context, input *loadInput) (*loadOutput, error) {
	if s.cfg.Service == nil {
		return nil, huma.Error503ServiceUnavailable("service not configured")
	}

	res, err := s.cfg.Service.Load(ctx, input.Body.URL)
	if err != nil {
		return nil, statusError("load", err)
	}

	out := &loadOutput{}
	out.Body.Message = res.Message
	out.Body.NumberOfChunks = res.Chunks
	out.Body.Title = res.Title
	out.Body.RequestID = res.RequestID
	return out, nil
}

func (s *Server) handleQuery(ctx context.Context, input *queryInput) (*queryOutput, error) {
	if s.cfg.Service == nil {
		return nil, huma.Error503ServiceUnavailable("service not configured")
	}

	res, err := s.cfg.Service.Query(ctx, input.Body.Query)
	if err != nil {
		return nil, statusError("query", err)
	}

	out := &queryOutput{}
	out.Body.Query = res.Query
	out.Body.Answer = res.Answer
	out.Body.RequestID = res.RequestID
	return out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	if s.cfg.Service == nil {
		return nil, huma.Error503ServiceUnavailable("service not configured")
	}

	st, err := s.cfg.Service.Status(ctx)
	if err != nil {
		return nil, statusError("status", err)
	}

	out := &statusOutput{Body: StatusBody{
		Collection:      st.Collection,
		Documents:       st.Documents,
		Dimension:       st.Dimension,
		EmbeddingModel:  st.EmbeddingModel,
		GenerationModel: st.GenerationModel,
		SourceURL:       st.SourceURL,
		SourceTitle:     st.SourceTitle,
		LoadedAt:        st.LoadedAt,
	}}
	if s.cfg.Providers != nil {
		out.Body.Providers = s.cfg.Providers.Health(ctx)
	}
	return out, nil
}

// statusError maps a pipeline error onto its HTTP status. The detail is the
// error's own message so callers see what actually failed.
func statusError(op string, err error) huma.StatusError {
	status := wikierr.HTTPStatus(err)
	attrs := []any{"op", op, "code", wikierr.CodeOf(err), "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Info("request rejected", attrs...)
	}
	return huma.NewError(status, err.Error())
}
