// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

// Flow names the two request pipelines.
type Flow string

const (
	FlowLoad  Flow = "load"
	FlowQuery Flow = "query"
)

// Stage is a step of a load or query pipeline. Every request starts in
// StageIdle and ends in StageDone or StageFailed.
type Stage string

const (
	StageIdle   Stage = "idle"
	StageDone   Stage = "done"
	StageFailed Stage = "failed"

	// Load flow.
	StageScraping  Stage = "scraping"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageIndexing  Stage = "indexing"

	// Query flow.
	StageEmbeddingQuery    Stage = "embedding_query"
	StageSearching         Stage = "searching"
	StageAssemblingContext Stage = "assembling_context"
	StageGenerating        Stage = "generating"
	StagePostFiltering     Stage = "post_filtering"
)

// LoadStages is the successful load sequence.
var LoadStages = []Stage{StageIdle, StageScraping, StageChunking, StageEmbedding, StageIndexing, StageDone}

// QueryStages is the successful query sequence.
var QueryStages = []Stage{
	StageIdle, StageEmbeddingQuery, StageSearching, StageAssemblingContext,
	StageGenerating, StagePostFiltering, StageDone,
}
