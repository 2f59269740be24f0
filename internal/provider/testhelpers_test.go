// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"time"

	"github.com/sigil-dev/wikiqa/internal/provider"
)

// mockProvider is a reusable provider.Provider for routing and generation
// tests. Set events or chatErr to control what Chat returns.
type mockProvider struct {
	name      string
	available bool
	events    []provider.ChatEvent
	chatErr   error
	lastReq   provider.ChatRequest
	closed    bool
}

func newMockProvider(name string, available bool) *mockProvider {
	return &mockProvider{
		name:      name,
		available: available,
		events: []provider.ChatEvent{
			{Type: provider.EventTypeTextDelta, Text: "hello"},
			{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}},
			{Type: provider.EventTypeDone},
		},
	}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Available(context.Context) bool { return m.available }

func (m *mockProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }

func (m *mockProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	m.lastReq = req
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	ch := make(chan provider.ChatEvent, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.available, Provider: m.name, Message: "ok"}, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

// blockingProvider never produces an event, so only context expiry ends a
// generation against it.
type blockingProvider struct{ *mockProvider }

func (b blockingProvider) Chat(ctx context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// fixedClock returns a now function pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
