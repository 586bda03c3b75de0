package metrics

import (
	"context"
	"time"

	"github.com/raphaelgruber/leadscout/internal/provider"
)

// Generator is the LLM surface the instrumented wrapper decorates.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// InstrumentedReader wraps a provider.Reader and records call timings.
type InstrumentedReader struct {
	inner     provider.Reader
	collector *Collector
}

// WrapReader decorates a reader with timing collection.
func WrapReader(inner provider.Reader, collector *Collector) *InstrumentedReader {
	return &InstrumentedReader{inner: inner, collector: collector}
}

func (r *InstrumentedReader) ListRecentPosts(ctx context.Context, req provider.ListRequest) (*provider.Listing, error) {
	start := time.Now()
	listing, err := r.inner.ListRecentPosts(ctx, req)
	r.collector.RecordTiming(OpProviderList, time.Since(start))
	return listing, err
}

func (r *InstrumentedReader) FetchAuthorItems(ctx context.Context, accountID string, limit int) ([]provider.AuthorItem, error) {
	start := time.Now()
	items, err := r.inner.FetchAuthorItems(ctx, accountID, limit)
	r.collector.RecordTiming(OpProviderAuthor, time.Since(start))
	return items, err
}

func (r *InstrumentedReader) SearchURL(req provider.ListRequest) string {
	return r.inner.SearchURL(req)
}

// InstrumentedGenerator wraps an LLM generator and records call timings.
type InstrumentedGenerator struct {
	inner     Generator
	collector *Collector
}

// WrapGenerator decorates a generator with timing collection.
func WrapGenerator(inner Generator, collector *Collector) *InstrumentedGenerator {
	return &InstrumentedGenerator{inner: inner, collector: collector}
}

func (g *InstrumentedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := g.inner.Generate(ctx, prompt)
	g.collector.RecordTiming(OpLLMGenerate, time.Since(start))
	return out, err
}

func (g *InstrumentedGenerator) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	out, err := g.inner.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	g.collector.RecordTiming(OpLLMGenerate, time.Since(start))
	return out, err
}

func (g *InstrumentedGenerator) Model() string {
	return g.inner.Model()
}
