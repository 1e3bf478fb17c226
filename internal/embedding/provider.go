// Package embedding turns text into fixed-length vectors and compares them.
//
// Provider calls an external embedding API and, when the call fails, substitutes
// a deterministic pseudo-random vector flagged as Degraded. Degraded vectors keep
// ingestion and retrieval running during a provider outage but rank meaninglessly,
// so every substitution is logged and counted.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDimension = 1536
	DefaultBatchSize = 100
	DefaultTimeout   = 30 * time.Second
)

// ErrEmptyInput indicates an empty text batch.
var ErrEmptyInput = errors.New("empty input")

// Client is the external embedding API.
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedding is a vector plus whether it came from the fallback generator.
type Embedding struct {
	Vector   []float32
	Degraded bool
}

// Config holds provider settings.
type Config struct {
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Provider embeds text through a Client with a local fallback.
type Provider struct {
	client  Client
	config  Config
	logger  *zap.Logger
	metrics *Metrics
}

// NewProvider creates a provider. A nil logger disables logging.
func NewProvider(client Client, config Config, logger *zap.Logger) *Provider {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client:  client,
		config:  config,
		logger:  logger.Named("embedding"),
		metrics: NewMetrics(logger),
	}
}

// Dimension returns the vector length this provider produces.
func (p *Provider) Dimension() int { return p.config.Dimension }

// Similarity returns the cosine similarity of a and b.
func (p *Provider) Similarity(a, b []float32) float64 { return Cosine(a, b) }

// Embed embeds a single text.
func (p *Provider) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order, sending at most BatchSize texts per call.
// Only cancellation of ctx itself is returned as an error; provider failures
// produce Degraded embeddings instead.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([]Embedding, 0, len(texts))
	for start := 0; start < len(texts); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(texts))
		batch, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (p *Provider) embedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	vectors, err := p.call(ctx, texts)
	if err == nil {
		out := make([]Embedding, len(vectors))
		for i, v := range vectors {
			out[i] = Embedding{Vector: v}
		}
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	p.logger.Warn("embedding provider failed, using fallback vectors",
		zap.String("model", p.config.Model),
		zap.Int("texts", len(texts)),
		zap.Error(err),
	)
	p.metrics.RecordFallback(ctx, p.config.Model, len(texts))

	out := make([]Embedding, len(texts))
	for i, t := range texts {
		out[i] = Embedding{Vector: fallbackVector(t, p.config.Dimension), Degraded: true}
	}
	return out, nil
}

// call performs one bounded provider request and checks the response shape.
func (p *Provider) call(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if p.client == nil {
		return nil, errors.New("no embedding client configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.metrics.RecordCall(ctx, p.config.Model, time.Since(start), err)
	}()

	vectors, err = p.client.CreateEmbeddings(callCtx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != p.config.Dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), p.config.Dimension)
		}
	}
	return vectors, nil
}
