package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/vectors"
	"google.golang.org/genai"
)

// GeminiEmbedder implements the Embedder interface on the Gemini embedding
// API. Vectors are L2-normalized after receipt.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewGeminiEmbedder creates an embedder with its own API client. The pool
// path constructs one per worker so no client is shared across workers.
func NewGeminiEmbedder(ctx context.Context, config *common.EmbeddingConfig, logger arbor.ILogger) (*GeminiEmbedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      config.Model,
		dimensions: config.Dimensions,
		timeout:    time.Duration(config.TimeoutSec) * time.Second,
		logger:     logger,
	}, nil
}

// Embed encodes texts in one API call and returns unit-norm vectors aligned
// to the input order. Empty strings are embedded, not skipped.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(e.dimensions)
	result, err := e.client.Models.EmbedContent(reqCtx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if len(emb.Values) != e.dimensions {
			return nil, fmt.Errorf("embed returned dimension %d, expected %d", len(emb.Values), e.dimensions)
		}
		v := make([]float32, len(emb.Values))
		copy(v, emb.Values)
		vectors.Normalize(v)
		out[i] = v
	}
	return out, nil
}

// Dimension returns the configured output dimensionality.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimensions
}
