// Package embed turns dashboard texts into unit-norm vectors, either inline
// or through a pool of workers each holding its own model client.
package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// Factory constructs one Embedder instance. The pool path calls it once per
// worker so each worker owns its model state.
type Factory func(ctx context.Context) (interfaces.Embedder, error)

// Batcher drives batched embedding over an Embedder backend.
type Batcher struct {
	factory Factory
	config  *common.EmbeddingConfig
	logger  arbor.ILogger
	workers int
}

// NewBatcher creates a batch orchestrator.
func NewBatcher(factory Factory, config *common.EmbeddingConfig, logger arbor.ILogger) *Batcher {
	return &Batcher{
		factory: factory,
		config:  config,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
}

// EmbedDocs populates Embedding on each entry from its ShortSummary. Empty
// summaries are embedded, not skipped. A failed batch is retried once; on
// second failure its docs are dropped (left without embedding) with a log.
func (b *Batcher) EmbedDocs(ctx context.Context, entries []*models.DashboardEntry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.ShortSummary
	}

	embeddings, err := b.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}

	for i, entry := range entries {
		entry.Embedding = embeddings[i]
	}
	return nil
}

// EmbedTexts encodes all texts, choosing the pool path when configured.
// The result slice is aligned to the input order; dropped batches yield nil
// vectors.
func (b *Batcher) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if b.config.Pool {
		return b.embedPooled(ctx, texts)
	}
	return b.embedInline(ctx, texts)
}

// embedInline encodes sequential batches through a single embedder.
func (b *Batcher) embedInline(ctx context.Context, texts []string) ([][]float32, error) {
	embedder, err := b.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	out := make([][]float32, len(texts))
	batchSize := b.config.InlineBatch
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))
		b.embedBatchWithRetry(ctx, embedder, texts[start:end], out[start:end], start)
	}
	return out, nil
}

// batchJob is one unit of pool work: a contiguous slice of the input.
type batchJob struct {
	offset int
	texts  []string
}

// embedPooled encodes batches concurrently across NumCPU workers, each with
// its own embedder instance. Results are placed by offset so the output is
// realigned to input order regardless of completion order.
func (b *Batcher) embedPooled(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	batchSize := b.config.PoolBatch

	jobs := make(chan batchJob)
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var initErr error
	var initOnce sync.Once

	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			embedder, err := b.factory(poolCtx)
			if err != nil {
				initOnce.Do(func() { initErr = err; cancel() })
				return
			}

			for job := range jobs {
				if poolCtx.Err() != nil {
					return
				}
				b.embedBatchWithRetry(poolCtx, embedder, job.texts, out[job.offset:job.offset+len(job.texts)], job.offset)
			}
		}()
	}

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		select {
		case jobs <- batchJob{offset: start, texts: texts[start:end]}:
		case <-poolCtx.Done():
			start = len(texts)
		}
	}
	close(jobs)
	wg.Wait()

	if initErr != nil {
		return nil, fmt.Errorf("failed to start embed pool: %w", initErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatchWithRetry tries a batch twice, then drops it with a warning.
func (b *Batcher) embedBatchWithRetry(ctx context.Context, embedder interfaces.Embedder, texts []string, dst [][]float32, offset int) {
	for attempt := 1; attempt <= 2; attempt++ {
		embeddings, err := embedder.Embed(ctx, texts)
		if err == nil {
			copy(dst, embeddings)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt == 1 {
			b.logger.Warn().Err(err).Int("offset", offset).Int("size", len(texts)).Msg("Embed batch failed, retrying once")
		} else {
			b.logger.Warn().Err(err).Int("offset", offset).Int("size", len(texts)).Msg("Embed batch failed twice, dropping docs")
		}
	}
}
