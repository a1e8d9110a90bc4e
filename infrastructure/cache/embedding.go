package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cavepedia/cavepedia/domain/search"
)

// EmbeddingCache wraps an Embedder and reuses query embeddings. Document
// embeddings are computed once per unit and pass straight through. Cache
// failures are logged and never returned.
type EmbeddingCache struct {
	next      search.Embedder
	store     Store
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
}

// NewEmbeddingCache creates the decorator. namespace separates entries from
// different models or dimensions sharing one Redis.
func NewEmbeddingCache(next search.Embedder, store Store, ttl time.Duration, namespace string, logger *slog.Logger) *EmbeddingCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingCache{
		next:      next,
		store:     store,
		ttl:       ttl,
		namespace: namespace,
		logger:    logger,
	}
}

// Embed returns a cached query vector when one exists.
func (c *EmbeddingCache) Embed(ctx context.Context, text string, purpose search.Purpose) ([]float64, error) {
	if purpose != search.PurposeQuery {
		return c.next.Embed(ctx, text, purpose)
	}

	key := c.key(text)

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "query cache read failed", slog.String("error", err.Error()))
	case ok:
		var vector []float64
		if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
		c.logger.WarnContext(ctx, "discarding unreadable query cache entry", slog.String("key", key))
	}

	vector, err := c.next.Embed(ctx, text, purpose)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(vector); err == nil {
		if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "query cache write failed", slog.String("error", err.Error()))
		}
	}
	return vector, nil
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "cavepedia:query-embedding:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}

var _ search.Embedder = (*EmbeddingCache)(nil)
