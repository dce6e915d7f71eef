package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/store/cache"
)

// StoredEmbedder keeps vectors in a CacheService keyed by backend and text, so
// a restarted server reloads model descriptions without calling the backend.
// Only the registry load uses it. Query vectors are always computed live.
type StoredEmbedder struct {
	next      Embedder
	store     cache.CacheService
	namespace string
	logger    *zap.Logger
}

// NewStoredEmbedder wraps next. namespace must change whenever next would
// produce different vectors (backend, model or dimensions).
func NewStoredEmbedder(next Embedder, store cache.CacheService, namespace string, logger *zap.Logger) *StoredEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredEmbedder{next: next, store: store, namespace: namespace, logger: logger}
}

func (s *StoredEmbedder) Dimensions() int {
	return s.next.Dimensions()
}

func (s *StoredEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := s.key(text)

	var vec []float64
	err := s.store.Get(ctx, key, &vec)
	if err == nil && s.fits(vec) {
		return vec, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Embedding store read failed", zap.Error(err))
	}

	vec, err = s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	// no expiry: the key already pins backend and text
	if err := s.store.Set(ctx, key, vec, 0); err != nil {
		s.logger.Warn("Embedding store write failed", zap.Error(err))
	}
	return vec, nil
}

// fits rejects stored vectors of the wrong size. A backend reporting 0
// dimensions accepts any non-empty vector.
func (s *StoredEmbedder) fits(vec []float64) bool {
	dims := s.next.Dimensions()
	return len(vec) > 0 && (dims == 0 || len(vec) == dims)
}

func (s *StoredEmbedder) key(text string) string {
	return fmt.Sprintf("emb:%s:%d:%016x", s.namespace, len(text), xxhash.Sum64String(text))
}

// Namespace identifies the vector space an embedding config produces.
func Namespace(backend, model string, dims int) string {
	if backend == "" || backend == "hashing" {
		return fmt.Sprintf("hashing-%d", dims)
	}
	return fmt.Sprintf("%s-%s-%d", backend, model, dims)
}
