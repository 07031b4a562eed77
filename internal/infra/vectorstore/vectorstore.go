// Package vectorstore keeps session memory embeddings in chromem-go, one
// collection per session. Embeddings are computed by the caller (Gemini), so
// the collections never call an embedding API themselves.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

var errNoEmbedding = errors.New("vectorstore: documents must carry a precomputed embedding")

// precomputed is the collection embedding func. It only runs when a
// document or query arrives without a vector.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Store wraps chromem-go with per-session collections.
type Store struct {
	mu     sync.RWMutex
	db     *chromem.DB
	logger *zap.Logger
}

var _ port.SemanticIndex = (*Store)(nil)

// New opens a persistent store under dir, or an in-memory one when dir is empty.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return &Store{db: chromem.NewDB(), logger: logger}, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func collectionName(sessionID string) string {
	return "session_" + sessionID
}

func (s *Store) collection(sessionID string, create bool) (*chromem.Collection, error) {
	name := collectionName(sessionID)
	if col := s.db.GetCollection(name, precomputed); col != nil || !create {
		return col, nil
	}
	return s.db.CreateCollection(name, nil, precomputed)
}

// Add indexes one memory entry.
func (s *Store) Add(ctx context.Context, sessionID, id, key, value string, embedding []float32) error {
	if len(embedding) == 0 {
		return errNoEmbedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(sessionID, true)
	if err != nil {
		return fmt.Errorf("vectorstore: collection for session %s: %w", sessionID, err)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   value,
		Embedding: embedding,
		Metadata:  map[string]string{"key": key},
	})
}

// Search returns up to limit entries of the session ordered by similarity.
// Unknown sessions yield no hits.
func (s *Store) Search(ctx context.Context, sessionID string, embedding []float32, limit int) ([]domain.MemoryHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(sessionID, false)
	if err != nil || col == nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 || limit <= 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.MemoryHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, domain.MemoryHit{
			Key:        r.Metadata["key"],
			Value:      r.Content,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}
