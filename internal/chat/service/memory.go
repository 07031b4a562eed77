package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	mainport "github.com/speedauto/speedauto-assistant-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// SessionMemory — memória por sessão (append-only)
// ============================================================
//
// Cada Save insere uma linha nova na tabela memory; Load lê a mais recente
// do par (session_id, key). Nada é apagado nem compactado.
//
// Em cima disso:
//   - cache read-through (in-memory ou Redis) para o Load
//   - índice semântico opcional (embeddings Gemini + chromem) para Search,
//     reconstruído a partir das linhas da tabela na primeira consulta da sessão

const (
	semanticThreshold = 0.75
	semanticLimit     = 5

	// linhas com embedding recarregadas por sessão ao reconstruir o índice
	indexRebuildLimit = 200
)

// SessionMemory is the per-session key/value memory used to resolve
// references across turns ("esse carro", "o último lead").
type SessionMemory struct {
	store    mainport.MemoryStore
	cache    mainport.Cache[string] // nil = sem cache
	embedder port.Embedder          // nil = sem memória semântica
	index    port.SemanticIndex
	metrics  *observability.Metrics
	logger   *zap.Logger

	indexed sync.Map // sessões já carregadas no índice semântico
}

// SessionMemoryOption configures optional collaborators.
type SessionMemoryOption func(*SessionMemory)

// WithMemoryCache puts a read-through cache in front of Load.
func WithMemoryCache(c mainport.Cache[string]) SessionMemoryOption {
	return func(m *SessionMemory) { m.cache = c }
}

// WithSemanticIndex enables embedding-based Search.
func WithSemanticIndex(e port.Embedder, idx port.SemanticIndex) SessionMemoryOption {
	return func(m *SessionMemory) {
		m.embedder = e
		m.index = idx
	}
}

// NewSessionMemory creates the memory over an append-only store.
func NewSessionMemory(store mainport.MemoryStore, metrics *observability.Metrics, logger *zap.Logger, opts ...SessionMemoryOption) *SessionMemory {
	m := &SessionMemory{store: store, metrics: metrics, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func cacheKey(sessionID, key string) string {
	return sessionID + "|" + key
}

// Save appends a memory row. An empty session id is a no-op.
func (m *SessionMemory) Save(ctx context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return nil
	}
	ctx, span := chatTracer.Start(ctx, "SessionMemory.Save")
	defer span.End()
	span.SetAttributes(attribute.String("memory.key", key))

	row := mainport.MemoryRow{SessionID: sessionID, Key: key, Value: value}
	if m.embedder != nil {
		emb, err := m.embedder.Embed(ctx, value)
		if err != nil {
			m.logger.Warn("memory embedding failed, saving without vector",
				zap.String("session_id", sessionID), zap.String("key", key), zap.Error(err))
		} else {
			row.Embedding = emb
		}
	}

	if m.index != nil && len(row.Embedding) > 0 {
		m.ensureIndexed(ctx, sessionID)
	}

	if err := m.store.InsertMemory(ctx, row); err != nil {
		return err
	}

	// Invalida em vez de gravar: dois Saves concorrentes podem terminar fora
	// de ordem, e o próximo Load precisa ver a linha mais nova da tabela.
	if m.cache != nil {
		m.cache.Delete(ctx, cacheKey(sessionID, key))
	}
	if m.index != nil && len(row.Embedding) > 0 {
		if err := m.index.Add(ctx, sessionID, uuid.NewString(), key, value, row.Embedding); err != nil {
			m.logger.Warn("semantic index add failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// Remember is Save for callers that must not fail because of memory.
func (m *SessionMemory) Remember(ctx context.Context, sessionID, key string, id int64) {
	if err := m.Save(ctx, sessionID, key, strconv.FormatInt(id, 10)); err != nil {
		m.logger.Warn("memory write failed",
			zap.String("session_id", sessionID),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Load returns the latest value for (sessionID, key), or nil. Store errors
// are logged and read as "no memory".
func (m *SessionMemory) Load(ctx context.Context, sessionID, key string) *string {
	if sessionID == "" {
		return nil
	}
	ctx, span := chatTracer.Start(ctx, "SessionMemory.Load")
	defer span.End()

	ck := cacheKey(sessionID, key)
	if m.cache != nil {
		if v, ok := m.cache.Get(ctx, ck); ok {
			m.metrics.IncrCacheHit("memory")
			return &v
		}
		m.metrics.IncrCacheMiss("memory")
	}

	row, err := m.store.LatestMemory(ctx, sessionID, key)
	if err != nil {
		m.logger.Warn("memory load failed",
			zap.String("session_id", sessionID),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}
	if row == nil {
		return nil
	}

	if m.cache != nil {
		m.cache.Set(ctx, ck, row.Value)
	}
	v := row.Value
	return &v
}

// Search returns up to five memories of the session similar to query,
// dropping hits below 0.75 similarity. Fail-soft like Load.
func (m *SessionMemory) Search(ctx context.Context, sessionID, query string) []domain.MemoryHit {
	if sessionID == "" || m.embedder == nil || m.index == nil {
		return nil
	}
	ctx, span := chatTracer.Start(ctx, "SessionMemory.Search")
	defer span.End()

	emb, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("memory search embedding failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	m.ensureIndexed(ctx, sessionID)

	hits, err := m.index.Search(ctx, sessionID, emb, semanticLimit)
	if err != nil {
		m.logger.Warn("memory search failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	out := hits[:0]
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		k := h.Key + "\x00" + h.Value
		if h.Similarity < semanticThreshold || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h)
	}
	return out
}

// ensureIndexed loads the session's stored embeddings into the index the
// first time this process touches the session. Rows keep their table id as
// document id, so a repeated load overwrites instead of duplicating.
func (m *SessionMemory) ensureIndexed(ctx context.Context, sessionID string) {
	if _, done := m.indexed.Load(sessionID); done {
		return
	}

	rows, err := m.store.ListEmbeddedMemory(ctx, sessionID, indexRebuildLimit)
	if err != nil {
		m.logger.Warn("semantic index rebuild failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for _, r := range rows {
		if len(r.Embedding) == 0 {
			continue
		}
		docID := "memory-" + strconv.FormatInt(r.ID, 10)
		if err := m.index.Add(ctx, sessionID, docID, r.Key, r.Value, r.Embedding); err != nil {
			m.logger.Warn("semantic index add failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
	}
	m.indexed.Store(sessionID, struct{}{})
	m.logger.Debug("semantic index rebuilt from store",
		zap.String("session_id", sessionID), zap.Int("rows", len(rows)))
}
