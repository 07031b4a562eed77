// Package port — chat_port.go define as interfaces (ports) que o chatbot usa
// para falar com o modelo de linguagem e com o índice semântico.
//
// Seguindo a arquitetura hexagonal, o ChatService depende dessas interfaces
// e NÃO dos clients concretos (Gemini, chromem). Nos testes entra um fake.
package port

import (
	"context"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
)

// Oracle is the generative text model.
//
//   - Classify runs the intent prompt (low temperature, JSON-only output)
//   - Generate runs the free-text fallback
//
// Both return *domain.ErrOracle on provider failures.
type Oracle interface {
	Classify(ctx context.Context, prompt string) (string, error)
	Generate(ctx context.Context, system, user string) (string, error)
}

// Embedder turns text into a vector for semantic memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex stores session memory vectors and finds the nearest ones.
type SemanticIndex interface {
	Add(ctx context.Context, sessionID, id, key, value string, embedding []float32) error
	Search(ctx context.Context, sessionID string, embedding []float32, limit int) ([]domain.MemoryHit, error)
}
