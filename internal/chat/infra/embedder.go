package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"
	"github.com/speedauto/speedauto-assistant-go/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiEmbedder implements port.Embedder with the genai embeddings API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ port.Embedder = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(client *genai.Client, model string, logger *zap.Logger) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, logger: logger}
}

// Embed returns the embedding vector of text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "GeminiEmbedder.Embed")
	defer span.End()

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, &domain.ErrOracle{Status: OracleStatus(err), Err: fmt.Errorf("embed content: %w", err)}
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, &domain.ErrOracle{Err: errors.New("embed content: empty response")}
	}
	return resp.Embeddings[0].Values, nil
}
