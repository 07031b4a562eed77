package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"
	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/resilience"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// tracer é o tracer OpenTelemetry para o módulo chat/infra.
var tracer = otel.Tracer("chat/infra")

// ============================================================
// GeminiConfig — modelos usados pelo chatbot
// ============================================================

type GeminiConfig struct {
	APIKey  string
	BaseURL string

	// IntentModel classifica a intenção (JSON only, temperatura baixa).
	IntentModel       string
	IntentTemperature float32

	// ChatModel responde o fallback generativo.
	ChatModel       string
	ChatTemperature float32

	EmbeddingModel string
	MaxTokens      int
}

// NewGenAIClient builds the shared google.golang.org/genai client.
func NewGenAIClient(ctx context.Context, cfg GeminiConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the intent and response chat models on one client.
func NewChatModels(ctx context.Context, client *genai.Client, cfg GeminiConfig) (intent, chat model.BaseChatModel, err error) {
	maxTokens := cfg.MaxTokens
	intentTemp, chatTemp := cfg.IntentTemperature, cfg.ChatTemperature

	intent, err = gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.IntentModel,
		Temperature: &intentTemp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating intent model: %w", err)
	}

	chat, err = gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.ChatModel,
		Temperature: &chatTemp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return intent, chat, nil
}

// ============================================================
// GeminiOracle — implementa port.Oracle
// ============================================================
//
// Cada chamada passa por:
//   - bulkhead (limita chamadas simultâneas ao Gemini)
//   - circuit breaker (429/404 não contam como falha do serviço)
//   - retry com backoff só para erros transitórios (5xx, rede)
//
// Classify faz UMA tentativa só: se o modelo falhar, o classificador
// degrada para UNKNOWN e o turno segue para o fallback.

type GeminiOracle struct {
	intent   model.BaseChatModel
	chat     model.BaseChatModel
	cb       *gobreaker.CircuitBreaker
	cfg      resilience.Config
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

var _ port.Oracle = (*GeminiOracle)(nil)

func NewGeminiOracle(
	intent, chat model.BaseChatModel,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *GeminiOracle {
	return &GeminiOracle{
		intent:   intent,
		chat:     chat,
		cb:       cb,
		cfg:      cfg,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
	}
}

// Classify sends the intent prompt as a single user message.
func (o *GeminiOracle) Classify(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiOracle.Classify")
	defer span.End()

	msgs := []*schema.Message{schema.UserMessage(prompt)}
	return o.call(ctx, "intent", o.intent, msgs, false)
}

// Generate runs the fallback model with a system prompt.
func (o *GeminiOracle) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiOracle.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(user)))

	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	return o.call(ctx, "chat", o.chat, msgs, true)
}

func (o *GeminiOracle) call(ctx context.Context, name string, cm model.BaseChatModel, msgs []*schema.Message, retry bool) (string, error) {
	if err := o.bulkhead.Acquire(ctx); err != nil {
		return "", &domain.ErrOracle{Err: err}
	}
	defer o.bulkhead.Release()

	cfg := o.cfg
	if !retry {
		cfg.MaxRetries = 0
	}

	var out *schema.Message
	_, err := o.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			msg, err := cm.Generate(ctx, msgs)
			if err != nil {
				if IgnoreForBreaker(err) {
					return resilience.Permanent(err)
				}
				return err
			}
			out = msg
			return nil
		})
	})
	if err != nil {
		status := OracleStatus(err)
		o.metrics.IncrOracleError(statusLabel(status))
		o.logger.Warn("gemini call failed",
			zap.String("model", name),
			zap.Int("status", status),
			zap.Error(err),
		)
		return "", &domain.ErrOracle{Status: status, Err: err}
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		o.metrics.RecordTokens(out.ResponseMeta.Usage.PromptTokens, out.ResponseMeta.Usage.CompletionTokens)
	}
	return out.Content, nil
}

// ============================================================
// Classificação de erros do Gemini
// ============================================================

// OracleStatus extracts an HTTP-like status from a Gemini error. The genai
// APIError carries it directly; wrapped errors from eino only keep the text,
// so the status words are matched as a fallback. Returns 0 when unknown.
func OracleStatus(err error) int {
	if err == nil {
		return 0
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	if resilience.IsBreakerOpen(err) {
		return 503
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return 429
	case strings.Contains(msg, "404") || strings.Contains(msg, "NOT_FOUND"):
		return 404
	}
	return 0
}

// IgnoreForBreaker keeps client-side Gemini errors (quota, bad model name)
// from tripping the breaker. The same errors are never retried.
func IgnoreForBreaker(err error) bool {
	switch OracleStatus(err) {
	case 400, 404, 429:
		return true
	}
	return false
}

func statusLabel(status int) string {
	if status == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", status)
}
