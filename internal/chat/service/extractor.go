package service

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Extractor — classificação de intenção via oráculo
// ============================================================

// Extractor turns a free-text message into an IntentResult. It never
// returns an error: anything it cannot trust becomes UNKNOWN with
// confidence 0.
type Extractor struct {
	oracle port.Oracle
	logger *zap.Logger
}

// NewExtractor creates the intent extractor over the oracle's classify call.
func NewExtractor(oracle port.Oracle, logger *zap.Logger) *Extractor {
	return &Extractor{oracle: oracle, logger: logger}
}

// BuildIntentPrompt renders the JSON-only classification prompt.
func BuildIntentPrompt(message string) string {
	names := make([]string, len(domain.AllIntents))
	for i, in := range domain.AllIntents {
		names[i] = string(in)
	}

	var b strings.Builder
	b.WriteString("SYSTEM: Você é um analisador de intenções curado para o SaaS SpeedAuto.\n")
	b.WriteString("REGRAS:\n")
	b.WriteString("- Retorne SOMENTE JSON válido, sem texto adicional.\n")
	b.WriteString("- Formato exato: {\"intent\":\"X\",\"confidence\":0.0,\"entities\":{...}}\n")
	b.WriteString("- Intents válidas: " + strings.Join(names, ", ") + "\n")
	b.WriteString("- Se a intenção for NAVIGATE, use entities.path como string (ex: \"/clientes\").\n")
	b.WriteString("- Para criação/registro extraia: client_name, client_email, client_phone, vehicle_id, sale_amount, sale_date.\n")
	b.WriteString("- Para listagens extraia: marca, modelo, status, limit (limit deve ser número).\n")
	b.WriteString("- Para leads extraia também: nome, origem.\n")
	b.WriteString("- Se você não tiver certeza, use intent = \"UNKNOWN\" com confidence < 0.6.\n\n")
	b.WriteString("USER: \"" + strings.ReplaceAll(message, `"`, `\"`) + "\"")
	return b.String()
}

// Classify makes exactly one oracle call.
func (e *Extractor) Classify(ctx context.Context, message string) domain.IntentResult {
	ctx, span := chatTracer.Start(ctx, "Extractor.Classify")
	defer span.End()

	raw, err := e.oracle.Classify(ctx, BuildIntentPrompt(message))
	if err != nil {
		e.logger.Warn("intent classification failed, degrading to UNKNOWN", zap.Error(err))
		return domain.Unknown()
	}

	res := ParseIntentResponse(raw)
	span.SetAttributes(
		attribute.String("intent", string(res.Intent)),
		attribute.Float64("confidence", res.Confidence),
	)
	return res
}

// ParseIntentResponse extracts the first balanced JSON object from the
// oracle text and coerces it into an IntentResult.
func ParseIntentResponse(raw string) domain.IntentResult {
	obj, ok := domain.FirstJSONObject(raw)
	if !ok {
		return domain.Unknown()
	}

	var payload struct {
		Intent     any            `json:"intent"`
		Confidence any            `json:"confidence"`
		Entities   map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		// entities pode vir em formato inesperado (ex: lista); tenta sem ele
		var loose map[string]any
		if json.Unmarshal([]byte(obj), &loose) != nil {
			return domain.Unknown()
		}
		payload.Intent, payload.Confidence, payload.Entities = loose["intent"], loose["confidence"], nil
	}

	label, _ := payload.Intent.(string)
	intent, known := domain.ParseIntent(strings.ToUpper(strings.TrimSpace(label)))
	if !known {
		return domain.Unknown()
	}

	return domain.IntentResult{
		Intent:     intent,
		Confidence: coerceConfidence(payload.Confidence),
		Entities:   domain.EntitiesFor(intent, payload.Entities),
	}
}

func coerceConfidence(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = p
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
