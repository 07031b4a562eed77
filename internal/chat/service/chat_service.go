// Package service — chat_service.go implementa o ChatService, o orquestrador
// de um turno do chatbot SpeedAuto.
//
// ============================================================
// ARQUITETURA — pipeline "primeiro que responder ganha"
// ============================================================
//
//  1. Atalhos RAG (shortcuts.go): perguntas frequentes respondidas direto do
//     banco, sem chamar o Gemini
//  2. Confirmação: se veio confirmationAnswer, executa ou cancela a ação
//     pendente serializada no token CONFIRM|{...}
//  3. Classificador (extractor.go) + Dispatcher (dispatcher.go) quando a
//     confiança é >= 0.6
//  4. Fallback generativo com contexto da memória da sessão
//  5. Qualquer erro (ou panic) vira uma frase amigável
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/port"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// chatTracer é o tracer OpenTelemetry para o módulo de chat.
var chatTracer = otel.Tracer("chat/service")

// SystemPrompt is the fixed instruction of the generative fallback.
const SystemPrompt = "Você é a SpeedAuto AI, assistente virtual do SaaS SpeedAuto.\n" +
	"Responda de forma breve, amigável e profissional. Nunca use markdown."

// DefaultConfidenceThreshold gates the dispatcher.
const DefaultConfidenceThreshold = 0.6

// Frases de erro devolvidas ao usuário.
const (
	MsgRateLimited   = "Muitas solicitações no momento. Tente novamente em alguns segundos."
	MsgModelNotFound = "Erro: modelo não encontrado. Verifique a configuração da API."
	MsgGenericError  = "Ocorreu um erro ao processar sua solicitação."
)

// ============================================================
// ChatService — orquestrador
// ============================================================

// ChatService runs one conversation turn end to end and never returns an
// error to the caller; failures become a user-facing sentence.
type ChatService struct {
	shortcuts  *Shortcuts
	extractor  *Extractor
	dispatcher *Dispatcher
	sales      *SaleExecutor
	memory     *SessionMemory
	oracle     port.Oracle

	threshold float64
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// Deps groups the collaborators of NewChatService.
type Deps struct {
	Shortcuts  *Shortcuts
	Extractor  *Extractor
	Dispatcher *Dispatcher
	Sales      *SaleExecutor
	Memory     *SessionMemory
	Oracle     port.Oracle
}

// NewChatService builds the orchestrator. A threshold <= 0 uses 0.6.
func NewChatService(deps Deps, threshold float64, metrics *observability.Metrics, logger *zap.Logger) *ChatService {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &ChatService{
		shortcuts:  deps.Shortcuts,
		extractor:  deps.Extractor,
		dispatcher: deps.Dispatcher,
		sales:      deps.Sales,
		memory:     deps.Memory,
		oracle:     deps.Oracle,
		threshold:  threshold,
		metrics:    metrics,
		logger:     logger,
	}
}

// Respond answers one user turn. It always returns a non-empty string.
func (s *ChatService) Respond(ctx context.Context, req domain.TurnRequest) (reply string) {
	ctx, span := chatTracer.Start(ctx, "ChatService.Respond")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	start := time.Now()
	route := observability.RouteError

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while answering chat turn",
				zap.String("session_id", req.SessionID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			reply, route = MsgGenericError, observability.RouteError
		}
		s.metrics.IncrTurn(route)
		s.metrics.RecordRequestDuration("turn", time.Since(start))
	}()

	text, r, err := s.respond(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("chat turn failed",
			zap.String("session_id", req.SessionID),
			zap.String("route", r),
			zap.Error(err),
		)
		s.countExternalError(err)
		return UserFacingError(err)
	}

	route = r
	s.logger.Info("chat turn answered",
		zap.String("session_id", req.SessionID),
		zap.String("route", route),
		zap.Duration("duration", time.Since(start)),
	)
	return text
}

func (s *ChatService) respond(ctx context.Context, req domain.TurnRequest) (string, string, error) {
	// Passo 1: atalhos RAG
	if answer, ok, err := s.shortcuts.Answer(ctx, req.Message, req.SessionID); err != nil {
		return "", observability.RouteShortcut, err
	} else if ok {
		return answer, observability.RouteShortcut, nil
	}

	// Passo 2: continuação de confirmação
	if req.ConfirmationAnswer != "" {
		text, handled, err := s.continueConfirmation(ctx, req)
		if err != nil || handled {
			return text, observability.RouteConfirm, err
		}
	}

	// Passo 3: classificador + dispatcher
	res := s.extractor.Classify(ctx, req.Message)
	s.metrics.IncrIntent(string(res.Intent))
	s.logger.Debug("intent classified",
		zap.String("session_id", req.SessionID),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
	)

	if res.Confidence >= s.threshold {
		outcome, err := s.dispatcher.Dispatch(ctx, res, req.SessionID)
		if err != nil {
			return "", observability.RouteIntent, err
		}
		if outcome != nil {
			if outcome.Kind == domain.OutcomeConfirm {
				return outcome.Text + domain.ConfirmSuffix, observability.RouteIntent, nil
			}
			return outcome.Text, observability.RouteIntent, nil
		}
	}

	// Passo 4: fallback generativo
	text, err := s.fallback(ctx, req)
	return text, observability.RouteFallback, err
}

// continueConfirmation handles a turn that carries a confirmation answer.
// handled=false means the token was unusable and the turn goes on to the
// classifier.
func (s *ChatService) continueConfirmation(ctx context.Context, req domain.TurnRequest) (string, bool, error) {
	if !domain.IsAffirmative(req.Message) && !domain.IsAffirmative(req.ConfirmationAnswer) {
		s.logger.Info("pending action declined", zap.String("session_id", req.SessionID))
		return domain.CancelledText, true, nil
	}

	pending, err := domain.DecodeConfirmation(req.ConfirmationAnswer)
	if errors.Is(err, domain.ErrNoConfirmToken) {
		pending, err = domain.DecodeConfirmation(req.Message)
	}
	if err != nil {
		s.logger.Warn("affirmed confirmation without a usable token",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return "", false, nil
	}

	saleID, err := s.sales.Execute(ctx, pending)
	if err != nil {
		return "", true, err
	}
	return fmt.Sprintf("Venda registrada (id: %d) para veículo %d.", saleID, pending.VehicleID), true, nil
}

// fallback asks the oracle for a free-text answer, with whatever the session
// memory knows as context.
func (s *ChatService) fallback(ctx context.Context, req domain.TurnRequest) (string, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.fallback")
	defer span.End()

	var (
		lastVehicle, lastLead *string
		hits                  []domain.MemoryHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lastVehicle = s.memory.Load(gctx, req.SessionID, domain.MemoryLastVehicleID)
		return nil
	})
	g.Go(func() error {
		lastLead = s.memory.Load(gctx, req.SessionID, domain.MemoryLastLeadID)
		return nil
	})
	g.Go(func() error {
		hits = s.memory.Search(gctx, req.SessionID, req.Message)
		return nil
	})
	_ = g.Wait()

	system := SystemPrompt + memoryContext(lastVehicle, lastLead, hits)
	out, err := s.oracle.Generate(ctx, system, "Usuário: "+req.Message)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("oracle returned an empty answer")
	}
	return out, nil
}

func memoryContext(lastVehicle, lastLead *string, hits []domain.MemoryHit) string {
	var b strings.Builder
	if lastVehicle != nil {
		b.WriteString("\n- Último veículo consultado: id " + *lastVehicle)
	}
	if lastLead != nil {
		b.WriteString("\n- Último lead consultado: id " + *lastLead)
	}
	for _, h := range hits {
		b.WriteString(fmt.Sprintf("\n- Memória (%s): %s", h.Key, h.Value))
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n\nContexto da sessão:" + b.String()
}

func (s *ChatService) countExternalError(err error) {
	var ext *maindomain.ErrExternalService
	var open *maindomain.ErrCircuitOpen
	switch {
	case errors.As(err, &ext):
		s.metrics.IncrExternalError(ext.Service)
	case errors.As(err, &open):
		s.metrics.IncrExternalError(open.Service)
	}
}

// ============================================================
// Erros → frases para o usuário
// ============================================================

// UserFacingError maps a pipeline error to the sentence shown to the user.
func UserFacingError(err error) string {
	var oe *maindomain.ErrOracle
	if errors.As(err, &oe) {
		switch {
		case oe.RateLimited():
			return MsgRateLimited
		case oe.ModelNotFound():
			return MsgModelNotFound
		}
	}

	var pw *maindomain.ErrPartialWrite
	if errors.As(err, &pw) {
		return fmt.Sprintf("A venda foi registrada (id: %d), mas não consegui marcar o veículo %d como vendido. Atualize o status manualmente.",
			pw.SaleID, pw.VehicleID)
	}
	return MsgGenericError
}
