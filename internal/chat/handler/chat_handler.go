// Package handler — chat_handler.go implementa o handler das rotas de chat
// consumidas pelo dashboard SpeedAuto.
//
// ============================================================
// ROTAS
// ============================================================
//
// POST /api/chatbot  →  contrato legado do widget de chat
//   - Body: {"message": "..."}
//   - Resposta: {"id", "text", "sender": "ai", "timestamp": "HH:MM"}
//
// POST /v1/chat      →  contrato completo
//   - Body: {"message", "sessionId"?, "confirmationAnswer"?}
//   - Resposta: igual à legada + "sessionId" (gerado quando ausente)
//
// O handler é fino: valida a mensagem e delega pro ChatService, que sempre
// devolve uma string (erros já viram frases amigáveis lá dentro).
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer é o tracer OpenTelemetry para o módulo chat/handler.
var tracer = otel.Tracer("chat/handler")

// MsgInvalidMessage is the 400 body for a missing or non-string message.
const MsgInvalidMessage = "Mensagem inválida."

// Responder is the orchestrator seen from HTTP.
type Responder interface {
	Respond(ctx context.Context, req domain.TurnRequest) string
}

var saoPaulo = loadSaoPaulo()

func loadSaoPaulo() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// ============================================================
// Sessão vinda do token (middleware JWT)
// ============================================================

type sessionKey struct{}

// WithSessionID stores a session id resolved by an auth middleware.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFromContext returns the session id set by WithSessionID.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey{}).(string)
	return v
}

// ============================================================
// Handlers
// ============================================================

// LegacyChatbotHandler serves POST /api/chatbot. Only message is read; the
// session comes from the bearer token when there is one.
func LegacyChatbotHandler(chat Responder, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/chatbot")
		defer span.End()

		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		text := chat.Respond(ctx, domain.TurnRequest{
			Message:   req.Message,
			SessionID: SessionIDFromContext(ctx),
		})
		writeJSON(w, http.StatusOK, newChatResponse(text, ""))
	}
}

// ChatHandler serves POST /v1/chat.
func ChatHandler(chat Responder, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat")
		defer span.End()

		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		sessionID := req.SessionID
		if tokenSession := SessionIDFromContext(ctx); tokenSession != "" {
			sessionID = tokenSession
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
			logger.Debug("chat: new anonymous session", zap.String("session_id", sessionID))
		}
		span.SetAttributes(attribute.String("session.id", sessionID))

		text := chat.Respond(ctx, domain.TurnRequest{
			Message:            req.Message,
			SessionID:          sessionID,
			ConfirmationAnswer: req.ConfirmationAnswer,
		})
		writeJSON(w, http.StatusOK, newChatResponse(text, sessionID))
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (domain.ChatRequest, bool) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, MsgInvalidMessage)
		return req, false
	}
	return req, true
}

func newChatResponse(text, sessionID string) domain.ChatResponse {
	now := time.Now()
	return domain.ChatResponse{
		ID:        now.UnixMilli(),
		Text:      text,
		Sender:    "ai",
		Timestamp: now.In(saoPaulo).Format("15:04"),
		SessionID: sessionID,
	}
}

// ============================================================
// Helpers — funções utilitárias do chat handler
// ============================================================

// writeJSON serializa data como JSON e escreve na response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError escreve uma resposta de erro padronizada.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
