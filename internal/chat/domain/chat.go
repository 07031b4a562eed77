package domain

// ============================================================
// Chat — Request/Response entre o dashboard e o assistente
// ============================================================
//
// O fluxo completo de um turno:
//  1. Dashboard manda {"message": "..."} (e opcionalmente sessionId/confirmationAnswer)
//  2. Atalhos RAG respondem perguntas frequentes direto do banco
//  3. Se houver confirmationAnswer, a ação pendente é executada ou cancelada
//  4. Classificador de intenção + dispatcher executam ações conhecidas
//  5. Sobrou? Fallback generativo com contexto da memória da sessão
//  6. Qualquer erro vira uma frase amigável, nunca um stack trace

// ChatRequest is the body of POST /v1/chat. The legacy POST /api/chatbot
// route only reads Message.
type ChatRequest struct {
	Message            string `json:"message"`
	SessionID          string `json:"sessionId,omitempty"`
	ConfirmationAnswer string `json:"confirmationAnswer,omitempty"`
}

// ChatResponse mirrors the message bubble rendered by the dashboard.
type ChatResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`    // sempre "ai"
	Timestamp string `json:"timestamp"` // HH:MM, fuso de São Paulo
	SessionID string `json:"sessionId,omitempty"`
}

// TurnRequest is the orchestrator input for one user turn.
type TurnRequest struct {
	Message string

	// SessionID keys the session memory. Empty disables memory.
	SessionID string

	// ConfirmationAnswer carries a CONFIRM| token echoed back by the UI,
	// or a bare affirmation.
	ConfirmationAnswer string
}

// Memory keys written by listing actions.
const (
	MemoryLastVehicleID = "last_vehicle_id"
	MemoryLastLeadID    = "last_lead_id"
)

// MemoryHit is one semantic memory match.
type MemoryHit struct {
	Key        string
	Value      string
	Similarity float32
}
