package domain

// ============================================================
// ActionOutcome — resultado do dispatcher
// ============================================================

// OutcomeKind tags an ActionOutcome.
type OutcomeKind string

const (
	OutcomeOK      OutcomeKind = "ok"
	OutcomeConfirm OutcomeKind = "confirm"
)

// ActionOutcome is what the dispatcher returns for a handled intent. A nil
// *ActionOutcome means "not handled here" and the orchestrator falls through
// to the generative fallback.
type ActionOutcome struct {
	Kind OutcomeKind
	Text string

	// Pending is set only for OutcomeConfirm and carries everything needed to
	// re-execute the action on the next turn.
	Pending *PendingAction
}

// OK builds a terminal outcome.
func OK(text string) *ActionOutcome {
	return &ActionOutcome{Kind: OutcomeOK, Text: text}
}

// Confirm builds an outcome that waits for the user's approval.
func Confirm(text string, pending PendingAction) *ActionOutcome {
	return &ActionOutcome{Kind: OutcomeConfirm, Text: text, Pending: &pending}
}

// ============================================================
// PendingAction — ação aguardando confirmação
// ============================================================

// ActionRegisterSale is the only action that goes through confirmation.
const ActionRegisterSale = "REGISTER_SALE"

// PendingActionVersion is the envelope version written today. The wire form
// carries no version key, so every decoded token is treated as version 1.
const PendingActionVersion = 1

// PendingAction is the typed form of a CONFIRM| token.
type PendingAction struct {
	Version    int
	Action     string
	VehicleID  int64
	SaleAmount *float64 // nil = valor não informado
	SaleDate   string   // ISO-8601

	// QuotedID writes vehicle_id as a JSON string ("42") instead of a number.
	// Set when the id came from session memory, which stores text.
	QuotedID bool
}
