package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================
// Confirmation token — CONFIRM|{json}
// ============================================================
//
// O payload da ação pendente viaja dentro do próprio texto da resposta:
//
//	CONFIRM|{"action":"REGISTER_SALE","vehicle_id":42,"sale_amount":null,"sale_date":"2025-01-01T00:00:00.000Z"}
//
// vehicle_id sai como string ("42") quando o id veio da memória da sessão.
//
// Nada fica guardado no servidor. Se o usuário devolver o token junto com um
// "sim", a ação é executada direto, sem passar pelo classificador de novo.

// ConfirmPrefix is the literal marker that starts a token.
const ConfirmPrefix = "CONFIRM|"

// ConfirmSuffix is appended to every confirm outcome shown to the user.
const ConfirmSuffix = "\n\nSe quiser confirmar, responda \"SIM\"."

// CancelledText is the reply to a declined confirmation.
const CancelledText = "Ok, operação cancelada."

var ErrNoConfirmToken = errors.New("confirm token not found")

// confirmWire is the v1 wire shape. Key order matters for transcripts.
type confirmWire struct {
	Action     string   `json:"action"`
	VehicleID  any      `json:"vehicle_id"` // int64 ou string
	SaleAmount *float64 `json:"sale_amount"`
	SaleDate   string   `json:"sale_date"`
}

// EncodeConfirmation renders a PendingAction as CONFIRM|<single-line json>.
func EncodeConfirmation(p PendingAction) string {
	var id any = p.VehicleID
	if p.QuotedID {
		id = strconv.FormatInt(p.VehicleID, 10)
	}
	b, _ := json.Marshal(confirmWire{
		Action:     p.Action,
		VehicleID:  id,
		SaleAmount: p.SaleAmount,
		SaleDate:   p.SaleDate,
	})
	return ConfirmPrefix + string(b)
}

// DecodeConfirmation finds a CONFIRM| token anywhere in text and decodes it.
// vehicle_id may be a number or a numeric string, and veiculo_id is accepted
// as an alias. sale_amount goes through ToNumber.
func DecodeConfirmation(text string) (PendingAction, error) {
	i := strings.Index(text, ConfirmPrefix)
	if i < 0 {
		return PendingAction{}, ErrNoConfirmToken
	}
	obj, ok := FirstJSONObject(text[i+len(ConfirmPrefix):])
	if !ok {
		return PendingAction{}, fmt.Errorf("confirm token: no json object")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return PendingAction{}, fmt.Errorf("confirm token: %w", err)
	}

	action, _ := raw["action"].(string)
	if action != ActionRegisterSale {
		return PendingAction{}, fmt.Errorf("confirm token: unsupported action %q", action)
	}
	rawID := first(raw, "vehicle_id", "veiculo_id")
	id, ok := ParseID(rawID)
	if !ok {
		return PendingAction{}, fmt.Errorf("confirm token: invalid vehicle id")
	}
	date, _ := raw["sale_date"].(string)

	return PendingAction{
		Version:    PendingActionVersion,
		Action:     action,
		VehicleID:  id,
		SaleAmount: ToNumber(raw["sale_amount"]),
		SaleDate:   date,
		QuotedID:   isString(rawID),
	}, nil
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// IsAffirmative reports whether reply is one of "sim", "s" or "yes",
// ignoring case and surrounding spaces.
func IsAffirmative(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "sim", "s", "yes":
		return true
	}
	return false
}

// FirstJSONObject returns the first balanced {...} substring of s. Braces
// inside JSON strings are ignored.
func FirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
