package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// EntitiesFor converts the loose entity bag returned by the oracle into the
// typed variant of the given intent. Fields that belong to other intents are
// dropped.
func EntitiesFor(intent Intent, raw map[string]any) Entities {
	switch intent {
	case IntentCountVehicles, IntentListVehicles:
		return VehicleFilter{
			Status: str(raw, "status"),
			Marca:  str(raw, "marca"),
			Modelo: str(raw, "modelo"),
			Limit:  limit(raw),
		}
	case IntentCountLeads, IntentListLeads:
		return LeadFilter{
			Nome:   str(raw, "nome"),
			Origem: str(raw, "origem"),
			Limit:  limit(raw),
		}
	case IntentCreateClient:
		return ClientFields{
			Name:  str(raw, "client_name", "nome"),
			Email: str(raw, "client_email", "email"),
			Phone: str(raw, "client_phone", "telefone"),
		}
	case IntentRegisterSale:
		sf := SaleFields{SaleDate: str(raw, "sale_date", "data_venda")}
		if id, ok := ParseID(first(raw, "vehicle_id", "veiculo_id")); ok {
			sf.VehicleID = id
		}
		sf.SaleAmount = ToNumber(first(raw, "sale_amount", "valor"))
		return sf
	case IntentNavigate:
		return NavigateTarget{Path: str(raw, "path")}
	default:
		return NoEntities{}
	}
}

func first(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(raw map[string]any, keys ...string) string {
	switch v := first(raw, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func limit(raw map[string]any) int {
	n := ToNumber(raw["limit"])
	if n == nil || *n < 1 {
		return 0
	}
	return int(*n)
}

// ToNumber coerces an oracle value into a finite float. Strings keep only
// digits, '.' and '-' before parsing; a pt-BR amount such as "15.000,50" is
// normalised first. Returns nil when nothing numeric remains.
func ToNumber(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return nil
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(numericOnly(normaliseDecimal(x)), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// normaliseDecimal rewrites "15.000,50" as "15000.50". Strings without a
// comma are left untouched.
func normaliseDecimal(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", ".")
}

func numericOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseID reads a positive integer id from a JSON number or a numeric string.
func ParseID(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		// float64(math.MaxInt64) arredonda para 2^63, que já não cabe em int64
		if x < 1 || x != math.Trunc(x) || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case int:
		return int64(x), x > 0
	case int64:
		return x, x > 0
	case json.Number:
		id, err := x.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}
