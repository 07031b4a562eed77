// Package domain holds the chatbot types: the closed intent set, the typed
// entities extracted for each intent, the outcome of dispatching an action
// and the confirmation token exchanged with the user.
package domain

// ============================================================
// Intent — conjunto fechado de intenções
// ============================================================

// Intent is one of the closed set of user intentions the assistant understands.
type Intent string

const (
	IntentCountVehicles Intent = "COUNT_VEHICLES"
	IntentListVehicles  Intent = "LIST_VEHICLES"
	IntentCountLeads    Intent = "COUNT_LEADS"
	IntentListLeads     Intent = "LIST_LEADS"
	IntentCreateClient  Intent = "CREATE_CLIENT"
	IntentRegisterSale  Intent = "REGISTER_SALE"
	IntentNavigate      Intent = "NAVIGATE"
	IntentSmalltalk     Intent = "SMALLTALK"
	IntentUnknown       Intent = "UNKNOWN"
)

// AllIntents lists the closed set in prompt order.
var AllIntents = []Intent{
	IntentCountVehicles,
	IntentListVehicles,
	IntentCountLeads,
	IntentListLeads,
	IntentCreateClient,
	IntentRegisterSale,
	IntentNavigate,
	IntentSmalltalk,
	IntentUnknown,
}

// ParseIntent maps a raw label to the closed set. Unknown labels yield
// (IntentUnknown, false).
func ParseIntent(s string) (Intent, bool) {
	for _, in := range AllIntents {
		if string(in) == s {
			return in, true
		}
	}
	return IntentUnknown, false
}

// ============================================================
// Entities — variantes tipadas por intent
// ============================================================

// Entities is the typed payload attached to an IntentResult. The concrete
// type depends on the intent; see EntitiesFor.
type Entities interface {
	entities()
}

// VehicleFilter backs COUNT_VEHICLES and LIST_VEHICLES.
type VehicleFilter struct {
	Status string
	Marca  string
	Modelo string
	Limit  int // 0 = default
}

// LeadFilter backs COUNT_LEADS and LIST_LEADS.
type LeadFilter struct {
	Nome   string
	Origem string
	Limit  int
}

// ClientFields backs CREATE_CLIENT.
type ClientFields struct {
	Name  string
	Email string
	Phone string
}

// SaleFields backs REGISTER_SALE. VehicleID 0 means absent.
type SaleFields struct {
	VehicleID  int64
	SaleAmount *float64
	SaleDate   string
}

// NavigateTarget backs NAVIGATE.
type NavigateTarget struct {
	Path string
}

// NoEntities is used by SMALLTALK and UNKNOWN.
type NoEntities struct{}

func (VehicleFilter) entities()  {}
func (LeadFilter) entities()     {}
func (ClientFields) entities()   {}
func (SaleFields) entities()     {}
func (NavigateTarget) entities() {}
func (NoEntities) entities()     {}

// IntentResult is the outcome of classification.
type IntentResult struct {
	Intent     Intent
	Confidence float64 // always within [0,1]
	Entities   Entities
}

// Unknown is the degraded classification used whenever the oracle output
// cannot be trusted.
func Unknown() IntentResult {
	return IntentResult{Intent: IntentUnknown, Confidence: 0, Entities: NoEntities{}}
}
