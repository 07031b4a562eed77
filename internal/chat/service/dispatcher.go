package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	mainport "github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// IntentStrategy — uma strategy por grupo de intents
// ============================================================

// IntentStrategy handles the intents for which CanHandle returns true.
// Handle returns nil when the action does not apply, so the orchestrator
// falls through to the generative fallback.
type IntentStrategy interface {
	CanHandle(intent domain.Intent) bool
	Handle(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error)
}

// Dispatcher routes a classified intent to the first strategy that accepts it.
type Dispatcher struct {
	strategies []IntentStrategy
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. Strategies are tried in slice order.
func NewDispatcher(strategies []IntentStrategy, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{strategies: strategies, logger: logger}
}

// NewDefaultDispatcher wires the dealership strategies in their usual order.
func NewDefaultDispatcher(store mainport.DealershipStore, memory *SessionMemory, sales *SaleExecutor, logger *zap.Logger) *Dispatcher {
	return NewDispatcher([]IntentStrategy{
		&VehicleStrategy{store: store, memory: memory},
		&LeadStrategy{store: store, memory: memory, now: time.Now},
		NewSaleStrategy(sales, memory, logger),
		NavigateStrategy{},
	}, logger)
}

// Dispatch returns (nil, nil) for SMALLTALK, UNKNOWN and anything no
// strategy accepts.
func (d *Dispatcher) Dispatch(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error) {
	ctx, span := chatTracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("intent", string(res.Intent)))

	for _, s := range d.strategies {
		if s.CanHandle(res.Intent) {
			return s.Handle(ctx, res, sessionID)
		}
	}
	d.logger.Debug("no strategy for intent", zap.String("intent", string(res.Intent)))
	return nil, nil
}

// ============================================================
// Limites de listagem
// ============================================================

const (
	defaultVehicleLimit = 10
	defaultLeadLimit    = 20
	maxListLimit        = 50
)

func clampLimit(requested, def int) int {
	switch {
	case requested <= 0:
		return def
	case requested > maxListLimit:
		return maxListLimit
	}
	return requested
}

// ============================================================
// VehicleStrategy — COUNT_VEHICLES / LIST_VEHICLES
// ============================================================

type VehicleStrategy struct {
	store  mainport.DealershipStore
	memory *SessionMemory
}

func (s *VehicleStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentCountVehicles || intent == domain.IntentListVehicles
}

func (s *VehicleStrategy) Handle(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error) {
	f, _ := res.Entities.(domain.VehicleFilter)

	if res.Intent == domain.IntentCountVehicles {
		n, err := s.store.CountVehicles(ctx, f.Status)
		if err != nil {
			return nil, err
		}
		if f.Status != "" {
			return domain.OK(fmt.Sprintf("Temos %d veículos com status %s.", n, f.Status)), nil
		}
		return domain.OK(fmt.Sprintf("Temos %d veículos.", n)), nil
	}

	vehicles, err := s.store.ListVehicles(ctx, maindomain.VehicleQuery{
		Status: f.Status,
		Marca:  f.Marca,
		Modelo: f.Modelo,
		Limit:  clampLimit(f.Limit, defaultVehicleLimit),
	})
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return domain.OK("Nenhum veículo encontrado."), nil
	}
	s.memory.Remember(ctx, sessionID, domain.MemoryLastVehicleID, vehicles[0].ID)

	lines := make([]string, len(vehicles))
	for i, v := range vehicles {
		lines[i] = fmt.Sprintf("- %s %s (%d) [%s]", v.Marca, v.Modelo, v.Ano, v.Status)
	}
	return domain.OK(fmt.Sprintf("Encontrei %d veículos:\n%s", len(vehicles), strings.Join(lines, "\n"))), nil
}

// ============================================================
// LeadStrategy — COUNT_LEADS / LIST_LEADS / CREATE_CLIENT
// ============================================================

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	digitRe = regexp.MustCompile(`\D`)
)

type LeadStrategy struct {
	store  mainport.DealershipStore
	memory *SessionMemory
	now    func() time.Time
}

func (s *LeadStrategy) CanHandle(intent domain.Intent) bool {
	switch intent {
	case domain.IntentCountLeads, domain.IntentListLeads, domain.IntentCreateClient:
		return true
	}
	return false
}

func (s *LeadStrategy) Handle(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error) {
	switch res.Intent {
	case domain.IntentCountLeads:
		n, err := s.store.CountClients(ctx, maindomain.ClientStatusLead)
		if err != nil {
			return nil, err
		}
		return domain.OK(fmt.Sprintf("Existem %d leads.", n)), nil

	case domain.IntentListLeads:
		f, _ := res.Entities.(domain.LeadFilter)
		leads, err := s.store.ListClients(ctx, maindomain.ClientQuery{
			Status: maindomain.ClientStatusLead,
			Nome:   f.Nome,
			Origem: f.Origem,
			Limit:  clampLimit(f.Limit, defaultLeadLimit),
		})
		if err != nil {
			return nil, err
		}
		if len(leads) == 0 {
			return domain.OK("Nenhum lead encontrado."), nil
		}
		s.memory.Remember(ctx, sessionID, domain.MemoryLastLeadID, leads[0].ID)
		return domain.OK(formatLeads(leads)), nil

	default:
		return s.createClient(ctx, res, sessionID)
	}
}

func (s *LeadStrategy) createClient(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error) {
	f, _ := res.Entities.(domain.ClientFields)

	if f.Email != "" && !emailRe.MatchString(f.Email) {
		return domain.OK("E-mail inválido."), nil
	}
	if f.Phone != "" {
		if n := len(digitRe.ReplaceAllString(f.Phone, "")); n < 6 || n > 15 {
			return domain.OK("Telefone inválido."), nil
		}
	}
	name := f.Name
	if name == "" {
		name = "Cliente"
	}

	id, err := s.store.InsertClient(ctx, maindomain.NewClient{
		Nome:      name,
		Email:     f.Email,
		Telefone:  f.Phone,
		Status:    maindomain.ClientStatusLead,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.memory.Remember(ctx, sessionID, domain.MemoryLastLeadID, id)
	return domain.OK(fmt.Sprintf("Cliente %s criado (id: %d).", name, id)), nil
}

func formatLeads(leads []maindomain.Client) string {
	lines := make([]string, len(leads))
	for i, c := range leads {
		phone := c.Telefone
		if phone == "" {
			phone = "sem telefone"
		}
		origem := c.Origem
		if origem == "" {
			origem = "origem não informada"
		}
		lines[i] = fmt.Sprintf("- %s — %s — %s", c.Nome, phone, origem)
	}
	return fmt.Sprintf("Leads (%d):\n%s", len(leads), strings.Join(lines, "\n"))
}

// ============================================================
// NavigateStrategy — NAVIGATE
// ============================================================

// NavigateStrategy only echoes the path; the dashboard does the navigation.
type NavigateStrategy struct{}

func (NavigateStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentNavigate
}

func (NavigateStrategy) Handle(_ context.Context, res domain.IntentResult, _ string) (*domain.ActionOutcome, error) {
	t, _ := res.Entities.(domain.NavigateTarget)
	path := t.Path
	if path == "" {
		path = "/"
	}
	return domain.OK("Navegar para " + path), nil
}
