package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	mainport "github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ============================================================
// Shortcuts — respostas diretas do banco (RAG), sem oráculo
// ============================================================
//
// Tabela ordenada de regras. Cada regra exige um verbo ("quantos",
// "listar"...) E um domínio ("veículo", "lead"...) na mensagem. A primeira
// regra que responder ganha e o classificador nem é chamado.
//
// O casamento roda sobre a mensagem em minúsculas e sem acentos, então
// "disponíveis" e "disponiveis" dão no mesmo.

var (
	countVerb = regexp.MustCompile(`\b(quantos|quantas|quantidade|total)\b`)
	listVerb  = regexp.MustCompile(`\b(listar|liste|lista|ver|mostrar|mostre|quais)\b`)

	vehicleDomain = regexp.MustCompile(`\b(veiculos?|carros?)\b`)
	leadDomain    = regexp.MustCompile(`\b(clientes?|leads?)\b`)

	statusAvailable   = regexp.MustCompile(`\b(disponive(l|is)|estoque)\b`)
	statusSold        = regexp.MustCompile(`\bvendidos?\b`)
	statusMaintenance = regexp.MustCompile(`\bmanutencao\b`)
)

const (
	shortcutVehicleLimit = 5
	shortcutLeadLimit    = 10
)

// Shortcut is one row of the rule table.
type Shortcut struct {
	Name   string
	Verb   *regexp.Regexp
	Domain *regexp.Regexp
	Run    func(ctx context.Context, folded, sessionID string) (string, error)
}

// Matches reports whether both the verb and the domain are present.
func (r Shortcut) Matches(folded string) bool {
	return r.Verb.MatchString(folded) && r.Domain.MatchString(folded)
}

// Shortcuts answers fixed phrases without calling the classifier.
type Shortcuts struct {
	store   mainport.DealershipStore
	memory  *SessionMemory
	metrics *observability.Metrics
	logger  *zap.Logger
	rules   []Shortcut
}

func NewShortcuts(store mainport.DealershipStore, memory *SessionMemory, metrics *observability.Metrics, logger *zap.Logger) *Shortcuts {
	s := &Shortcuts{store: store, memory: memory, metrics: metrics, logger: logger}
	s.rules = []Shortcut{
		{Name: "count_vehicles", Verb: countVerb, Domain: vehicleDomain, Run: s.countVehicles},
		{Name: "count_leads", Verb: countVerb, Domain: leadDomain, Run: s.countLeads},
		{Name: "list_vehicles", Verb: listVerb, Domain: vehicleDomain, Run: s.listVehicles},
		{Name: "list_leads", Verb: listVerb, Domain: leadDomain, Run: s.listLeads},
	}
	return s
}

// Rules exposes the table in priority order.
func (s *Shortcuts) Rules() []Shortcut {
	return s.rules
}

// Answer runs the rules in order. ok=false means no rule fired. Store errors
// are returned as-is.
func (s *Shortcuts) Answer(ctx context.Context, message, sessionID string) (answer string, ok bool, err error) {
	folded := Fold(message)
	for _, rule := range s.rules {
		if !rule.Matches(folded) {
			continue
		}

		ctx, span := chatTracer.Start(ctx, "Shortcut."+rule.Name)
		span.SetAttributes(attribute.String("shortcut", rule.Name))
		answer, err = rule.Run(ctx, folded, sessionID)
		span.End()
		if err != nil {
			return "", false, fmt.Errorf("shortcut %s: %w", rule.Name, err)
		}
		if answer != "" {
			s.metrics.IncrShortcutHit(rule.Name)
			s.logger.Debug("shortcut answered", zap.String("rule", rule.Name))
			return answer, true, nil
		}
	}
	return "", false, nil
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// statusFromText picks at most one status filter; Disponível wins over
// Vendido, which wins over Em Manutenção.
func statusFromText(folded string) string {
	switch {
	case statusAvailable.MatchString(folded):
		return maindomain.VehicleAvailable
	case statusSold.MatchString(folded):
		return maindomain.VehicleSold
	case statusMaintenance.MatchString(folded):
		return maindomain.VehicleMaintenance
	}
	return ""
}

func (s *Shortcuts) countVehicles(ctx context.Context, folded, _ string) (string, error) {
	status := statusFromText(folded)
	n, err := s.store.CountVehicles(ctx, status)
	if err != nil {
		return "", err
	}
	switch status {
	case maindomain.VehicleAvailable:
		return fmt.Sprintf("No momento, temos %d veículos disponíveis no estoque.", n), nil
	case "":
		return fmt.Sprintf("No momento, temos %d veículos cadastrados.", n), nil
	default:
		return fmt.Sprintf("No momento, temos %d veículos com status %s.", n, status), nil
	}
}

func (s *Shortcuts) countLeads(ctx context.Context, _, _ string) (string, error) {
	n, err := s.store.CountClients(ctx, maindomain.ClientStatusLead)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Atualmente, existem %d leads ativos no CRM.", n), nil
}

func (s *Shortcuts) listVehicles(ctx context.Context, folded, sessionID string) (string, error) {
	vehicles, err := s.store.ListVehicles(ctx, maindomain.VehicleQuery{
		Status: statusFromText(folded),
		Limit:  shortcutVehicleLimit,
	})
	if err != nil {
		return "", err
	}
	if len(vehicles) == 0 {
		return "Não encontrei veículos no sistema que correspondam a essa busca.", nil
	}
	s.memory.Remember(ctx, sessionID, domain.MemoryLastVehicleID, vehicles[0].ID)

	lines := make([]string, len(vehicles))
	for i, v := range vehicles {
		lines[i] = fmt.Sprintf("- %s %s (Status: %s)", v.Marca, v.Modelo, v.Status)
	}
	return fmt.Sprintf("Encontrei %d veículos recentes:\n%s", len(vehicles), strings.Join(lines, "\n")), nil
}

func (s *Shortcuts) listLeads(ctx context.Context, _, sessionID string) (string, error) {
	leads, err := s.store.ListClients(ctx, maindomain.ClientQuery{
		Status: maindomain.ClientStatusLead,
		Limit:  shortcutLeadLimit,
	})
	if err != nil {
		return "", err
	}
	if len(leads) == 0 {
		return "Nenhum lead encontrado.", nil
	}
	s.memory.Remember(ctx, sessionID, domain.MemoryLastLeadID, leads[0].ID)
	return formatLeads(leads), nil
}
