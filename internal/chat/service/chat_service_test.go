package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/service"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedSaleToken = `CONFIRM|{"action":"REGISTER_SALE","vehicle_id":42,"sale_amount":15000,"sale_date":"2025-01-01T00:00:00.000Z"}`

func TestRespond_ShortcutSkipsClassifier(t *testing.T) {
	h := newHarness(t)
	h.store.vehicleCount = 3
	h.oracle.classifyReply = `{"intent":"COUNT_VEHICLES","confidence":0.99,"entities":{}}`

	reply := h.respond("quantos veículos temos disponíveis?")

	assert.Equal(t, "No momento, temos 3 veículos disponíveis no estoque.", reply)
	assert.Zero(t, h.oracle.classifyCalls)
	assert.Zero(t, h.oracle.generateCalls)
	assert.Equal(t, int64(1), h.metrics.GetChatbotSnapshot().TurnsByRoute["shortcut"])
}

func TestRespond_RegisterSaleAsksForVehicle(t *testing.T) {
	h := newHarness(t)
	h.oracle.classifyReply = `{"intent":"REGISTER_SALE","confidence":0.9,"entities":{}}`

	reply := h.respond("registrar venda")

	assert.Equal(t, "Informe o ID do veículo para registrar a venda.", reply)
	assert.Zero(t, h.store.writes())
	assert.Zero(t, h.oracle.generateCalls)
}

func TestRespond_RegisterSaleConfirmFromMemory(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.memory.InsertMemory(context.Background(), memoryRow("sess-1", domain.MemoryLastVehicleID, "42")))
	h.oracle.classifyReply = `{"intent":"REGISTER_SALE","confidence":0.8,"entities":{}}`

	reply := h.respond("confirma a venda")

	assert.Contains(t, reply, "Confirma venda do veículo 42?")
	assert.Contains(t, reply, `"vehicle_id":"42"`)
	assert.Contains(t, reply, domain.ConfirmSuffix)
	p, err := domain.DecodeConfirmation(reply)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.VehicleID)
	assert.Nil(t, p.SaleAmount)
	assert.Zero(t, h.store.writes())
}

func TestRespond_AffirmedTokenExecutesSale(t *testing.T) {
	h := newHarness(t)

	reply := h.svc.Respond(context.Background(), domain.TurnRequest{
		Message:            "sim",
		SessionID:          "sess-1",
		ConfirmationAnswer: storedSaleToken,
	})

	assert.Equal(t, "Venda registrada (id: 501) para veículo 42.", reply)
	require.Len(t, h.store.sales, 1)
	assert.Equal(t, int64(42), h.store.sales[0].VehicleID)
	assert.Equal(t, 15000.0, *h.store.sales[0].Valor)
	assert.Equal(t, []int64{42}, h.store.updates)
	assert.Zero(t, h.oracle.classifyCalls, "replay bypasses the classifier")
}

// Replaying a decoded token has the same effects as the direct path.
func TestRespond_ReplayMatchesDirectExecution(t *testing.T) {
	direct := newHarness(t)
	direct.oracle.classifyReply = `{"intent":"REGISTER_SALE","confidence":0.9,"entities":{"vehicle_id":42,"sale_amount":15000,"sale_date":"2025-01-01T00:00:00.000Z"}}`
	direct.respond("vendi o carro 42 por 15000")

	replay := newHarness(t)
	replay.svc.Respond(context.Background(), domain.TurnRequest{Message: "SIM", ConfirmationAnswer: storedSaleToken})

	require.Len(t, direct.store.sales, 1)
	require.Len(t, replay.store.sales, 1)
	d, r := direct.store.sales[0], replay.store.sales[0]
	assert.Equal(t, d.VehicleID, r.VehicleID)
	assert.Equal(t, *d.Valor, *r.Valor)
	assert.True(t, d.DataVenda.Equal(r.DataVenda))
	assert.Equal(t, direct.store.updates, replay.store.updates)
}

func TestRespond_DeclineIsNoop(t *testing.T) {
	for _, answer := range []string{"não", "nao", "cancelar", "talvez", "simmm"} {
		h := newHarness(t)

		reply := h.svc.Respond(context.Background(), domain.TurnRequest{
			Message:            answer,
			SessionID:          "sess-1",
			ConfirmationAnswer: storedSaleToken,
		})

		assert.Equal(t, "Ok, operação cancelada.", reply, answer)
		assert.Zero(t, h.store.writes(), answer)
		assert.Zero(t, h.oracle.classifyCalls, answer)
	}
}

func TestRespond_AffirmedMalformedTokenFallsThrough(t *testing.T) {
	h := newHarness(t)
	h.oracle.classifyReply = `{"intent":"SMALLTALK","confidence":0.9}`
	h.oracle.generateReply = "Como posso ajudar?"

	reply := h.svc.Respond(context.Background(), domain.TurnRequest{
		Message:            "sim",
		ConfirmationAnswer: `CONFIRM|{"action":"REGISTER_SALE","vehicle_id":`,
	})

	assert.Equal(t, "Como posso ajudar?", reply)
	assert.Zero(t, h.store.writes())
	assert.Equal(t, 1, h.oracle.classifyCalls)
}

func TestRespond_GenerativeFallback(t *testing.T) {
	h := newHarness(t)
	h.oracle.classifyReply = `{"intent":"SMALLTALK","confidence":0.95}`
	h.oracle.generateReply = "Por que o carro foi ao médico? Porque estava com a bateria fraca!"

	reply := h.respond("me conte uma piada")

	assert.Equal(t, h.oracle.generateReply, reply)
	assert.Equal(t, 1, h.oracle.generateCalls)
	assert.Contains(t, h.oracle.lastSystem, service.SystemPrompt)
	assert.Equal(t, "Usuário: me conte uma piada", h.oracle.lastUser)
	assert.Zero(t, h.store.writes())
}

func TestRespond_LowConfidenceFallsBack(t *testing.T) {
	h := newHarness(t)
	h.oracle.classifyReply = `{"intent":"CREATE_CLIENT","confidence":0.59,"entities":{"client_name":"Ana"}}`
	h.oracle.generateReply = "Pode detalhar?"

	reply := h.respond("ana talvez")

	assert.Equal(t, "Pode detalhar?", reply)
	assert.Zero(t, h.store.writes())
}

func TestRespond_FallbackIncludesSessionMemory(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.memory.InsertMemory(context.Background(), memoryRow("sess-1", domain.MemoryLastVehicleID, "42")))
	require.NoError(t, h.memory.InsertMemory(context.Background(), memoryRow("sess-1", domain.MemoryLastLeadID, "9")))
	h.oracle.classifyReply = "não sei"
	h.oracle.generateReply = "É um ótimo carro."

	h.respond("o que acha dele?")

	assert.Contains(t, h.oracle.lastSystem, "Último veículo consultado: id 42")
	assert.Contains(t, h.oracle.lastSystem, "Último lead consultado: id 9")
}

func TestRespond_NeverFails(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		msg   string
		want  string
	}{
		{
			name:  "store error in shortcut",
			setup: func(h *harness) { h.store.countErr = errors.New("supabase down") },
			msg:   "quantos veículos temos?",
			want:  service.MsgGenericError,
		},
		{
			name:  "store panic",
			setup: func(h *harness) { h.store.panicOnCount = true },
			msg:   "quantos carros?",
			want:  service.MsgGenericError,
		},
		{
			name: "store error in dispatcher",
			setup: func(h *harness) {
				h.store.insertErr = errors.New("insert failed")
				h.oracle.classifyReply = `{"intent":"CREATE_CLIENT","confidence":0.9,"entities":{"client_name":"Ana"}}`
			},
			msg:  "cadastrar Ana",
			want: service.MsgGenericError,
		},
		{
			name: "oracle rate limited",
			setup: func(h *harness) {
				h.oracle.classifyErr = &maindomain.ErrOracle{Status: 429, Err: errors.New("quota")}
				h.oracle.generateErr = &maindomain.ErrOracle{Status: 429, Err: errors.New("quota")}
			},
			msg:  "oi",
			want: service.MsgRateLimited,
		},
		{
			name: "oracle model not found",
			setup: func(h *harness) {
				h.oracle.generateErr = &maindomain.ErrOracle{Status: 404, Err: errors.New("no model")}
			},
			msg:  "oi",
			want: service.MsgModelNotFound,
		},
		{
			name:  "oracle generic failure",
			setup: func(h *harness) { h.oracle.generateErr = errors.New("connection reset") },
			msg:   "oi",
			want:  service.MsgGenericError,
		},
		{
			name:  "oracle empty answer",
			setup: func(h *harness) {},
			msg:   "oi",
			want:  service.MsgGenericError,
		},
		{
			name: "memory store down",
			setup: func(h *harness) {
				h.memory.loadErr = errors.New("memory down")
				h.oracle.generateReply = "Olá!"
			},
			msg:  "oi",
			want: "Olá!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			var reply string
			assert.NotPanics(t, func() { reply = h.respond(tt.msg) })
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestRespond_PartialWriteIsSurfaced(t *testing.T) {
	h := newHarness(t)
	h.store.updateErr = errors.New("update timeout")

	reply := h.svc.Respond(context.Background(), domain.TurnRequest{Message: "sim", ConfirmationAnswer: storedSaleToken})

	assert.Contains(t, reply, "A venda foi registrada (id: 501)")
	assert.Contains(t, reply, "veículo 42")
	assert.Equal(t, int64(1), h.metrics.GetChatbotSnapshot().PartialWrites)
	assert.Equal(t, int64(1), h.metrics.GetChatbotSnapshot().TurnsByRoute["error"])
}

func TestUserFacingError(t *testing.T) {
	assert.Equal(t, service.MsgRateLimited, service.UserFacingError(&maindomain.ErrOracle{Status: 429}))
	assert.Equal(t, service.MsgModelNotFound, service.UserFacingError(&maindomain.ErrOracle{Status: 404}))
	assert.Equal(t, service.MsgGenericError, service.UserFacingError(&maindomain.ErrOracle{Status: 500}))
	assert.Equal(t, service.MsgGenericError, service.UserFacingError(&maindomain.ErrExternalService{Service: "supabase", Err: errors.New("x")}))
	assert.Contains(t, service.UserFacingError(&maindomain.ErrPartialWrite{SaleID: 1, VehicleID: 2}), "id: 1")
}

func TestRespond_CountsExternalErrors(t *testing.T) {
	h := newHarness(t)
	h.store.countErr = &maindomain.ErrExternalService{Service: "supabase", Err: errors.New("502")}

	reply := h.respond("quantos carros temos?")

	assert.Equal(t, service.MsgGenericError, reply)
	assert.Equal(t, int64(1), h.metrics.GetChatbotSnapshot().ExternalErrors["supabase"])
}
