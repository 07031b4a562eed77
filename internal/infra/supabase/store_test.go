package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/resilience"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/supabase"
	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	cb := resilience.NewCircuitBreaker("test-supabase", supabase.IsClientError, zap.NewNop())
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", cb, cfg, zap.NewNop())
}

func TestCountVehicles_ParsesContentRange(t *testing.T) {
	var gotPrefer, gotStatus, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/rest/v1/veiculos", r.URL.Path)
		gotPrefer = r.Header.Get("Prefer")
		gotStatus = r.URL.Query().Get("status")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Range", "0-6/7")
		w.WriteHeader(http.StatusOK)
	})

	n, err := c.CountVehicles(context.Background(), domain.VehicleAvailable)
	require.NoError(t, err)

	assert.Equal(t, 7, n)
	assert.Equal(t, "count=exact", gotPrefer)
	assert.Equal(t, "eq."+domain.VehicleAvailable, gotStatus)
	assert.Equal(t, "Bearer service", gotAuth)
}

func TestCountClients_EmptyRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/0")
		w.WriteHeader(http.StatusOK)
	})

	n, err := c.CountClients(context.Background(), domain.ClientStatusLead)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListVehicles_BuildsFilters(t *testing.T) {
	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[{"id":12,"marca":"Fiat","modelo":"Uno","ano":2015,"status":"Disponível"}]`))
	})

	vehicles, err := c.ListVehicles(context.Background(), domain.VehicleQuery{
		Status: domain.VehicleAvailable,
		Marca:  "fiat",
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, vehicles, 1)

	assert.Equal(t, int64(12), vehicles[0].ID)
	assert.Equal(t, "Uno", vehicles[0].Modelo)
	assert.Equal(t, []string{"eq.Disponível"}, query["status"])
	assert.Equal(t, []string{"ilike.*fiat*"}, query["marca"])
	assert.Equal(t, []string{"5"}, query["limit"])
	assert.Equal(t, []string{"id.desc"}, query["order"])
	assert.NotContains(t, query, "modelo")
}

func TestListClients_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":3,"nome":"Ana","telefone":"11999990000","origem":"site","status":"Lead"}]`))
	})

	clients, err := c.ListClients(context.Background(), domain.ClientQuery{Status: domain.ClientStatusLead, Limit: 10})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Ana", clients[0].Nome)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListVehicles_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"column does not exist"}`))
	})

	_, err := c.ListVehicles(context.Background(), domain.VehicleQuery{Limit: 5})
	require.Error(t, err)

	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "supabase/veiculos", ext.Service)
	assert.True(t, supabase.IsClientError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestInsertSale_PostsPayloadOnce(t *testing.T) {
	var calls atomic.Int32
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/vendas", r.URL.Path)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":91}]`))
	})

	amount := 45000.0
	when := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := c.InsertSale(context.Background(), domain.NewSale{
		VehicleID: 12,
		Valor:     &amount,
		DataVenda: when,
		CriadoEm:  when,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(91), id)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(12), body["veiculo_id"])
	assert.Equal(t, 45000.0, body["valor"])
	assert.Equal(t, "2025-03-01T10:00:00Z", body["data_venda"])
}

func TestInsertSale_NullAmount(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`[{"id":92}]`))
	})

	_, err := c.InsertSale(context.Background(), domain.NewSale{VehicleID: 1, DataVenda: time.Now(), CriadoEm: time.Now()})
	require.NoError(t, err)

	v, ok := body["valor"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestInsertClient_WriteFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.InsertClient(context.Background(), domain.NewClient{Nome: "Ana", Status: domain.ClientStatusLead, CreatedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpdateVehicleStatus_Patches(t *testing.T) {
	var gotID string
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		gotID = r.URL.Query().Get("id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.UpdateVehicleStatus(context.Background(), 12, domain.VehicleSold)
	require.NoError(t, err)
	assert.Equal(t, "eq.12", gotID)
	assert.Equal(t, domain.VehicleSold, body["status"])
}

func TestLatestMemory(t *testing.T) {
	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[{"id":40,"session_id":"s1","key":"last_vehicle_id","value":"12"}]`))
	})

	row, err := c.LatestMemory(context.Background(), "s1", "last_vehicle_id")
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, "12", row.Value)
	assert.Equal(t, []string{"eq.s1"}, query["session_id"])
	assert.Equal(t, []string{"id.desc"}, query["order"])
	assert.Equal(t, []string{"1"}, query["limit"])
}

func TestLatestMemory_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	row, err := c.LatestMemory(context.Background(), "s1", "last_vehicle_id")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestListEmbeddedMemory(t *testing.T) {
	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[
			{"id":9,"session_id":"s1","key":"last_vehicle_id","value":"42","embedding":"[0.5,0.25]"},
			{"id":3,"session_id":"s1","key":"last_client_id","value":"7","embedding":[1,0]}
		]`))
	})

	rows, err := c.ListEmbeddedMemory(context.Background(), "s1", 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(9), rows[0].ID)
	assert.Equal(t, "42", rows[0].Value)
	assert.Equal(t, []float32{0.5, 0.25}, rows[0].Embedding)
	assert.Equal(t, []float32{1, 0}, rows[1].Embedding)

	assert.Equal(t, []string{"eq.s1"}, query["session_id"])
	assert.Equal(t, []string{"not.is.null"}, query["embedding"])
	assert.Equal(t, []string{"id.desc"}, query["order"])
	assert.Equal(t, []string{"200"}, query["limit"])
}

func TestListEmbeddedMemory_BadVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"session_id":"s1","key":"k","value":"v","embedding":"(1,2)"}]`))
	})

	_, err := c.ListEmbeddedMemory(context.Background(), "s1", 10)
	assert.Error(t, err)
}

func TestInsertMemory_SendsEmbedding(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})

	err := c.InsertMemory(context.Background(), port.MemoryRow{
		SessionID: "s1", Key: "k", Value: "v", Embedding: []float32{0.5, 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", body["session_id"])
	assert.Len(t, body["embedding"], 2)
}
