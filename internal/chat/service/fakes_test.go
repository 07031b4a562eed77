package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/service"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// fakeStore — DealershipStore em memória
// ============================================================

type fakeStore struct {
	mu sync.Mutex

	vehicleCount int
	leadCount    int
	vehicles     []maindomain.Vehicle
	leads        []maindomain.Client

	countErr     error
	listErr      error
	insertErr    error
	updateErr    error
	panicOnCount bool

	countedStatus []string
	vehicleQuery  *maindomain.VehicleQuery
	clientQuery   *maindomain.ClientQuery
	clients       []maindomain.NewClient
	sales         []maindomain.NewSale
	updates       []int64
	nextID        int64
}

var _ port.DealershipStore = (*fakeStore)(nil)

func (f *fakeStore) CountVehicles(_ context.Context, status string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnCount {
		panic("store exploded")
	}
	f.countedStatus = append(f.countedStatus, status)
	return f.vehicleCount, f.countErr
}

func (f *fakeStore) ListVehicles(_ context.Context, q maindomain.VehicleQuery) ([]maindomain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicleQuery = &q
	return f.vehicles, f.listErr
}

func (f *fakeStore) CountClients(_ context.Context, status string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countedStatus = append(f.countedStatus, status)
	return f.leadCount, f.countErr
}

func (f *fakeStore) ListClients(_ context.Context, q maindomain.ClientQuery) ([]maindomain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientQuery = &q
	return f.leads, f.listErr
}

func (f *fakeStore) InsertClient(_ context.Context, c maindomain.NewClient) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.clients = append(f.clients, c)
	f.nextID++
	return 100 + f.nextID, nil
}

func (f *fakeStore) InsertSale(_ context.Context, s maindomain.NewSale) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.sales = append(f.sales, s)
	f.nextID++
	return 500 + f.nextID, nil
}

func (f *fakeStore) UpdateVehicleStatus(_ context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if status == maindomain.VehicleSold {
		f.updates = append(f.updates, id)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sales) + len(f.updates) + len(f.clients)
}

// ============================================================
// fakeMemoryStore — tabela memory em memória
// ============================================================

type fakeMemoryStore struct {
	mu        sync.Mutex
	rows      []port.MemoryRow
	insertErr error
	loadErr   error
	listErr   error
	loads     int
	lists     int
}

var _ port.MemoryStore = (*fakeMemoryStore)(nil)

func (f *fakeMemoryStore) InsertMemory(_ context.Context, row port.MemoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	row.ID = int64(len(f.rows) + 1)
	row.CreatedAt = time.Now()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeMemoryStore) LatestMemory(_ context.Context, sessionID, key string) (*port.MemoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].SessionID == sessionID && f.rows[i].Key == key {
			r := f.rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeMemoryStore) ListEmbeddedMemory(_ context.Context, sessionID string, limit int) ([]port.MemoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []port.MemoryRow
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].SessionID == sessionID && len(f.rows[i].Embedding) > 0 {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeMemoryStore) value(sessionID, key string) string {
	r, _ := f.LatestMemory(context.Background(), sessionID, key)
	if r == nil {
		return ""
	}
	return r.Value
}

// ============================================================
// fakeOracle — modelo de linguagem roteirizado
// ============================================================

type fakeOracle struct {
	mu sync.Mutex

	classifyReply string
	classifyErr   error
	generateReply string
	generateErr   error

	classifyCalls int
	generateCalls int
	lastSystem    string
	lastUser      string
}

func (f *fakeOracle) Classify(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	return f.classifyReply, f.classifyErr
}

func (f *fakeOracle) Generate(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastSystem, f.lastUser = system, user
	return f.generateReply, f.generateErr
}

// ============================================================
// fakeEmbedder / fakeIndex — memória semântica
// ============================================================

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeIndex struct {
	mu    sync.Mutex
	added []string
	ids   []string
	hits  []domain.MemoryHit
}

func (f *fakeIndex) Add(_ context.Context, _, id, key, value string, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, key+"="+value)
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, limit int) ([]domain.MemoryHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.MemoryHit(nil), f.hits...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================
// harness — monta o pipeline completo com fakes
// ============================================================

type harness struct {
	store   *fakeStore
	memory  *fakeMemoryStore
	oracle  *fakeOracle
	mem     *service.SessionMemory
	svc     *service.ChatService
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   &fakeStore{},
		memory:  &fakeMemoryStore{},
		oracle:  &fakeOracle{},
		metrics: observability.NewMetrics(),
	}
	logger := zap.NewNop()

	h.mem = service.NewSessionMemory(h.memory, h.metrics, logger)
	sales := service.NewSaleExecutor(h.store, h.metrics, logger)
	h.svc = service.NewChatService(service.Deps{
		Shortcuts:  service.NewShortcuts(h.store, h.mem, h.metrics, logger),
		Extractor:  service.NewExtractor(h.oracle, logger),
		Dispatcher: service.NewDefaultDispatcher(h.store, h.mem, sales, logger),
		Sales:      sales,
		Memory:     h.mem,
		Oracle:     h.oracle,
	}, 0, h.metrics, logger)
	return h
}

func (h *harness) respond(msg string) string {
	return h.svc.Respond(context.Background(), domain.TurnRequest{Message: msg, SessionID: "sess-1"})
}

func ptr(v float64) *float64 { return &v }

func memoryRow(sessionID, key, value string) port.MemoryRow {
	return port.MemoryRow{SessionID: sessionID, Key: key, Value: value}
}
