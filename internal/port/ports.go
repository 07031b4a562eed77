// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"
)

// DealershipStore is the slice of the dealership database the assistant
// touches: counting and listing vehicles and leads, inserting clients and
// sales, and flipping a vehicle status. Implemented by the Supabase and
// Postgres adapters.
type DealershipStore interface {
	CountVehicles(ctx context.Context, status string) (int, error)
	ListVehicles(ctx context.Context, q domain.VehicleQuery) ([]domain.Vehicle, error)

	CountClients(ctx context.Context, status string) (int, error)
	ListClients(ctx context.Context, q domain.ClientQuery) ([]domain.Client, error)
	InsertClient(ctx context.Context, c domain.NewClient) (int64, error)

	InsertSale(ctx context.Context, s domain.NewSale) (int64, error)
	UpdateVehicleStatus(ctx context.Context, vehicleID int64, status string) error

	Ping(ctx context.Context) error
}

// MemoryRow is one persisted session memory entry.
type MemoryRow struct {
	ID        int64
	SessionID string
	Key       string
	Value     string
	Embedding []float32
	CreatedAt time.Time
}

// MemoryStore persists append-only session memory rows.
type MemoryStore interface {
	InsertMemory(ctx context.Context, row MemoryRow) error
	// LatestMemory returns the newest row for (sessionID, key) or nil.
	LatestMemory(ctx context.Context, sessionID, key string) (*MemoryRow, error)
	// ListEmbeddedMemory returns up to limit rows of the session that carry
	// an embedding, newest first.
	ListEmbeddedMemory(ctx context.Context, sessionID string, limit int) ([]MemoryRow, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}
