package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var _ port.DealershipStore = (*Client)(nil)

// --- Vehicles (veiculos) ---

// CountVehicles counts veiculos, optionally filtered by exact status.
func (c *Client) CountVehicles(ctx context.Context, status string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountVehicles")
	defer span.End()
	span.SetAttributes(attribute.String("vehicle.status", status))

	path := newQuery("veiculos").selectCols("id").eq("status", status).String()

	var n int
	err := c.run(ctx, "supabase/veiculos", func() error {
		var err error
		n, err = c.doCount(ctx, path)
		return err
	})
	return n, err
}

// ListVehicles lists veiculos, newest first.
func (c *Client) ListVehicles(ctx context.Context, q domain.VehicleQuery) ([]domain.Vehicle, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListVehicles")
	defer span.End()
	span.SetAttributes(attribute.Int("query.limit", q.Limit))

	path := newQuery("veiculos").
		selectCols("id,marca,modelo,ano,status").
		eq("status", q.Status).
		ilike("marca", q.Marca).
		ilike("modelo", q.Modelo).
		order("id.desc").
		limit(q.Limit).
		String()

	var vehicles []domain.Vehicle
	err := c.run(ctx, "supabase/veiculos", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		vehicles = nil
		if len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, &vehicles)
	})
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UpdateVehicleStatus sets veiculos.status for one id.
func (c *Client) UpdateVehicleStatus(ctx context.Context, vehicleID int64, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateVehicleStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("vehicle.id", vehicleID), attribute.String("vehicle.status", status))

	path := "veiculos?id=eq." + strconv.FormatInt(vehicleID, 10)
	return c.run(ctx, "supabase/veiculos", func() error {
		return c.doPatch(ctx, path, map[string]any{"status": status})
	})
}

// --- Clients (clientes) ---

// CountClients counts clientes, optionally filtered by exact status.
func (c *Client) CountClients(ctx context.Context, status string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountClients")
	defer span.End()

	path := newQuery("clientes").selectCols("id").eq("status", status).String()

	var n int
	err := c.run(ctx, "supabase/clientes", func() error {
		var err error
		n, err = c.doCount(ctx, path)
		return err
	})
	return n, err
}

// ListClients lists clientes, newest first.
func (c *Client) ListClients(ctx context.Context, q domain.ClientQuery) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListClients")
	defer span.End()
	span.SetAttributes(attribute.Int("query.limit", q.Limit))

	path := newQuery("clientes").
		selectCols("id,nome,telefone,email,origem,status").
		eq("status", q.Status).
		ilike("nome", q.Nome).
		ilike("origem", q.Origem).
		order("id.desc").
		limit(q.Limit).
		String()

	var clients []domain.Client
	err := c.run(ctx, "supabase/clientes", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		clients = nil
		if len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, &clients)
	})
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// InsertClient creates a clientes row and returns its id. Runs without retries.
func (c *Client) InsertClient(ctx context.Context, nc domain.NewClient) (int64, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertClient")
	defer span.End()

	payload := map[string]any{
		"nome":       nc.Nome,
		"email":      nullIfEmpty(nc.Email),
		"telefone":   nullIfEmpty(nc.Telefone),
		"status":     nc.Status,
		"created_at": nc.CreatedAt.UTC().Format(time.RFC3339),
	}

	var id int64
	err := c.runOnce(ctx, "supabase/clientes", func() error {
		body, err := c.doPost(ctx, "clientes", payload)
		if err != nil {
			return err
		}
		id, err = insertedID(body)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("supabase: client inserted", zap.Int64("client_id", id))
	return id, nil
}

// --- Sales (vendas) ---

// InsertSale creates a vendas row and returns its id. Runs without retries.
func (c *Client) InsertSale(ctx context.Context, s domain.NewSale) (int64, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertSale")
	defer span.End()
	span.SetAttributes(attribute.Int64("vehicle.id", s.VehicleID))

	payload := map[string]any{
		"veiculo_id": s.VehicleID,
		"valor":      s.Valor,
		"data_venda": s.DataVenda.UTC().Format(time.RFC3339),
		"criado_em":  s.CriadoEm.UTC().Format(time.RFC3339),
	}

	var id int64
	err := c.runOnce(ctx, "supabase/vendas", func() error {
		body, err := c.doPost(ctx, "vendas", payload)
		if err != nil {
			return err
		}
		id, err = insertedID(body)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("supabase: sale inserted", zap.Int64("sale_id", id), zap.Int64("vehicle_id", s.VehicleID))
	return id, nil
}

// runOnce is run without the retry loop, for non-idempotent writes.
func (c *Client) runOnce(ctx context.Context, service string, fn func() error) error {
	noRetry := *c
	noRetry.cfg.MaxRetries = 0
	return noRetry.run(ctx, service, fn)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
