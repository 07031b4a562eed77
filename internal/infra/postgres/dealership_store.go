package postgres

import (
	"context"
	"database/sql"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var _ port.DealershipStore = (*Store)(nil)

// CountVehicles counts veiculos, optionally filtered by exact status.
func (s *Store) CountVehicles(ctx context.Context, status string) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CountVehicles")
	defer span.End()
	span.SetAttributes(attribute.String("vehicle.status", status))

	q, args := newSelect("COUNT(*)", "veiculos").eq("status", status).build()
	return s.count(ctx, "postgres/veiculos", q, args)
}

// CountClients counts clientes, optionally filtered by exact status.
func (s *Store) CountClients(ctx context.Context, status string) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CountClients")
	defer span.End()

	q, args := newSelect("COUNT(*)", "clientes").eq("status", status).build()
	return s.count(ctx, "postgres/clientes", q, args)
}

func (s *Store) count(ctx context.Context, service, q string, args []any) (int, error) {
	var n int
	err := s.run(ctx, service, true, func() error {
		return s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	})
	return n, err
}

// ListVehicles lists veiculos, newest first.
func (s *Store) ListVehicles(ctx context.Context, vq domain.VehicleQuery) ([]domain.Vehicle, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListVehicles")
	defer span.End()
	span.SetAttributes(attribute.Int("query.limit", vq.Limit))

	q, args := newSelect("id, marca, modelo, COALESCE(ano, 0), status", "veiculos").
		eq("status", vq.Status).
		ilike("marca", vq.Marca).
		ilike("modelo", vq.Modelo).
		orderBy("id DESC").
		limitTo(vq.Limit).
		build()

	var out []domain.Vehicle
	err := s.run(ctx, "postgres/veiculos", true, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var v domain.Vehicle
			if err := rows.Scan(&v.ID, &v.Marca, &v.Modelo, &v.Ano, &v.Status); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListClients lists clientes, newest first.
func (s *Store) ListClients(ctx context.Context, cq domain.ClientQuery) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListClients")
	defer span.End()
	span.SetAttributes(attribute.Int("query.limit", cq.Limit))

	q, args := newSelect("id, nome, COALESCE(email, ''), COALESCE(telefone, ''), COALESCE(origem, ''), status", "clientes").
		eq("status", cq.Status).
		ilike("nome", cq.Nome).
		ilike("origem", cq.Origem).
		orderBy("id DESC").
		limitTo(cq.Limit).
		build()

	var out []domain.Client
	err := s.run(ctx, "postgres/clientes", true, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var c domain.Client
			if err := rows.Scan(&c.ID, &c.Nome, &c.Email, &c.Telefone, &c.Origem, &c.Status); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertClient creates a clientes row and returns its id.
func (s *Store) InsertClient(ctx context.Context, nc domain.NewClient) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.InsertClient")
	defer span.End()

	const q = `INSERT INTO clientes (nome, email, telefone, status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var id int64
	err := s.run(ctx, "postgres/clientes", false, func() error {
		return s.db.QueryRowContext(ctx, q,
			nc.Nome, nullString(nc.Email), nullString(nc.Telefone), nc.Status, nc.CreatedAt.UTC(),
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("postgres: client inserted", zap.Int64("client_id", id))
	return id, nil
}

// InsertSale creates a vendas row and returns its id.
func (s *Store) InsertSale(ctx context.Context, sale domain.NewSale) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.InsertSale")
	defer span.End()
	span.SetAttributes(attribute.Int64("vehicle.id", sale.VehicleID))

	const q = `INSERT INTO vendas (veiculo_id, valor, data_venda, criado_em)
		VALUES ($1, $2, $3, $4) RETURNING id`

	var valor sql.NullFloat64
	if sale.Valor != nil {
		valor = sql.NullFloat64{Float64: *sale.Valor, Valid: true}
	}

	var id int64
	err := s.run(ctx, "postgres/vendas", false, func() error {
		return s.db.QueryRowContext(ctx, q,
			sale.VehicleID, valor, sale.DataVenda.UTC(), sale.CriadoEm.UTC(),
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("postgres: sale inserted", zap.Int64("sale_id", id), zap.Int64("vehicle_id", sale.VehicleID))
	return id, nil
}

// UpdateVehicleStatus sets veiculos.status for one id.
func (s *Store) UpdateVehicleStatus(ctx context.Context, vehicleID int64, status string) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateVehicleStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("vehicle.id", vehicleID))

	return s.run(ctx, "postgres/veiculos", true, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE veiculos SET status = $1 WHERE id = $2`, status, vehicleID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err == nil && n == 0 {
			s.logger.Warn("postgres: vehicle status update matched no rows", zap.Int64("vehicle_id", vehicleID))
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
