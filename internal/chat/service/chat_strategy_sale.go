// Package service — chat_strategy_sale.go implementa a strategy de
// registro de venda (REGISTER_SALE).
//
// ============================================================
// REGISTRO DE VENDA — máquina de estados
// ============================================================
//
//	Sem veículo na mensagem:
//	  → busca last_vehicle_id na memória da sessão
//	  → achou: pede confirmação (CONFIRM|{...} com sale_amount null)
//	  → não achou: pede o ID do veículo (nenhuma escrita)
//
//	Veículo sem valor:
//	  → pede confirmação com sale_amount null
//
//	Veículo + valor:
//	  → INSERT em vendas, depois UPDATE veiculos.status = "Vendido"
//
// As duas escritas NÃO são transacionais. Se o UPDATE falhar depois do
// INSERT, a venda existe e o veículo continua disponível: o erro volta como
// ErrPartialWrite e é logado com os dois ids para reconciliação manual.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	mainport "github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// SaleExecutor — as duas escritas da venda
// ============================================================

// SaleExecutor performs a sale. It is shared by the dispatcher and by the
// confirmation replay so both produce the same side effects.
type SaleExecutor struct {
	store   mainport.DealershipStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSaleExecutor creates the executor that inserts the sale and marks the
// vehicle as sold.
func NewSaleExecutor(store mainport.DealershipStore, metrics *observability.Metrics, logger *zap.Logger) *SaleExecutor {
	return &SaleExecutor{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Execute inserts the sale and flips the vehicle to Vendido. It returns the
// new sale id. A failure on the second write yields *ErrPartialWrite.
func (e *SaleExecutor) Execute(ctx context.Context, p domain.PendingAction) (int64, error) {
	ctx, span := chatTracer.Start(ctx, "SaleExecutor.Execute")
	defer span.End()
	span.SetAttributes(attribute.Int64("vehicle.id", p.VehicleID))

	now := e.now()
	saleDate := now
	if p.SaleDate != "" {
		if t, err := parseSaleDate(p.SaleDate); err == nil {
			saleDate = t
		} else {
			e.logger.Warn("unparseable sale_date, using now",
				zap.String("sale_date", p.SaleDate), zap.Error(err))
		}
	}

	saleID, err := e.store.InsertSale(ctx, maindomain.NewSale{
		VehicleID: p.VehicleID,
		Valor:     p.SaleAmount,
		DataVenda: saleDate,
		CriadoEm:  now,
	})
	if err != nil {
		return 0, err
	}

	if err := e.store.UpdateVehicleStatus(ctx, p.VehicleID, maindomain.VehicleSold); err != nil {
		e.metrics.IncrPartialWrite()
		e.logger.Error("sale recorded but vehicle status update failed",
			zap.String("step", "update_vehicle_status"),
			zap.Int64("sale_id", saleID),
			zap.Int64("vehicle_id", p.VehicleID),
			zap.Error(err),
		)
		return saleID, &maindomain.ErrPartialWrite{
			Step:      "update_vehicle_status",
			SaleID:    saleID,
			VehicleID: p.VehicleID,
			Err:       err,
		}
	}

	e.logger.Info("sale registered",
		zap.Int64("sale_id", saleID),
		zap.Int64("vehicle_id", p.VehicleID),
	)
	return saleID, nil
}

var saleDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseSaleDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range saleDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ============================================================
// SaleStrategy — REGISTER_SALE
// ============================================================

type SaleStrategy struct {
	sales  *SaleExecutor
	memory *SessionMemory
	logger *zap.Logger
}

// NewSaleStrategy creates the REGISTER_SALE strategy.
func NewSaleStrategy(sales *SaleExecutor, memory *SessionMemory, logger *zap.Logger) *SaleStrategy {
	return &SaleStrategy{sales: sales, memory: memory, logger: logger}
}

func (s *SaleStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentRegisterSale
}

func (s *SaleStrategy) Handle(ctx context.Context, res domain.IntentResult, sessionID string) (*domain.ActionOutcome, error) {
	f, _ := res.Entities.(domain.SaleFields)

	saleDate := f.SaleDate
	if saleDate == "" {
		saleDate = s.sales.now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	// 1. sem veículo → tenta a memória da sessão
	if f.VehicleID == 0 {
		last := s.memory.Load(ctx, sessionID, domain.MemoryLastVehicleID)
		if last == nil {
			return domain.OK("Informe o ID do veículo para registrar a venda."), nil
		}
		id, err := strconv.ParseInt(*last, 10, 64)
		if err != nil || id <= 0 {
			s.logger.Warn("invalid last_vehicle_id in memory", zap.String("value", *last))
			return domain.OK("Informe o ID do veículo para registrar a venda."), nil
		}

		pending := domain.PendingAction{
			Version:    domain.PendingActionVersion,
			Action:     domain.ActionRegisterSale,
			VehicleID:  id,
			SaleAmount: f.SaleAmount,
			SaleDate:   saleDate,
			QuotedID:   true,
		}
		text := fmt.Sprintf("Confirma venda do veículo %d? Responda: %s", id, domain.EncodeConfirmation(pending))
		return domain.Confirm(text, pending), nil
	}

	// 2. veículo sem valor → confirmação
	if f.SaleAmount == nil {
		pending := domain.PendingAction{
			Version:   domain.PendingActionVersion,
			Action:    domain.ActionRegisterSale,
			VehicleID: f.VehicleID,
			SaleDate:  saleDate,
		}
		text := fmt.Sprintf("Confirma registrar a venda do veículo %d? Responda: %s", f.VehicleID, domain.EncodeConfirmation(pending))
		return domain.Confirm(text, pending), nil
	}

	// 3. tudo presente → executa
	saleID, err := s.sales.Execute(ctx, domain.PendingAction{
		Version:    domain.PendingActionVersion,
		Action:     domain.ActionRegisterSale,
		VehicleID:  f.VehicleID,
		SaleAmount: f.SaleAmount,
		SaleDate:   saleDate,
	})
	if err != nil {
		return nil, err
	}
	return domain.OK(fmt.Sprintf("Venda registrada (id: %d).", saleID)), nil
}
