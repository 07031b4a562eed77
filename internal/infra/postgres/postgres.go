// Package postgres implements the dealership and memory stores over a direct
// PostgreSQL connection (lib/pq). It is the alternative to the Supabase
// PostgREST adapter when DATA_BACKEND=postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/resilience"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

// Open connects to the database and verifies the connection with a ping.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements port.DealershipStore and port.MemoryStore.
type Store struct {
	db     *sql.DB
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{db: db, cb: cb, cfg: cfg, logger: logger}
}

// IsClientError reports errors caused by the statement itself (constraint
// violations, bad input, undefined columns). They are not retried and do not
// trip the breaker.
func IsClientError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22", "23", "42":
		return true
	}
	return false
}

// run executes fn behind the breaker with retries, mapping failures to
// domain errors.
func (s *Store) run(ctx context.Context, service string, retry bool, fn func() error) error {
	cfg := s.cfg
	if !retry {
		cfg.MaxRetries = 0
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			err := fn()
			if IsClientError(err) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	if err == nil {
		return nil
	}
	if resilience.IsBreakerOpen(err) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	s.logger.Warn("postgres: operation failed", zap.String("service", service), zap.Error(err))
	return &domain.ErrExternalService{Service: service, Err: err}
}

// Ping checks connectivity for /healthz.
func (s *Store) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Postgres.Ping")
	defer span.End()

	if err := s.db.PingContext(ctx); err != nil {
		return &domain.ErrExternalService{Service: "postgres/ping", Err: err}
	}
	return nil
}
