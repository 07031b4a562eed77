package domain

import "fmt"

// Error types for consistent error handling across the assistant.

// ErrExternalService indicates a failure in an external service call
// (Supabase, Postgres, Redis).
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates an invalid bearer token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrOracle is returned by the language model adapter. Status carries the
// provider's HTTP-like status code (0 when unknown).
type ErrOracle struct {
	Status int
	Err    error
}

func (e *ErrOracle) Error() string {
	return fmt.Sprintf("oracle error [status=%d]: %v", e.Status, e.Err)
}

func (e *ErrOracle) Unwrap() error {
	return e.Err
}

// RateLimited reports a 429 (quota exhausted).
func (e *ErrOracle) RateLimited() bool { return e.Status == 429 }

// ModelNotFound reports a 404 (model name unknown to the provider).
func (e *ErrOracle) ModelNotFound() bool { return e.Status == 404 }

// ErrPartialWrite reports a sale that was inserted while the vehicle status
// update failed. The two rows are out of sync until reconciled.
type ErrPartialWrite struct {
	Step      string // passo que falhou, ex: "update_vehicle_status"
	SaleID    int64
	VehicleID int64
	Err       error
}

func (e *ErrPartialWrite) Error() string {
	return fmt.Sprintf("partial write at %s: sale %d recorded but vehicle %d not updated: %v", e.Step, e.SaleID, e.VehicleID, e.Err)
}

func (e *ErrPartialWrite) Unwrap() error {
	return e.Err
}
