package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// Booking errors are logged and absorbed by the simulation; configuration
// and data errors surface to the caller of a run.
var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrPositionExists    = errors.New("position_exists")
	ErrNoPosition        = errors.New("no_position")
	ErrDirectionMismatch = errors.New("direction_mismatch")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrMissingClientID   = errors.New("missing_client_id")
	ErrMissingPrice      = errors.New("missing_price")
	ErrCapitalDepleted   = errors.New("capital_depleted")
	ErrDataNotFound      = errors.New("data_not_found")
	ErrCorruptData       = errors.New("corrupt_data")
	ErrUnknownStrategy   = errors.New("unknown_strategy")
	ErrUnknownCommission = errors.New("unknown_commission")
	ErrRunNotFound       = errors.New("run_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConfigError reports an invalid configuration field. It is raised before
// any simulation state is created.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
