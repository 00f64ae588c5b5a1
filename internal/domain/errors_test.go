package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "initial_capital must be > 0"}
	if err.Error() != "initial_capital must be > 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "initial_capital must be > 0")
	}
}

func TestConfigError_UnwrapsSentinel(t *testing.T) {
	err := fmt.Errorf("building run: %w", &ConfigError{Field: "commission.type", Err: ErrUnknownCommission})

	if !errors.Is(err, ErrUnknownCommission) {
		t.Error("errors.Is should see through ConfigError to the sentinel")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatal("errors.As should find the ConfigError")
	}
	if cfgErr.Field != "commission.type" {
		t.Errorf("Field = %q, want %q", cfgErr.Field, "commission.type")
	}
	want := "invalid commission.type: unknown_commission"
	if cfgErr.Error() != want {
		t.Errorf("Error() = %q, want %q", cfgErr.Error(), want)
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInsufficientFunds,
		ErrPositionExists,
		ErrNoPosition,
		ErrDirectionMismatch,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrMissingClientID,
		ErrMissingPrice,
		ErrCapitalDepleted,
		ErrDataNotFound,
		ErrCorruptData,
		ErrUnknownStrategy,
		ErrUnknownCommission,
		ErrRunNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
