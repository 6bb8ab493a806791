// Package matcher pairs statement transactions with ledger orders.
//
// Two strategies are supported, selected per marketplace:
//   - Full-reference matching: the statement carries the complete order
//     reference and a lookup on the normalized reference is enough.
//   - Partial-key matching: the statement only exposes a reference suffix,
//     so candidates are keyed on the last digits plus the canonical
//     location name and disambiguated by order date.
//
// After pairing, the engine derives the missing-in-statement and accrual
// rows from ledger orders the statements never mentioned.
//
// Example usage:
//
//	cfg := matcher.DefaultConfig("Deliveroo")
//	cfg.FullReference = false
//
//	engine := matcher.NewEngine(cfg)
//	result, err := engine.Reconcile(transactions, orders, stmtWindow, accrualWindow)
package matcher

import (
	"fmt"

	"statement-reconciliation-service/internal/variance"
	"statement-reconciliation-service/pkg/logger"
)

// Config controls matching behavior.
type Config struct {
	// Provider is the marketplace name, used for logging only.
	Provider string

	// FullReference selects exact-reference matching. When false the
	// partial-key strategy is used.
	FullReference bool

	// PartialDigits is how many trailing reference digits form the
	// partial key. Ignored for full-reference matching.
	PartialDigits int

	// UseLocation adds the canonical location name to the partial key.
	UseLocation bool

	// DateToleranceDays bounds how far apart the statement and ledger
	// order dates may be for a partial-key match.
	DateToleranceDays int

	// AmountField selects the ledger amount used when synthesizing
	// missing-in-statement and accrual rows.
	AmountField variance.AmountField

	Logger logger.Logger
}

// DefaultConfig returns a partial-key configuration: last four digits,
// location-scoped, one day of date tolerance.
func DefaultConfig(provider string) *Config {
	return &Config{
		Provider:          provider,
		FullReference:     false,
		PartialDigits:     4,
		UseLocation:       true,
		DateToleranceDays: 1,
		AmountField:       variance.FieldGrossWithTips,
		Logger:            logger.GetGlobalLogger(),
	}
}

// FullReferenceConfig returns a configuration for marketplaces whose
// statements carry complete order references.
func FullReferenceConfig(provider string) *Config {
	cfg := DefaultConfig(provider)
	cfg.FullReference = true
	return cfg
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("matcher config is nil")
	}
	if !c.FullReference {
		if c.PartialDigits < 1 || c.PartialDigits > 9 {
			return fmt.Errorf("partial digits must be between 1 and 9, got %d", c.PartialDigits)
		}
	}
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance must not be negative, got %d", c.DateToleranceDays)
	}
	return nil
}
