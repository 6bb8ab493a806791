// Package variance applies the amount comparison rule to reconciliation
// records: statement and ledger amounts are rounded to two decimal places
// and must agree exactly, any residual is reported as statement minus
// ledger.
package variance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
)

// AmountField selects which ledger amount column statement grosses are
// compared against.
type AmountField int

const (
	// FieldGrossWithTips compares against the order total including tips.
	// Marketplace payouts include tips, so this is the default.
	FieldGrossWithTips AmountField = iota
	// FieldGrossPayment compares against the order total excluding tips.
	FieldGrossPayment
)

// ParseAmountField resolves a configuration string.
func ParseAmountField(s string) (AmountField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gross_with_tips", "with_tips":
		return FieldGrossWithTips, nil
	case "gross_payment", "without_tips":
		return FieldGrossPayment, nil
	default:
		return FieldGrossWithTips, fmt.Errorf("unknown ledger amount field %q", s)
	}
}

// String returns the configuration spelling of the field.
func (f AmountField) String() string {
	if f == FieldGrossPayment {
		return "gross_payment"
	}
	return "gross_with_tips"
}

// Of extracts the selected amount from a ledger order.
func (f AmountField) Of(order *models.LedgerOrder) decimal.Decimal {
	if order == nil {
		return decimal.Zero
	}
	if f == FieldGrossPayment {
		return order.GrossPayment
	}
	return order.GrossWithTips
}

// Apply fills in LedgerAmount, AmountStatus, and Variance on every record.
//
// Only order rows participate in the amount comparison. Refund, commission,
// and marketing rows carry amounts the ledger has no counterpart for, so
// their status is Ignore with zero variance.
func Apply(records []*models.ReconciliationRecord, field AmountField) {
	for _, r := range records {
		if r.Ledger != nil {
			r.LedgerAmount = models.Round2(field.Of(r.Ledger))
			r.HasLedgerAmount = true
		}

		if r.Statement == nil || r.Statement.Type != models.TypeOrder {
			r.AmountStatus = models.AmountIgnore
			r.Variance = decimal.Zero
			continue
		}

		stmt := models.Round2(r.Statement.Gross)
		if !r.HasLedgerAmount {
			r.AmountStatus = models.AmountNotMatched
			r.Variance = stmt
			continue
		}

		if stmt.Equal(r.LedgerAmount) {
			r.AmountStatus = models.AmountMatched
			r.Variance = decimal.Zero
		} else {
			r.AmountStatus = models.AmountNotMatched
			r.Variance = stmt.Sub(r.LedgerAmount)
		}
	}
}

// TotalVariance sums the variance across records, ignoring rows whose
// status is Ignore.
func TotalVariance(records []*models.ReconciliationRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.AmountStatus == models.AmountIgnore {
			continue
		}
		total = total.Add(r.Variance)
	}
	return models.Round2(total)
}
