// Package models defines the core data structures shared across the
// reconciliation pipeline: statement transactions extracted from marketplace
// documents, ledger orders loaded from accounting exports, and the merged
// reconciliation records the reporter writes out.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies what kind of money movement a statement row
// represents.
type TransactionType string

const (
	// TypeOrder is a payment for a single customer order.
	TypeOrder TransactionType = "Order"
	// TypeRefund is money returned to a customer, referencing an order.
	TypeRefund TransactionType = "Refund"
	// TypeCommission is the provider's aggregated commission charge.
	TypeCommission TransactionType = "Commission"
	// TypeMarketing is an aggregated marketing or promotional charge.
	TypeMarketing TransactionType = "Marketing"
)

// IsValid reports whether the transaction type is one of the known values.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeOrder, TypeRefund, TypeCommission, TypeMarketing:
		return true
	}
	return false
}

// MatchCategory classifies how a reconciliation record came to exist.
type MatchCategory string

const (
	// CategoryMatched means the statement transaction was joined to a
	// ledger order.
	CategoryMatched MatchCategory = "Matched"
	// CategoryNotMatched means the statement transaction found no ledger
	// counterpart.
	CategoryNotMatched MatchCategory = "Not Matched"
	// CategoryMissingInStatement means a completed ledger order inside the
	// statement window never appeared on any statement.
	CategoryMissingInStatement MatchCategory = "Missing in Statement"
	// CategoryAccrual means a completed ledger order falls after statement
	// coverage ends but inside the accounting period.
	CategoryAccrual MatchCategory = "Accrual"
	// CategoryCommission tags the aggregated commission row.
	CategoryCommission MatchCategory = "Commission"
	// CategoryMarketing tags the aggregated marketing row.
	CategoryMarketing MatchCategory = "Marketing"
)

// AmountStatus is the outcome of the amount comparison on a record.
type AmountStatus string

const (
	// AmountMatched means both sides are equal after rounding to 2dp.
	AmountMatched AmountStatus = "Matched"
	// AmountNotMatched means the rounded sides differ.
	AmountNotMatched AmountStatus = "Not Matched"
	// AmountIgnore marks rows whose amounts are not comparable
	// (refunds, aggregates, rows with no statement side).
	AmountIgnore AmountStatus = "Ignore"
)

// StatementTransaction is a single row extracted from a marketplace
// statement document, normalized to a provider-independent shape.
type StatementTransaction struct {
	// Reference is the provider's order reference as printed on the
	// statement. For partial-key providers this may be a truncated form.
	Reference string
	// Location is the canonical ledger location name after mapping.
	// Empty for providers that match on the full reference alone.
	Location string
	// RawLocation is the provider's own location label before mapping.
	RawLocation string
	// Type classifies the row.
	Type TransactionType
	// OrderKind is the provider's order-type token (e.g. Delivery),
	// carried through for reporting.
	OrderKind string
	// Gross is the statement-side gross amount for the row.
	Gross decimal.Decimal
	// Refund is the refund amount associated with the row, negative by
	// convention. Zero for non-refund rows.
	Refund decimal.Decimal
	// OrderDate is the order or activity date printed on the statement.
	OrderDate time.Time
	// WindowStart and WindowEnd bound the statement document's own
	// coverage week.
	WindowStart time.Time
	WindowEnd   time.Time
	// PaymentDate is the date the provider says the statement was or will
	// be paid.
	PaymentDate time.Time
	// Reason carries refund or adjustment reasons, joined with "; " when
	// several lines were aggregated into one row.
	Reason string
	// PartyAtFault records who the provider blames for a refund.
	PartyAtFault string
	// SourceFile is the statement document this row came from.
	SourceFile string
}

// PartialReference returns the last n digits of the cleaned reference,
// or the whole cleaned reference when it is shorter than n.
func (t *StatementTransaction) PartialReference(n int) string {
	ref := CleanOrderReference(t.Reference)
	if len(ref) <= n {
		return ref
	}
	return ref[len(ref)-n:]
}

// LedgerOrder is one order row from the internal accounting ledger export.
type LedgerOrder struct {
	// OrderID is the internal ledger order identifier.
	OrderID string
	// OrderIDObfuscated is the external-safe form of OrderID.
	OrderIDObfuscated string
	// MarketplaceRef is the provider-side order reference, already
	// cleaned (digits only, no trailing ".0").
	MarketplaceRef string
	// Location is the canonical location name.
	Location string
	// Vendor is the marketplace vendor the order belongs to.
	Vendor string
	// Completed reports whether the order reached a completed state.
	Completed bool
	// OrderDate is the ledger's order creation day.
	OrderDate time.Time
	// GrossPayment is the total payment including tax, excluding tips.
	GrossPayment decimal.Decimal
	// GrossWithTips is the total payment including tax and tips.
	GrossWithTips decimal.Decimal
	// Extra preserves ledger columns the loader does not model
	// explicitly, keyed by normalized header name. They are appended to
	// the report unchanged so upstream schema additions survive.
	Extra map[string]string
}

// PartialKey returns the matching key used by partial-reference providers:
// the last n digits of the marketplace reference plus the location name.
func (o *LedgerOrder) PartialKey(n int) (string, string) {
	ref := o.MarketplaceRef
	if len(ref) > n {
		ref = ref[len(ref)-n:]
	}
	return ref, o.Location
}

// ReconciliationRecord is one output row: a statement transaction, the
// ledger order it joined to (if any), and the comparison verdict.
type ReconciliationRecord struct {
	Statement *StatementTransaction
	Ledger    *LedgerOrder
	// Category records how the join resolved.
	Category MatchCategory
	// LedgerAmount is the ledger-side amount selected for comparison
	// (provider config decides which ledger field feeds it).
	LedgerAmount decimal.Decimal
	// HasLedgerAmount distinguishes a genuine zero from "no ledger side".
	HasLedgerAmount bool
	// AmountStatus and Variance are filled by the variance calculator.
	AmountStatus AmountStatus
	Variance     decimal.Decimal
}

// Reference returns the best available order reference for sorting and
// completeness checks: the statement reference when present, otherwise the
// ledger marketplace reference.
func (r *ReconciliationRecord) Reference() string {
	if r.Statement != nil && r.Statement.Reference != "" {
		return r.Statement.Reference
	}
	if r.Ledger != nil {
		return r.Ledger.MarketplaceRef
	}
	return ""
}

var (
	trailingDecimalZero = regexp.MustCompile(`\.0+$`)
	nonDigits           = regexp.MustCompile(`\D`)
	moneyJunk           = strings.NewReplacer("£", "", "$", "", "€", "", ",", "", "–", "-", "−", "-")
)

// CleanOrderReference normalizes an order reference for joining: trims
// whitespace, strips a float-export artifact like "12345.0", and drops every
// non-digit character.
func CleanOrderReference(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = trailingDecimalZero.ReplaceAllString(ref, "")
	return nonDigits.ReplaceAllString(ref, "")
}

// ParseMoney converts a statement or ledger money string to a decimal.
// Currency symbols and thousands separators are stripped and unicode minus
// variants normalized first. Empty strings parse as zero.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(moneyJunk.Replace(strings.TrimSpace(s)))
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	// Accounting negatives: (12.34) means -12.34.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Round2 rounds to two decimal places, half away from zero, the rounding
// used everywhere amounts are compared or reported.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// dateFormats lists the layouts seen across provider documents and ledger
// exports, tried in order.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/06",
	"2 Jan 2006",
	"2 January 2006",
	"02 Jan 2006",
	time.RFC3339,
}

// ParseFlexibleDate parses a date in any of the known layouts. The "06"
// layout resolves two-digit years the way time.Parse does, into 1969-2068.
// The result is truncated to a UTC day.
func ParseFlexibleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// Day truncates a time to midnight UTC, keeping only the calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseBool interprets the boolean spellings ledger exports use.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true
	}
	return false
}
