// Package reporter renders reconciliation results.
//
// The primary artifact is the reconciliation CSV: one row per record in a
// deterministic column and row order, so re-running a period produces a
// byte-identical file. Ledger columns the data model does not name are
// carried through as extra columns. Refund detail audit files and a
// console summary accompany the main report.
package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
)

// baseColumns is the fixed leading column order of the reconciliation
// report. Extra ledger columns follow, sorted by name.
var baseColumns = []string{
	"window_start",
	"window_end",
	"order_date",
	"order_reference",
	"location",
	"transaction_type",
	"order_kind",
	"statement_gross",
	"statement_refund",
	"refund_reason",
	"party_at_fault",
	"payment_date",
	"source_file",
	"match_category",
	"ledger_order_id",
	"ledger_amount",
	"amount_status",
	"variance",
}

// Config holds report generation options.
type Config struct {
	// Provider appears in output filenames.
	Provider string

	// IncludeExtraColumns carries unmodeled ledger columns into the
	// report.
	IncludeExtraColumns bool

	// Delimiter for CSV output.
	Delimiter rune
}

// DefaultConfig returns the standard report configuration.
func DefaultConfig(provider string) *Config {
	return &Config{
		Provider:            provider,
		IncludeExtraColumns: true,
		Delimiter:           ',',
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("report config is nil")
	}
	if c.Provider == "" {
		return fmt.Errorf("report config needs a provider name")
	}
	if c.Delimiter == 0 {
		return fmt.Errorf("report config needs a delimiter")
	}
	return nil
}

// Generator renders reconciliation reports.
type Generator struct {
	cfg *Config
}

// NewGenerator creates a report generator.
func NewGenerator(cfg *Config) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("report config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// OutputFilename names the reconciliation report for a statement window,
// e.g. "25.10.27 - 25.11.30 - Deliveroo Reconciliation.csv".
func (g *Generator) OutputFilename(window period.Window) string {
	const layout = "06.01.02"
	return fmt.Sprintf("%s - %s - %s Reconciliation.csv",
		window.Start.Format(layout), window.End.Format(layout), g.cfg.Provider)
}

// RefundDetailFilename names the audit file for one source statement,
// e.g. "25.10.27 - Just Eat Statement_RefundDetails.csv".
func RefundDetailFilename(sourceFile string) string {
	stem := sourceFile
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	return stem + "_RefundDetails.csv"
}

// WriteCSV renders the reconciliation report. Records are sorted by
// window start, then reference, then transaction type, so output is
// stable across runs.
func (g *Generator) WriteCSV(w io.Writer, records []*models.ReconciliationRecord) error {
	sorted := make([]*models.ReconciliationRecord, len(records))
	copy(sorted, records)
	sortRecords(sorted)

	extra := g.extraColumns(sorted)
	header := append(append([]string{}, baseColumns...), extra...)

	cw := csv.NewWriter(w)
	cw.Comma = g.cfg.Delimiter
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, r := range sorted {
		if err := cw.Write(g.recordRow(r, extra)); err != nil {
			return fmt.Errorf("write report row for %s: %w", r.Reference(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRefundDetails renders the refund audit rows for one statement.
func (g *Generator) WriteRefundDetails(w io.Writer, details []extract.RefundDetail) error {
	cw := csv.NewWriter(w)
	cw.Comma = g.cfg.Delimiter
	if err := cw.Write([]string{"description", "amount", "reason", "order_reference", "outside_scope", "source_file"}); err != nil {
		return fmt.Errorf("write refund detail header: %w", err)
	}
	for _, d := range details {
		row := []string{
			d.Description,
			d.Amount.StringFixed(2),
			d.Reason,
			d.OrderRef,
			fmt.Sprintf("%t", d.OutsideScope),
			d.SourceFile,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write refund detail row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary renders a human-readable run summary.
func (g *Generator) WriteSummary(w io.Writer, summary matcher.Summary, totalVariance string) error {
	lines := []string{
		fmt.Sprintf("Provider:             %s", g.cfg.Provider),
		fmt.Sprintf("Statement rows:       %d", summary.StatementRows),
		fmt.Sprintf("Ledger orders:        %d", summary.LedgerOrders),
		fmt.Sprintf("Matched:              %d", summary.Matched),
		fmt.Sprintf("Not matched:          %d", summary.NotMatched),
		fmt.Sprintf("Missing in statement: %d", summary.MissingInStatement),
		fmt.Sprintf("Accrual:              %d", summary.Accrual),
		fmt.Sprintf("Refund rows:          %d", summary.Refunds),
		fmt.Sprintf("Total variance:       %s", totalVariance),
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func sortRecords(records []*models.ReconciliationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		as, bs := a.Statement, b.Statement
		if as != nil && bs != nil && !as.WindowStart.Equal(bs.WindowStart) {
			return as.WindowStart.Before(bs.WindowStart)
		}
		if a.Reference() != b.Reference() {
			return a.Reference() < b.Reference()
		}
		if as != nil && bs != nil {
			return as.Type < bs.Type
		}
		return false
	})
}

// extraColumns collects unmodeled ledger column names across all records.
func (g *Generator) extraColumns(records []*models.ReconciliationRecord) []string {
	if !g.cfg.IncludeExtraColumns {
		return nil
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if r.Ledger == nil {
			continue
		}
		for name := range r.Ledger.Extra {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Generator) recordRow(r *models.ReconciliationRecord, extra []string) []string {
	tx := r.Statement
	row := make([]string, 0, len(baseColumns)+len(extra))

	row = append(row,
		formatDate(tx.WindowStart),
		formatDate(tx.WindowEnd),
		formatDate(tx.OrderDate),
		tx.Reference,
		tx.Location,
		string(tx.Type),
		tx.OrderKind,
		tx.Gross.StringFixed(2),
		tx.Refund.StringFixed(2),
		tx.Reason,
		tx.PartyAtFault,
		formatDate(tx.PaymentDate),
		tx.SourceFile,
		string(r.Category),
	)

	if r.Ledger != nil {
		row = append(row, r.Ledger.OrderID)
	} else {
		row = append(row, "")
	}
	if r.HasLedgerAmount {
		row = append(row, r.LedgerAmount.StringFixed(2))
	} else {
		row = append(row, "")
	}
	row = append(row, string(r.AmountStatus), r.Variance.StringFixed(2))

	for _, name := range extra {
		if r.Ledger != nil {
			row = append(row, r.Ledger.Extra[name])
		} else {
			row = append(row, "")
		}
	}
	return row
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
