package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Section markers for the multi-section statement CSV layout. Each section
// starts at a marker line, its header is the following line, and its rows
// run until the next marker or EOF.
const (
	sectionOrders    = "orders and related adjustments"
	sectionContested = "payments for contested customer refunds"
	sectionOther     = "other payments and fees"
)

// SectionedCSVExtractor parses multi-section statement CSVs. The document
// is one physical CSV file holding several logical tables, each introduced
// by a marker line.
type SectionedCSVExtractor struct {
	cfg *Config
	log logger.Logger
}

// NewSectionedCSVExtractor creates an extractor for sectioned CSV
// statements.
func NewSectionedCSVExtractor(cfg *Config) *SectionedCSVExtractor {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	return &SectionedCSVExtractor{
		cfg: cfg,
		log: cfg.Logger.WithComponent("csv_extractor"),
	}
}

// Handles reports whether the file is a canonical CSV statement for this
// provider.
func (e *SectionedCSVExtractor) Handles(filename string) bool {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return false
	}
	_, ok := ParseStatementFilename(e.cfg.Provider, filename)
	return ok
}

// Extract parses one sectioned CSV statement document.
func (e *SectionedCSVExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
	}

	name := filepath.Base(path)
	weekStart, ok := ParseStatementFilename(e.cfg.Provider, name)
	if !ok {
		return nil, apperrors.NewDocumentError(
			apperrors.DocumentContext{File: path},
			"statement filename does not carry a week-start date", nil)
	}
	weekEnd := weekStart.AddDate(0, 0, 6)

	lines := splitLines(string(raw))

	result := &Result{SourceFile: name}
	sections := []struct {
		start string
		ends  []string
	}{
		{sectionOrders, []string{sectionContested, sectionOther}},
		{sectionContested, []string{sectionOther}},
		{sectionOther, nil},
	}

	found := 0
	for _, s := range sections {
		header, rows, ok := extractSection(lines, s.start, s.ends)
		if !ok {
			e.log.WithFields(logger.Fields{"document": name, "section": s.start}).Debug("Section absent")
			continue
		}
		found++

		cols := newColumnIndex(header)
		for rowNum, row := range rows {
			tx, err := e.rowToTransaction(cols, row)
			if err != nil {
				e.log.WithError(err).WithFields(logger.Fields{
					"document": name,
					"section":  s.start,
					"row":      rowNum + 1,
				}).Warn("Statement row dropped")
				continue
			}
			if tx == nil {
				continue
			}
			tx.SourceFile = name
			tx.WindowStart = weekStart
			tx.WindowEnd = weekEnd
			result.Transactions = append(result.Transactions, tx)
		}
	}

	if found == 0 {
		return nil, apperrors.NewDocumentError(
			apperrors.DocumentContext{File: path},
			"no recognizable sections in statement CSV", nil)
	}

	result.Diagnostics.ParsedOrderCount = countOrders(result.Transactions)
	result.Diagnostics.ParsedTotalSales = sumOrderGross(result.Transactions)
	return result, nil
}

// extractSection locates a marker line, takes the next line as the header,
// and collects rows until an end trigger or EOF. Returns ok=false when the
// marker is absent.
func extractSection(lines []string, start string, ends []string) ([]string, [][]string, bool) {
	startIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), start) {
			startIdx = i
			break
		}
	}
	if startIdx == -1 || startIdx+1 >= len(lines) {
		return nil, nil, false
	}

	endIdx := len(lines)
	for i := startIdx + 2; i < len(lines); i++ {
		lower := strings.ToLower(lines[i])
		for _, trig := range ends {
			if strings.Contains(lower, trig) {
				endIdx = i
				break
			}
		}
		if endIdx != len(lines) {
			break
		}
	}

	body := strings.Join(lines[startIdx+1:endIdx], "\n")
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, false
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row inside a section: skip it, keep the rest.
			continue
		}
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, true
}

var (
	refundReasonRe = regexp.MustCompile(`(?i)refund reason:\s*([^;]+)`)
	atFaultRe      = regexp.MustCompile(`(?i)(?:party )?at fault:\s*([^;]+)`)
)

// rowToTransaction converts one section row into a statement transaction.
// Returns (nil, nil) for rows that are excluded by design.
func (e *SectionedCSVExtractor) rowToTransaction(cols *columnIndex, row []string) (*models.StatementTransaction, error) {
	activity := strings.TrimSpace(cols.value(row, "activity"))
	if activity == "" {
		return nil, fmt.Errorf("row has no activity")
	}
	// Carried-over lines from earlier invoices are already reconciled.
	if strings.HasPrefix(strings.ToLower(activity), "previous invoice:") {
		return nil, nil
	}

	orderValue, err := models.ParseMoney(cols.value(row, "order_value_gross"))
	if err != nil {
		return nil, err
	}
	commission, err := sumMoney(cols.value(row, "commission_net"), cols.value(row, "commission_vat"))
	if err != nil {
		return nil, err
	}
	adjustment, err := sumMoney(cols.value(row, "adjustment_net"), cols.value(row, "adjustment_vat"))
	if err != nil {
		return nil, err
	}

	tx := &models.StatementTransaction{
		Reference:   models.CleanOrderReference(cols.value(row, "order_number")),
		RawLocation: strings.TrimSpace(cols.value(row, "restaurant_name")),
		OrderKind:   activity,
	}
	if e.cfg.Mapping != nil {
		if mapped, ok := e.cfg.Mapping.Lookup(tx.RawLocation); ok {
			tx.Location = mapped
		}
	}

	if raw := cols.value(row, "delivery_datetime"); strings.TrimSpace(raw) != "" {
		d, err := models.ParseFlexibleDate(raw)
		if err != nil {
			return nil, err
		}
		tx.OrderDate = d
	}

	note := cols.value(row, "note")
	switch classifyActivity(activity) {
	case models.TypeOrder:
		tx.Type = models.TypeOrder
		tx.Gross = orderValue
	case models.TypeRefund:
		tx.Type = models.TypeRefund
		// Non-delivery rows report their money through the adjustment
		// columns; commission on them is part of the adjustment.
		tx.Refund = adjustment.Add(commission)
		if m := refundReasonRe.FindStringSubmatch(note); m != nil {
			tx.Reason = strings.TrimSpace(m[1])
		}
		if m := atFaultRe.FindStringSubmatch(note); m != nil {
			tx.PartyAtFault = strings.TrimSpace(m[1])
		}
	case models.TypeMarketing:
		tx.Type = models.TypeMarketing
		tx.Gross = adjustment.Add(commission)
		tx.Reason = strings.TrimSpace(note)
	default:
		tx.Type = models.TypeCommission
		tx.Gross = adjustment.Add(commission)
		tx.Reason = strings.TrimSpace(note)
	}

	return tx, nil
}

// classifyActivity maps a provider activity label to a transaction type.
func classifyActivity(activity string) models.TransactionType {
	lower := strings.ToLower(activity)
	switch {
	case lower == "delivery" || lower == "order":
		return models.TypeOrder
	case strings.Contains(lower, "refund"):
		return models.TypeRefund
	case strings.Contains(lower, "marketing"), strings.Contains(lower, "offer"),
		strings.Contains(lower, "promotion"):
		return models.TypeMarketing
	default:
		return models.TypeCommission
	}
}

// columnIndex resolves section header names case-insensitively with alias
// support, in the spirit of the ledger loader's header handling.
type columnIndex struct {
	byName map[string]int
}

// sectionColumnAliases maps logical field names to the header spellings
// seen across statement template revisions.
var sectionColumnAliases = map[string][]string{
	"restaurant_name":   {"restaurant_name", "restaurant name", "site name"},
	"order_number":      {"order_number", "order number", "order id"},
	"delivery_datetime": {"delivery_datetime_utc", "delivery datetime (utc)", "delivery datetime", "activity date"},
	"order_value_gross": {"order_value_gross", "order value (gross)", "order value", "total order value"},
	"commission_net":    {"commission_net", "commission (net)", "commission net"},
	"commission_vat":    {"commission_vat", "commission (vat)", "commission vat"},
	"adjustment_net":    {"adjustment_net", "adjustment (net)", "adjustment net", "amount (net)"},
	"adjustment_vat":    {"adjustment_vat", "adjustment (vat)", "adjustment vat", "amount (vat)"},
	"activity":          {"activity", "activity type", "description"},
	"note":              {"note", "notes", "detail"},
}

func newColumnIndex(header []string) *columnIndex {
	idx := &columnIndex{byName: make(map[string]int)}
	for i, h := range header {
		idx.byName[normalizeHeader(h)] = i
	}
	return idx
}

func (c *columnIndex) value(row []string, field string) string {
	for _, alias := range sectionColumnAliases[field] {
		if i, ok := c.byName[normalizeHeader(alias)]; ok && i < len(row) {
			return row[i]
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(strings.NewReplacer("_", " ", "(", "", ")", "").Replace(h)), "_")
}

func splitLines(s string) []string {
	s = strings.TrimPrefix(s, "\ufeff")
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var lines []string
	for _, ln := range raw {
		if strings.TrimSpace(strings.ReplaceAll(ln, ",", "")) == "" {
			continue
		}
		lines = append(lines, ln)
	}
	return lines
}

func isBlankRow(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func sumMoney(parts ...string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range parts {
		d, err := models.ParseMoney(p)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, nil
}

func countOrders(txs []*models.StatementTransaction) int {
	n := 0
	for _, tx := range txs {
		if tx.Type == models.TypeOrder {
			n++
		}
	}
	return n
}

func sumOrderGross(txs []*models.StatementTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == models.TypeOrder {
			total = total.Add(tx.Gross)
		}
	}
	return total
}
