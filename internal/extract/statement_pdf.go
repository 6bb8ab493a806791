package extract

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// StatementPDFExtractor parses free-text statement PDFs: a header with
// summary figures, a table of order lines, and an adjustments block holding
// commission, marketing, and per-order compensation entries.
//
// The layout parsing is intentionally template-specific. Provider PDF
// templates change rarely, and when they do the anchors and patterns here
// must be revisited against real documents.
type StatementPDFExtractor struct {
	cfg *Config
	log logger.Logger

	// readText is swappable so parsing can be tested on captured text
	// without binary PDF fixtures.
	readText func(path string) ([]string, error)
}

// NewStatementPDFExtractor creates an extractor for free-text PDF
// statements.
func NewStatementPDFExtractor(cfg *Config) *StatementPDFExtractor {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	return &StatementPDFExtractor{
		cfg:      cfg,
		log:      cfg.Logger.WithComponent("pdf_extractor"),
		readText: readPDFText,
	}
}

// Handles reports whether the file is a canonical PDF statement for this
// provider.
func (e *StatementPDFExtractor) Handles(filename string) bool {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return false
	}
	_, ok := ParseStatementFilename(e.cfg.Provider, filename)
	return ok
}

// Extract parses one PDF statement document.
func (e *StatementPDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := e.readText(path)
	if err != nil {
		return nil, apperrors.NewDocumentError(
			apperrors.DocumentContext{File: path},
			"statement PDF text could not be extracted", err)
	}

	result, err := e.parseStatementText(filepath.Base(path), pages)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Header patterns. The period appears either in long date form
// ("27 October 2025 - 2 November 2025") or slash form, depending on the
// template revision.
var (
	periodLongRe  = regexp.MustCompile(`(?i)(\d{1,2}\s+[A-Za-z]{3,}\s+\d{4})\s*(?:[-–]|to)+\s*(\d{1,2}\s+[A-Za-z]{3,}\s+\d{4})`)
	periodSlashRe = regexp.MustCompile(`(?i)(\d{1,2}/\d{1,2}/\d{2,4})\s*(?:[-–]|to)+\s*(\d{1,2}/\d{1,2}/\d{2,4})`)

	orderCountRe  = regexp.MustCompile(`(?i)Number\s+of\s+orders\s+([\d,]+)`)
	totalSalesRe  = regexp.MustCompile(`(?is)Total\s+sales.*?£\s*([\d,]+\.\d{2})`)
	netPayableRe  = regexp.MustCompile(`(?is)You\s+will\s+receive.*?£\s*([\d,]+\.\d{2})`)
	paymentDateRe = regexp.MustCompile(`(?i)paid\s+on\s+(\d{1,2}\s+[A-Za-z]{3,}\s+\d{4})`)

	// Order table lines: sequence number, DD/MM/YY date, order reference,
	// an order-type token, then money columns of which the last is the
	// line total.
	orderLineRe = regexp.MustCompile(`(?m)^\s*\d+\s+(\d{2}/\d{2}/\d{2})\s+(\d+)\s+([A-Za-z/&\-]+)\s+(.*)$`)
	moneyTailRe = regexp.MustCompile(`£\s*([\d.,]+)`)

	// Adjustment block amounts: optionally signed pound values.
	signedMoneyRe = regexp.MustCompile(`([\-]?)\s*£\s*([0-9]{1,3}(?:,[0-9]{3})*\.[0-9]{2})`)
	// A line that is nothing but a money value.
	moneyOnlyRe = regexp.MustCompile(`^[–\-]?\s*£\s*[0-9]{1,3}(?:,[0-9]{3})*\.[0-9]{2}$`)
)

// Classification patterns for adjustment descriptions. Each yields a reason
// and, where the provider prints one, the order reference the adjustment
// belongs to.
var (
	compensationQueryRe = regexp.MustCompile(`(?i)Customer compensation for (.*?) query (\d+)`)
	cancelledOrderRe    = regexp.MustCompile(`(?i)Restaurant\s+Comp\s*[-–]?\s*Cancelled\s+Order\s*[-–\s]*?(\d+)`)
	recookRe            = regexp.MustCompile(`(?i)Order\s*ID[:\s]*([0-9]+)\s*[-–]\s*Partner\s+Compensation\s+Recook`)
	compensationCredRe  = regexp.MustCompile(`(?i)Order\s*ID[:\s]*(\d+)\s*[-–]\s*Customer\s+Compensation\s+Credit`)
)

const outsideScopeMarker = "Outside the scope of VAT"

func (e *StatementPDFExtractor) parseStatementText(name string, pages []string) (*Result, error) {
	fullText := strings.Join(pages, "\n")

	stmtStart, stmtEnd, ok := findStatementPeriod(pages)
	if !ok {
		return nil, apperrors.NewDocumentError(
			apperrors.DocumentContext{File: name},
			"statement period not found in PDF header", nil)
	}

	result := &Result{SourceFile: name}
	result.Diagnostics = e.parseHeaderFigures(fullText)

	var paymentDate time.Time
	if m := paymentDateRe.FindStringSubmatch(fullText); m != nil {
		if d, err := models.ParseFlexibleDate(m[1]); err == nil {
			paymentDate = d
		}
	}

	// Order table.
	for _, m := range orderLineRe.FindAllStringSubmatch(fullText, -1) {
		amts := moneyTailRe.FindAllStringSubmatch(m[4], -1)
		if len(amts) == 0 {
			continue
		}
		total, err := models.ParseMoney(amts[len(amts)-1][1])
		if err != nil {
			continue
		}
		orderDate, err := models.ParseFlexibleDate(m[1])
		if err != nil {
			continue
		}
		result.Transactions = append(result.Transactions, &models.StatementTransaction{
			Reference:   m[2],
			Type:        models.TypeOrder,
			OrderKind:   m[3],
			Gross:       total,
			OrderDate:   orderDate,
			WindowStart: stmtStart,
			WindowEnd:   stmtEnd,
			PaymentDate: paymentDate,
			SourceFile:  name,
		})
	}
	result.Diagnostics.ParsedOrderCount = countOrders(result.Transactions)
	result.Diagnostics.ParsedTotalSales = sumOrderGross(result.Transactions)

	// Adjustments block.
	segment := e.segmentText(fullText)
	details := buildAdjustmentRows(extractDescriptions(segment), e.extractAmounts(segment), name)
	result.RefundDetails = details

	refundRows := groupRefunds(details)
	commissionTotal, marketingTotal := aggregateCharges(details)

	for _, ref := range sortedRefundKeys(refundRows) {
		g := refundRows[ref]
		result.Transactions = append(result.Transactions, &models.StatementTransaction{
			Reference:   ref,
			Type:        models.TypeRefund,
			OrderKind:   "Refund",
			Refund:      g.amount.Neg(),
			Reason:      g.reason,
			OrderDate:   stmtStart,
			WindowStart: stmtStart,
			WindowEnd:   stmtEnd,
			PaymentDate: paymentDate,
			SourceFile:  name,
		})
	}

	// Commission and marketing are printed tax-exclusive; gross them up
	// and flip the sign so they read as charges against the payout.
	uplift := decimal.NewFromInt(1).Add(e.cfg.TaxRate)
	if !commissionTotal.IsZero() {
		result.Transactions = append(result.Transactions, &models.StatementTransaction{
			Type:        models.TypeCommission,
			OrderKind:   "Commission",
			Gross:       models.Round2(commissionTotal.Mul(uplift).Neg()),
			OrderDate:   stmtStart,
			WindowStart: stmtStart,
			WindowEnd:   stmtEnd,
			PaymentDate: paymentDate,
			SourceFile:  name,
		})
	}
	if !marketingTotal.IsZero() {
		result.Transactions = append(result.Transactions, &models.StatementTransaction{
			Type:        models.TypeMarketing,
			OrderKind:   "Marketing",
			Gross:       models.Round2(marketingTotal.Mul(uplift).Neg()),
			OrderDate:   stmtStart,
			WindowStart: stmtStart,
			WindowEnd:   stmtEnd,
			PaymentDate: paymentDate,
			SourceFile:  name,
		})
	}

	if len(result.Transactions) == 0 {
		return nil, apperrors.NewDocumentError(
			apperrors.DocumentContext{File: name},
			"no transactions recognized in statement PDF", nil)
	}
	return result, nil
}

func findStatementPeriod(pages []string) (time.Time, time.Time, bool) {
	for _, page := range pages {
		for _, re := range []*regexp.Regexp{periodLongRe, periodSlashRe} {
			if m := re.FindStringSubmatch(page); m != nil {
				start, err1 := models.ParseFlexibleDate(m[1])
				end, err2 := models.ParseFlexibleDate(m[2])
				if err1 == nil && err2 == nil {
					return start, end, true
				}
			}
		}
	}
	return time.Time{}, time.Time{}, false
}

func (e *StatementPDFExtractor) parseHeaderFigures(fullText string) Diagnostics {
	var d Diagnostics
	if m := orderCountRe.FindStringSubmatch(fullText); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			d.ReportedOrderCount = n
			d.HasReportedFigures = true
		}
	}
	if m := totalSalesRe.FindStringSubmatch(fullText); m != nil {
		if v, err := models.ParseMoney(m[1]); err == nil {
			d.ReportedTotalSales = v
			d.HasReportedFigures = true
		}
	}
	if m := netPayableRe.FindStringSubmatch(fullText); m != nil {
		if v, err := models.ParseMoney(m[1]); err == nil {
			d.ReportedNetPayable = v
			d.HasReportedFigures = true
		}
	}
	return d
}

// segmentText cuts the adjustments block out of the full document text,
// between the configured start anchor and the first end anchor found.
func (e *StatementPDFExtractor) segmentText(fullText string) string {
	start := strings.Index(fullText, e.cfg.SegmentStartAnchor)
	if start == -1 {
		return ""
	}
	rest := fullText[start:]
	for _, anchor := range e.cfg.SegmentEndAnchors {
		if end := strings.Index(rest, anchor); end > 0 {
			return rest[:end]
		}
	}
	return ""
}

// extractDescriptions pulls the adjustment description lines out of the
// block: whitespace is squashed, money values stripped, and wrapped lines
// merged back together. A line starting with a lowercase character is a
// continuation of the previous entry.
func extractDescriptions(segment string) []string {
	if segment == "" {
		return nil
	}

	var cleaned []string
	for _, ln := range strings.Split(segment, "\n") {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" || moneyOnlyRe.MatchString(ln) {
			continue
		}
		ln = strings.TrimSpace(signedMoneyRe.ReplaceAllString(ln, ""))
		if ln == "" {
			continue
		}
		cleaned = append(cleaned, ln)
	}

	var merged []string
	for _, ln := range cleaned {
		first := rune(ln[0])
		if len(merged) > 0 && !(first >= 'A' && first <= 'Z') {
			merged[len(merged)-1] = merged[len(merged)-1] + " " + ln
			continue
		}
		merged = append(merged, ln)
	}
	for i, s := range merged {
		merged[i] = strings.Join(strings.Fields(s), " ")
	}
	return merged
}

// extractAmounts pulls the signed amounts out of the block in print order.
// PDF text extraction can interleave the block's summary figures after the
// line items; once at least one amount is captured, a value above the
// plausibility ceiling is taken as a summary figure and extraction stops.
func (e *StatementPDFExtractor) extractAmounts(segment string) []decimal.Decimal {
	if segment == "" {
		return nil
	}
	segment = strings.NewReplacer("–", "-", "- \n£", "-£", "-\n£", "-£").Replace(segment)

	var amounts []decimal.Decimal
	for _, m := range signedMoneyRe.FindAllStringSubmatch(segment, -1) {
		v, err := models.ParseMoney(m[2])
		if err != nil {
			continue
		}
		if m[1] == "-" {
			v = v.Neg()
		}
		if len(amounts) > 0 && v.GreaterThan(e.cfg.AmountCeiling) {
			break
		}
		amounts = append(amounts, v)
	}
	return amounts
}

// buildAdjustmentRows pairs descriptions with amounts positionally and
// classifies each entry.
func buildAdjustmentRows(descriptions []string, amounts []decimal.Decimal, sourceFile string) []RefundDetail {
	n := len(descriptions)
	if len(amounts) < n {
		n = len(amounts)
	}

	rows := make([]RefundDetail, 0, n)
	for i := 0; i < n; i++ {
		reason, orderRef := classifyAdjustment(descriptions[i])
		rows = append(rows, RefundDetail{
			Description:  descriptions[i],
			Amount:       amounts[i],
			Reason:       reason,
			OrderRef:     orderRef,
			OutsideScope: strings.Contains(descriptions[i], outsideScopeMarker),
			SourceFile:   sourceFile,
		})
	}
	return rows
}

// classifyAdjustment recognizes the known compensation description formats
// and returns (reason, order reference). Unrecognized descriptions return
// empty strings and fall into the commission or marketing pool.
func classifyAdjustment(desc string) (string, string) {
	if m := compensationQueryRe.FindStringSubmatch(desc); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	if m := cancelledOrderRe.FindStringSubmatch(desc); m != nil {
		return "Restaurant Comp - Cancelled Order", m[1]
	}
	if m := recookRe.FindStringSubmatch(desc); m != nil {
		return "Partner Compensation Recook", m[1]
	}
	if m := compensationCredRe.FindStringSubmatch(desc); m != nil {
		return "Customer Compensation Credit", m[1]
	}
	return "", ""
}

type refundGroup struct {
	amount decimal.Decimal
	reason string
}

// groupRefunds aggregates outside-scope adjustment rows that carry an order
// reference into one refund per order, unioning the distinct reasons.
func groupRefunds(details []RefundDetail) map[string]*refundGroup {
	groups := make(map[string]*refundGroup)
	for _, d := range details {
		if !d.OutsideScope || d.OrderRef == "" {
			continue
		}
		g, ok := groups[d.OrderRef]
		if !ok {
			g = &refundGroup{}
			groups[d.OrderRef] = g
		}
		g.amount = g.amount.Add(d.Amount)
		if d.Reason != "" && !strings.Contains(g.reason, d.Reason) {
			if g.reason != "" {
				g.reason += "; "
			}
			g.reason += d.Reason
		}
	}
	return groups
}

func sortedRefundKeys(groups map[string]*refundGroup) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// aggregateCharges sums the commission pool (descriptions mentioning
// commission) and the marketing pool (reference-less remainder).
func aggregateCharges(details []RefundDetail) (commission, marketing decimal.Decimal) {
	for _, d := range details {
		if strings.Contains(strings.ToLower(d.Description), "commission") {
			commission = commission.Add(d.Amount)
			continue
		}
		if d.Reason == "" {
			marketing = marketing.Add(d.Amount)
		}
	}
	return commission, marketing
}
