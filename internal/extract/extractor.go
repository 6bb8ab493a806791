// Package extract turns marketplace statement documents into normalized
// statement transactions. Each provider ships statements in its own layout,
// so extraction lives behind the DocumentLayoutExtractor interface with one
// implementation per layout family: multi-section CSVs and free-text PDFs.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"statement-reconciliation-service/internal/mapping"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Config holds provider-specific extraction settings.
type Config struct {
	// Provider is the marketplace name as it appears in statement
	// filenames, e.g. "Deliveroo" or "Just Eat".
	Provider string

	// TaxRate grosses up tax-exclusive commission and marketing amounts.
	TaxRate decimal.Decimal

	// AmountCeiling bounds plausible adjustment amounts. Once at least
	// one amount has been captured from a PDF adjustments block, a value
	// above the ceiling is taken as a summary figure and extraction of
	// the block stops.
	AmountCeiling decimal.Decimal

	// SegmentStartAnchor marks the beginning of the adjustments block in
	// free-text PDF layouts.
	SegmentStartAnchor string
	// SegmentEndAnchors are tried in order to find the end of the block.
	SegmentEndAnchors []string

	// Mapping resolves provider location labels to ledger names for
	// sectioned CSV layouts. May be nil for full-reference providers.
	Mapping *mapping.Store

	// Workers bounds the extraction pool for a statement batch.
	Workers int

	Logger logger.Logger
}

// DefaultConfig returns extraction settings matching the known provider
// statement templates.
func DefaultConfig(provider string) *Config {
	return &Config{
		Provider:           provider,
		TaxRate:            decimal.NewFromFloat(0.20),
		AmountCeiling:      decimal.NewFromInt(1000),
		SegmentStartAnchor: "Commission to",
		SegmentEndAnchors: []string{
			"account statement",
			"You don't need to do anything",
			"Subtotal",
		},
		Workers: 4,
		Logger:  logger.GetGlobalLogger(),
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.TaxRate.IsNegative() {
		return fmt.Errorf("tax rate cannot be negative")
	}
	if c.AmountCeiling.Sign() <= 0 {
		return fmt.Errorf("amount ceiling must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	return nil
}

// RefundDetail is one raw adjustment line kept for the per-document audit
// file, before grouping into refund rows.
type RefundDetail struct {
	Description  string
	Amount       decimal.Decimal
	Reason       string
	OrderRef     string
	OutsideScope bool
	SourceFile   string
}

// Diagnostics carries the document's own summary figures alongside what was
// actually parsed, so header-vs-parsed variances can be logged.
type Diagnostics struct {
	ReportedOrderCount int
	ReportedTotalSales decimal.Decimal
	ReportedNetPayable decimal.Decimal
	HasReportedFigures bool
	ParsedOrderCount   int
	ParsedTotalSales   decimal.Decimal
}

// Result is the outcome of extracting one statement document.
type Result struct {
	Transactions  []*models.StatementTransaction
	RefundDetails []RefundDetail
	Diagnostics   Diagnostics
	SourceFile    string
}

// DocumentLayoutExtractor extracts statement transactions from one document
// of a known layout.
type DocumentLayoutExtractor interface {
	// Extract parses the document at path into normalized transactions.
	Extract(ctx context.Context, path string) (*Result, error)
	// Handles reports whether this extractor understands the file.
	Handles(filename string) bool
}

// BatchResult aggregates a full statement batch.
type BatchResult struct {
	Transactions  []*models.StatementTransaction
	RefundDetails []RefundDetail
	Processed     int
	Skipped       int
	// SkipErrors lists the recoverable per-document failures.
	SkipErrors []*apperrors.ReconcilerError
}

// Batch runs extraction over every statement document in dir whose filename
// date falls inside the window, fanning out across a bounded worker pool.
// Individual document failures are logged and skipped; the batch fails only
// when no document succeeds.
func Batch(ctx context.Context, cfg *Config, extractors []DocumentLayoutExtractor, dir string, window period.Window) (*BatchResult, error) {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "extract", err.Error(), err)
	}
	log := cfg.Logger.WithComponent("extract")

	docs, err := matchingDocuments(cfg.Provider, dir, window)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.MissingInputError(fmt.Sprintf("%s statement", cfg.Provider), dir)
	}

	log.WithFields(logger.Fields{
		"provider":  cfg.Provider,
		"window":    window.String(),
		"documents": len(docs),
	}).Info("Extracting statement batch")

	tracker := logger.NewBatchTracker("extract_statements", len(docs), cfg.Logger)

	type indexed struct {
		pos    int
		result *Result
		err    error
	}

	p := pool.NewWithResults[indexed]().WithMaxGoroutines(cfg.Workers).WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		p.Go(func(ctx context.Context) (indexed, error) {
			ex := extractorFor(extractors, doc)
			if ex == nil {
				return indexed{pos: i, err: fmt.Errorf("no extractor handles %s", filepath.Base(doc))}, nil
			}
			res, err := ex.Extract(ctx, doc)
			return indexed{pos: i, result: res, err: err}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryInternal, apperrors.CodeUnexpectedError, "statement batch aborted")
	}

	// Re-establish document order so output is deterministic regardless of
	// worker scheduling.
	sort.Slice(results, func(a, b int) bool { return results[a].pos < results[b].pos })

	batch := &BatchResult{}
	for _, r := range results {
		name := filepath.Base(docs[r.pos])
		if r.err != nil {
			skip := apperrors.DocumentSkipped(docs[r.pos], r.err)
			batch.SkipErrors = append(batch.SkipErrors, skip.ReconcilerError)
			batch.Skipped++
			tracker.Skipped(name, r.err)
			continue
		}
		batch.Transactions = append(batch.Transactions, r.result.Transactions...)
		batch.RefundDetails = append(batch.RefundDetails, r.result.RefundDetails...)
		batch.Processed++
		tracker.Done(name)
		logDiagnostics(log, name, r.result.Diagnostics)
	}
	tracker.Complete()

	if batch.Processed == 0 {
		return nil, apperrors.MissingInputError(fmt.Sprintf("usable %s statement", cfg.Provider), dir).
			WithContext("skipped", batch.Skipped)
	}
	return batch, nil
}

// Coverage scans dir for canonical statement filenames of the provider and
// returns the full-week span they cover within the accounting period. The
// zero window means no statements were found.
func Coverage(provider, dir string, accounting period.Window) (period.Window, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return period.Window{}, apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	var cov period.Window
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d, ok := ParseStatementFilename(provider, e.Name())
		if !ok {
			continue
		}
		week := period.Window{Start: period.StartOfWeek(d), End: period.EndOfWeek(d)}
		if !week.Overlaps(accounting) {
			continue
		}
		if cov.IsZero() {
			cov = week
			continue
		}
		if week.Start.Before(cov.Start) {
			cov.Start = week.Start
		}
		if week.End.After(cov.End) {
			cov.End = week.End
		}
	}
	return cov, nil
}

func matchingDocuments(provider, dir string, window period.Window) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	type dated struct {
		path string
		day  string
	}
	var docs []dated
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d, ok := ParseStatementFilename(provider, e.Name())
		if !ok {
			continue
		}
		if !window.Contains(d) {
			continue
		}
		docs = append(docs, dated{path: filepath.Join(dir, e.Name()), day: d.Format("2006-01-02")})
	}
	sort.Slice(docs, func(a, b int) bool {
		if docs[a].day != docs[b].day {
			return docs[a].day < docs[b].day
		}
		return docs[a].path < docs[b].path
	})

	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.path
	}
	return out, nil
}

func extractorFor(extractors []DocumentLayoutExtractor, path string) DocumentLayoutExtractor {
	name := filepath.Base(path)
	for _, ex := range extractors {
		if ex.Handles(name) {
			return ex
		}
	}
	return nil
}

func logDiagnostics(log logger.Logger, name string, d Diagnostics) {
	if !d.HasReportedFigures {
		return
	}
	log.WithFields(logger.Fields{
		"document":        name,
		"reported_orders": d.ReportedOrderCount,
		"parsed_orders":   d.ParsedOrderCount,
		"order_variance":  d.ParsedOrderCount - d.ReportedOrderCount,
		"reported_sales":  d.ReportedTotalSales.StringFixed(2),
		"parsed_sales":    d.ParsedTotalSales.StringFixed(2),
		"sales_variance":  d.ParsedTotalSales.Sub(d.ReportedTotalSales).StringFixed(2),
	}).Info("Document header check")
}
