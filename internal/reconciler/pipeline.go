// Package reconciler orchestrates a full reconciliation run: statement
// extraction, ledger loading, matching, variance analysis, and report
// output for one marketplace and accounting period.
package reconciler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/ledger"
	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	"statement-reconciliation-service/internal/reporter"
	"statement-reconciliation-service/internal/variance"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Config assembles the component configurations for one run.
type Config struct {
	// Provider is the marketplace name, e.g. "Deliveroo" or "Just Eat".
	Provider string

	// Period is the accounting period in "YYYY-MM" form.
	Period string

	StatementsDir string
	LedgerDir     string
	OutputDir     string

	// RefundDetailDir receives the refund audit files. Empty writes
	// them next to the report.
	RefundDetailDir string

	// MappingFile translates statement location names to ledger names.
	// Empty means statements already carry ledger names.
	MappingFile string

	// RenameRule canonicalizes raw statement downloads before
	// extraction. Nil skips the rename pass.
	RenameRule *extract.RenameRule

	Extract    *extract.Config
	Extractors []extract.DocumentLayoutExtractor
	Ledger     *ledger.Config
	Matcher    *matcher.Config
	Report     *reporter.Config

	// AmountField selects the ledger amount statement grosses compare
	// against.
	AmountField variance.AmountField

	Logger logger.Logger
}

// Validate checks that the run has everything it needs.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("reconciler config is nil")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Period == "" {
		return fmt.Errorf("accounting period is required")
	}
	if c.StatementsDir == "" {
		return fmt.Errorf("statements directory is required")
	}
	if c.LedgerDir == "" {
		return fmt.Errorf("ledger directory is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Extract == nil || len(c.Extractors) == 0 {
		return fmt.Errorf("statement extraction is not configured")
	}
	if c.Matcher == nil {
		return fmt.Errorf("matching is not configured")
	}
	return nil
}

// Result summarizes a completed run.
type Result struct {
	OutputPath        string
	RefundDetailPaths []string

	StatementWindow period.Window
	AccrualWindow   period.Window

	DocumentsProcessed int
	DocumentsSkipped   int

	Records       []*models.ReconciliationRecord
	Summary       matcher.Summary
	TotalVariance decimal.Decimal

	// UnmappedLocations lists statement location names the mapping file
	// does not cover. The run still completes; the affected rows simply
	// fail to match.
	UnmappedLocations []string

	// Warnings collects recoverable problems: skipped documents, ledger
	// schema drift, unmapped locations.
	Warnings []*apperrors.ReconcilerError
}

// Pipeline runs reconciliations.
type Pipeline struct {
	cfg *Config
	log logger.Logger
}

// NewPipeline creates a pipeline for the given configuration.
func NewPipeline(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "reconciler", cfg, err)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Pipeline{cfg: cfg, log: log.WithComponent("reconciler")}, nil
}

// Run executes the full reconciliation for the configured provider and
// period.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	accounting, err := period.ParseAccountingPeriod(p.cfg.Period)
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidDate, "period", p.cfg.Period, err)
	}

	op := logger.NewOperationLogger("reconciliation", p.log).
		WithField("provider", p.cfg.Provider).
		WithField("period", p.cfg.Period)
	op.Step("preparing statements")

	if err := p.prepareStatements(); err != nil {
		return nil, err
	}
	if err := p.loadMapping(); err != nil {
		return nil, err
	}

	coverage, err := extract.Coverage(p.cfg.Provider, p.cfg.StatementsDir, accounting)
	if err != nil {
		return nil, err
	}
	stmtWindow := period.StatementWindow(accounting, coverage)
	accrualWindow := period.AccrualWindow(accounting, stmtWindow)

	result := &Result{StatementWindow: stmtWindow, AccrualWindow: accrualWindow}

	op.Step("extracting statements")
	batch, err := extract.Batch(ctx, p.cfg.Extract, p.cfg.Extractors, p.cfg.StatementsDir, stmtWindow)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}
	result.DocumentsProcessed = batch.Processed
	result.DocumentsSkipped = batch.Skipped
	result.Warnings = append(result.Warnings, batch.SkipErrors...)

	p.collectUnmapped(batch.Transactions, result)

	op.Step("loading ledger")
	ledgerCfg := p.cfg.Ledger
	if ledgerCfg == nil {
		ledgerCfg = ledger.DefaultConfig()
	}
	// The ledger window spans statement coverage plus the accrual tail.
	ledgerCfg.Window = period.Window{Start: stmtWindow.Start, End: accounting.End}
	orders, stats, err := ledger.NewLoader(ledgerCfg).LoadDir(p.cfg.LedgerDir)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}
	result.Warnings = append(result.Warnings, stats.DriftWarnings...)

	op.Step("matching")
	match, err := matcher.NewEngine(p.cfg.Matcher).Reconcile(batch.Transactions, orders, stmtWindow, accrualWindow)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}
	result.Records = match.Records
	result.Summary = match.Summary

	variance.Apply(result.Records, p.cfg.AmountField)
	result.TotalVariance = variance.TotalVariance(result.Records)

	op.Step("writing report")
	reportCfg := p.cfg.Report
	if reportCfg == nil {
		reportCfg = reporter.DefaultConfig(p.cfg.Provider)
	}
	fw, err := reporter.NewFileWriter(reportCfg, p.log)
	if err != nil {
		return nil, err
	}
	result.OutputPath, err = fw.WriteReport(p.cfg.OutputDir, stmtWindow, result.Records)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	detailDir := p.cfg.RefundDetailDir
	if detailDir == "" {
		detailDir = p.cfg.OutputDir
	}
	result.RefundDetailPaths, err = fw.WriteRefundDetails(detailDir, batch.RefundDetails)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	op.WithField("records", len(result.Records)).
		WithField("variance", result.TotalVariance.StringFixed(2)).
		WithField("output", result.OutputPath)
	op.Success("Reconciliation completed")
	return result, nil
}
