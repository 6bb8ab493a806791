package matcher

import (
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Engine pairs statement transactions with ledger orders and derives the
// rows the statements never mentioned.
type Engine struct {
	cfg *Config
	log logger.Logger
}

// Result is the outcome of a reconciliation pass.
type Result struct {
	Records []*models.ReconciliationRecord
	Summary Summary
}

// Summary provides aggregate counts for the reconciliation.
type Summary struct {
	StatementRows      int
	LedgerOrders       int
	Matched            int
	NotMatched         int
	MissingInStatement int
	Accrual            int
	Refunds            int
	Commission         int
	Marketing          int
}

// NewEngine creates a matching engine. A nil config uses the partial-key
// defaults.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}
	return &Engine{cfg: cfg, log: cfg.Logger.WithComponent("matcher")}
}

// Reconcile matches every statement transaction against the ledger, then
// appends missing-in-statement rows (completed ledger orders inside the
// statement window with no statement counterpart) and accrual rows (the
// same over the accrual window).
//
// Matched ledger orders are consumed: each order backs at most one order
// row. Refund rows look their order up without consuming it, since the
// order row needs the same ledger entry.
func (e *Engine) Reconcile(
	transactions []*models.StatementTransaction,
	orders []*models.LedgerOrder,
	stmtWindow, accrualWindow period.Window,
) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "matcher", e.cfg.Provider, err)
	}

	idx := NewLedgerIndex(orders, e.cfg.PartialDigits, e.cfg.UseLocation)
	result := &Result{Summary: Summary{
		StatementRows: len(transactions),
		LedgerOrders:  len(orders),
	}}

	for _, tx := range transactions {
		switch tx.Type {
		case models.TypeOrder:
			result.Records = append(result.Records, e.matchOrder(idx, tx, &result.Summary))
		case models.TypeRefund:
			result.Records = append(result.Records, e.matchRefund(idx, tx, &result.Summary))
		case models.TypeCommission:
			result.Summary.Commission++
			result.Records = append(result.Records, &models.ReconciliationRecord{
				Statement: tx,
				Category:  models.CategoryCommission,
			})
		case models.TypeMarketing:
			result.Summary.Marketing++
			result.Records = append(result.Records, &models.ReconciliationRecord{
				Statement: tx,
				Category:  models.CategoryMarketing,
			})
		default:
			e.log.WithField("type", string(tx.Type)).Warn("Transaction with unknown type skipped")
		}
	}

	for _, o := range idx.UnconsumedCompleted(stmtWindow) {
		idx.Consume(o)
		result.Summary.MissingInStatement++
		result.Records = append(result.Records, e.syntheticRecord(o, models.CategoryMissingInStatement, stmtWindow))
	}
	for _, o := range idx.UnconsumedCompleted(accrualWindow) {
		idx.Consume(o)
		result.Summary.Accrual++
		result.Records = append(result.Records, e.syntheticRecord(o, models.CategoryAccrual, accrualWindow))
	}

	e.log.WithFields(logger.Fields{
		"provider":    e.cfg.Provider,
		"statements":  result.Summary.StatementRows,
		"ledger":      result.Summary.LedgerOrders,
		"matched":     result.Summary.Matched,
		"not_matched": result.Summary.NotMatched,
		"missing":     result.Summary.MissingInStatement,
		"accrual":     result.Summary.Accrual,
	}).Info("Reconciliation complete")

	return result, nil
}

func (e *Engine) matchOrder(idx *LedgerIndex, tx *models.StatementTransaction, s *Summary) *models.ReconciliationRecord {
	order, ok := e.lookup(idx, tx)
	if !ok {
		s.NotMatched++
		return &models.ReconciliationRecord{Statement: tx, Category: models.CategoryNotMatched}
	}
	idx.Consume(order)
	s.Matched++
	return &models.ReconciliationRecord{Statement: tx, Ledger: order, Category: models.CategoryMatched}
}

func (e *Engine) matchRefund(idx *LedgerIndex, tx *models.StatementTransaction, s *Summary) *models.ReconciliationRecord {
	s.Refunds++
	order, ok := e.lookup(idx, tx)
	if !ok {
		return &models.ReconciliationRecord{Statement: tx, Category: models.CategoryNotMatched}
	}
	return &models.ReconciliationRecord{Statement: tx, Ledger: order, Category: models.CategoryMatched}
}

func (e *Engine) lookup(idx *LedgerIndex, tx *models.StatementTransaction) (*models.LedgerOrder, bool) {
	ref := models.CleanOrderReference(tx.Reference)
	if ref == "" {
		return nil, false
	}
	if e.cfg.FullReference {
		return idx.MatchFull(ref)
	}
	location := tx.Location
	if !e.cfg.UseLocation {
		location = ""
	}
	return idx.MatchPartial(tx.PartialReference(e.cfg.PartialDigits), location, tx.OrderDate, e.cfg.DateToleranceDays)
}

// syntheticRecord builds the statement side of a missing or accrual row
// from the ledger order itself, so the amount comparison comes out even.
func (e *Engine) syntheticRecord(o *models.LedgerOrder, category models.MatchCategory, window period.Window) *models.ReconciliationRecord {
	tx := &models.StatementTransaction{
		Reference:   o.MarketplaceRef,
		Location:    o.Location,
		RawLocation: o.Location,
		Type:        models.TypeOrder,
		Gross:       e.cfg.AmountField.Of(o),
		OrderDate:   o.OrderDate,
		WindowStart: window.Start,
		WindowEnd:   window.End,
	}
	return &models.ReconciliationRecord{Statement: tx, Ledger: o, Category: category}
}
