package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	"statement-reconciliation-service/internal/variance"
)

func stmtTx(ref, location, date string, txType models.TransactionType, gross float64) *models.StatementTransaction {
	d, _ := time.Parse("2006-01-02", date)
	return &models.StatementTransaction{
		Reference: ref,
		Location:  location,
		Type:      txType,
		Gross:     decimal.NewFromFloat(gross),
		OrderDate: d,
	}
}

func countCategories(records []*models.ReconciliationRecord) map[models.MatchCategory]int {
	counts := make(map[models.MatchCategory]int)
	for _, r := range records {
		counts[r.Category]++
	}
	return counts
}

func TestReconcileFullReference(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000001", "Leeds Central", "2025-10-27", true),
		testOrder("9000000002", "Leeds Central", "2025-10-28", true),
	}
	transactions := []*models.StatementTransaction{
		stmtTx("9000000001", "", "2025-10-27", models.TypeOrder, 16.00),
		stmtTx("9000000099", "", "2025-10-27", models.TypeOrder, 5.00), // unknown to the ledger
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	result, err := engine.Reconcile(transactions, orders, window, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	counts := countCategories(result.Records)
	if counts[models.CategoryMatched] != 1 {
		t.Errorf("matched = %d, want 1", counts[models.CategoryMatched])
	}
	if counts[models.CategoryNotMatched] != 1 {
		t.Errorf("not matched = %d, want 1", counts[models.CategoryNotMatched])
	}
	// 9000000002 was never on the statement.
	if counts[models.CategoryMissingInStatement] != 1 {
		t.Errorf("missing = %d, want 1", counts[models.CategoryMissingInStatement])
	}
	if result.Summary.Matched != 1 || result.Summary.NotMatched != 1 || result.Summary.MissingInStatement != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestReconcilePartialKey(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("5555123498", "Leeds Central", "2025-10-28", true),
	}
	transactions := []*models.StatementTransaction{
		// The statement only exposes the reference suffix.
		stmtTx("3498", "Leeds Central", "2025-10-28", models.TypeOrder, 24.50),
	}

	engine := NewEngine(DefaultConfig("Deliveroo"))
	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	result, err := engine.Reconcile(transactions, orders, window, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1 (matched order consumed, no missing row)", len(result.Records))
	}
	r := result.Records[0]
	if r.Category != models.CategoryMatched || r.Ledger == nil {
		t.Errorf("record = %+v, want matched with ledger attached", r)
	}
}

func TestReconcileRefundDoesNotConsumeOrder(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000003", "Leeds Central", "2025-10-28", true),
	}
	transactions := []*models.StatementTransaction{
		stmtTx("9000000003", "", "2025-10-28", models.TypeRefund, 0),
		stmtTx("9000000003", "", "2025-10-28", models.TypeOrder, 23.00),
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	result, err := engine.Reconcile(transactions, orders, window, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	for i, r := range result.Records {
		if r.Category != models.CategoryMatched || r.Ledger == nil {
			t.Errorf("record %d = %s with ledger=%v, want both rows matched to the same order",
				i, r.Category, r.Ledger != nil)
		}
	}
}

func TestReconcileAccrualWindow(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000001", "Leeds Central", "2025-10-28", true),
		// Completed after statement coverage ends.
		testOrder("9000000050", "Leeds Central", "2025-11-28", true),
		testOrder("9000000051", "Leeds Central", "2025-11-29", true),
		// Incomplete orders never accrue.
		testOrder("9000000052", "Leeds Central", "2025-11-29", false),
	}
	transactions := []*models.StatementTransaction{
		stmtTx("9000000001", "", "2025-10-28", models.TypeOrder, 10.00),
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	stmtWindow := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-23")}
	accrualWindow := period.Window{Start: day(t, "2025-11-24"), End: day(t, "2025-11-30")}

	result, err := engine.Reconcile(transactions, orders, stmtWindow, accrualWindow)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	counts := countCategories(result.Records)
	if counts[models.CategoryAccrual] != 2 {
		t.Errorf("accrual rows = %d, want 2", counts[models.CategoryAccrual])
	}
	for _, r := range result.Records {
		if r.Category != models.CategoryAccrual {
			continue
		}
		if !r.Statement.WindowStart.Equal(accrualWindow.Start) || !r.Statement.WindowEnd.Equal(accrualWindow.End) {
			t.Errorf("accrual window on row = %v..%v", r.Statement.WindowStart, r.Statement.WindowEnd)
		}
		if !r.Statement.Gross.Equal(r.Ledger.GrossWithTips) {
			t.Errorf("accrual gross = %s, want the ledger amount", r.Statement.Gross)
		}
	}
}

func TestReconcileSyntheticRowsBalanceToZeroVariance(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000002", "Leeds Central", "2025-10-28", true),
		testOrder("9000000003", "Leeds Central", "2025-10-30", true),
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	result, err := engine.Reconcile(nil, orders, window, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	variance.Apply(result.Records, variance.FieldGrossWithTips)
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want one missing row per unmatched ledger order", len(result.Records))
	}
	// Deterministic order: earlier ledger date first.
	if result.Records[0].Reference() != "9000000002" {
		t.Errorf("first missing row = %s, want the earlier order", result.Records[0].Reference())
	}
	for _, r := range result.Records {
		if r.Category != models.CategoryMissingInStatement {
			t.Errorf("category = %s", r.Category)
		}
		if r.AmountStatus != models.AmountMatched || !r.Variance.IsZero() {
			t.Errorf("synthetic row status/variance = %s/%s, want Matched/0", r.AmountStatus, r.Variance)
		}
		if !r.Statement.Gross.Equal(r.Ledger.GrossWithTips) {
			t.Errorf("synthetic gross = %s, want the ledger amount", r.Statement.Gross)
		}
	}
}

func TestReconcilePassThroughCharges(t *testing.T) {
	transactions := []*models.StatementTransaction{
		stmtTx("", "", "2025-10-27", models.TypeCommission, -24.00),
		stmtTx("", "", "2025-10-27", models.TypeMarketing, -7.50),
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	result, err := engine.Reconcile(transactions, nil, period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	counts := countCategories(result.Records)
	if counts[models.CategoryCommission] != 1 || counts[models.CategoryMarketing] != 1 {
		t.Errorf("categories = %v, want one commission and one marketing row", counts)
	}
}

func TestReconcileEveryStatementRowAccountedFor(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000001", "Leeds Central", "2025-10-27", true),
	}
	transactions := []*models.StatementTransaction{
		stmtTx("9000000001", "", "2025-10-27", models.TypeOrder, 16.00),
		stmtTx("9000000002", "", "2025-10-28", models.TypeOrder, 21.00),
		stmtTx("9000000001", "", "2025-10-27", models.TypeRefund, 0),
		stmtTx("", "", "2025-10-27", models.TypeCommission, -24.00),
	}

	engine := NewEngine(FullReferenceConfig("Just Eat"))
	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	result, err := engine.Reconcile(transactions, orders, window, period.Window{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	fromStatement := 0
	for _, r := range result.Records {
		if r.Category != models.CategoryMissingInStatement && r.Category != models.CategoryAccrual {
			fromStatement++
		}
	}
	if fromStatement != len(transactions) {
		t.Errorf("statement-derived records = %d, want every input row represented (%d)",
			fromStatement, len(transactions))
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("Deliveroo")
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg.PartialDigits = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero partial digits must fail validation")
	}

	cfg = FullReferenceConfig("Just Eat")
	cfg.PartialDigits = 0 // irrelevant for full-reference matching
	if err := cfg.Validate(); err != nil {
		t.Errorf("full-reference config must ignore partial digits: %v", err)
	}

	cfg.DateToleranceDays = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative tolerance must fail validation")
	}
}
