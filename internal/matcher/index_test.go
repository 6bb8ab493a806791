package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func testOrder(ref, location, date string, completed bool) *models.LedgerOrder {
	d, _ := time.Parse("2006-01-02", date)
	return &models.LedgerOrder{
		MarketplaceRef: ref,
		Location:       location,
		Completed:      completed,
		OrderDate:      d,
		GrossPayment:   decimal.NewFromFloat(10),
		GrossWithTips:  decimal.NewFromFloat(10),
	}
}

func TestMatchFull(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("9000000001", "Leeds Central", "2025-10-27", true),
		testOrder("9000000002", "Leeds Central", "2025-10-28", true),
	}
	idx := NewLedgerIndex(orders, 4, true)

	got, ok := idx.MatchFull("9000000002")
	if !ok || got.MarketplaceRef != "9000000002" {
		t.Fatalf("MatchFull = %v, %v", got, ok)
	}

	idx.Consume(got)
	if _, ok := idx.MatchFull("9000000002"); ok {
		t.Error("consumed order must not match again")
	}
}

func TestMatchPartialNearestDate(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("5555123498", "Leeds Central", "2025-10-27", true),
		testOrder("7777773498", "Leeds Central", "2025-10-29", true),
	}
	idx := NewLedgerIndex(orders, 4, true)

	// Statement date 2025-10-29: both candidates share suffix 3498 and
	// location, the same-day order wins.
	got, ok := idx.MatchPartial("3498", "Leeds Central", day(t, "2025-10-29"), 1)
	if !ok {
		t.Fatal("expected a partial match")
	}
	if got.MarketplaceRef != "7777773498" {
		t.Errorf("matched %s, want the nearest-dated candidate", got.MarketplaceRef)
	}
}

func TestMatchPartialTiePrefersEarlierDate(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("7777773498", "Leeds Central", "2025-10-29", true),
		testOrder("5555123498", "Leeds Central", "2025-10-27", true),
	}
	idx := NewLedgerIndex(orders, 4, true)

	// Statement date 2025-10-28 is one day from both candidates.
	got, ok := idx.MatchPartial("3498", "Leeds Central", day(t, "2025-10-28"), 1)
	if !ok {
		t.Fatal("expected a partial match")
	}
	if got.MarketplaceRef != "5555123498" {
		t.Errorf("matched %s, want the earlier ledger date on a tie", got.MarketplaceRef)
	}
}

func TestMatchPartialToleranceBound(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("5555123498", "Leeds Central", "2025-10-27", true),
	}
	idx := NewLedgerIndex(orders, 4, true)

	if _, ok := idx.MatchPartial("3498", "Leeds Central", day(t, "2025-10-29"), 1); ok {
		t.Error("two days apart must not match with one day of tolerance")
	}
	if _, ok := idx.MatchPartial("3498", "Leeds Central", day(t, "2025-10-28"), 1); !ok {
		t.Error("one day apart must match")
	}
}

func TestMatchPartialLocationScoped(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("5555123498", "Leeds Central", "2025-10-27", true),
	}
	idx := NewLedgerIndex(orders, 4, true)

	if _, ok := idx.MatchPartial("3498", "Manchester", day(t, "2025-10-27"), 1); ok {
		t.Error("different location must not match")
	}
	// Location comparison is case-insensitive.
	if _, ok := idx.MatchPartial("3498", "leeds central", day(t, "2025-10-27"), 1); !ok {
		t.Error("location casing must not matter")
	}
}

func TestUnconsumedCompleted(t *testing.T) {
	orders := []*models.LedgerOrder{
		testOrder("1", "A", "2025-10-27", true),
		testOrder("2", "A", "2025-10-28", true),
		testOrder("3", "A", "2025-10-29", false), // not completed
		testOrder("4", "A", "2025-11-10", true),  // outside window
	}
	idx := NewLedgerIndex(orders, 4, true)
	idx.Consume(orders[0])

	window := period.Window{Start: day(t, "2025-10-27"), End: day(t, "2025-11-02")}
	got := idx.UnconsumedCompleted(window)
	if len(got) != 1 || got[0].MarketplaceRef != "2" {
		t.Errorf("unconsumed = %v, want only order 2", got)
	}

	if got := idx.UnconsumedCompleted(period.Window{}); got != nil {
		t.Errorf("zero window must return nothing, got %v", got)
	}
}
