package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"statement-reconciliation-service/internal/period"
)

const sampleLedgerCSV = `gp_order_id,gp_order_id_obfuscated,mp_order_id,location_name,order_vendor,order_completed,created_at_day,total_payment_inc_vat,total_payment_with_tips_inc_vat,courier_tip
1001,ab12,5555123498.0,Leeds Central,Deliveroo,true,2025-10-28,24.50,25.50,1.00
1002,cd34,5555123499,Leeds Central,Deliveroo,true,2025-10-29,18.20,18.20,0.00
1003,ef56,9000000001,Leeds Central,Just Eat,true,2025-10-27,16.00,16.00,0.00
1004,gh78,5555123500,Leeds Central,Deliveroo,false,2025-10-30,12.00,12.00,0.00
1005,ij90,,Leeds Central,Deliveroo,true,2025-10-30,5.00,5.00,0.00
`

func writeLedgerFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "export.csv", sampleLedgerCSV)

	loader := NewLoader(nil)
	orders, stats, err := loader.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	// Row without a marketplace reference is dropped.
	if len(orders) != 4 {
		t.Fatalf("orders = %d, want 4", len(orders))
	}
	if stats.RowsDropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.RowsDropped)
	}

	first := orders[0]
	if first.MarketplaceRef != "5555123498" {
		t.Errorf("ref = %q, want trailing .0 stripped", first.MarketplaceRef)
	}
	if first.GrossWithTips.StringFixed(2) != "25.50" {
		t.Errorf("gross with tips = %s, want 25.50", first.GrossWithTips.StringFixed(2))
	}
	if !first.Completed {
		t.Error("completed = false, want true")
	}
	if !first.OrderDate.Equal(time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("order date = %v", first.OrderDate)
	}
	if first.Extra["courier_tip"] != "1.00" {
		t.Errorf("extra courier_tip = %q, want preserved", first.Extra["courier_tip"])
	}
}

func TestLoadDirByteOrderMark(t *testing.T) {
	dir := t.TempDir()
	// Spreadsheet exports often prefix the header with a UTF-8 BOM, which
	// lands on the first column name.
	writeLedgerFile(t, dir, "export.csv", "\ufeff"+sampleLedgerCSV)

	orders, _, err := NewLoader(nil).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(orders) != 4 {
		t.Fatalf("orders = %d, want 4", len(orders))
	}
	if orders[0].OrderID != "1001" {
		t.Errorf("order id = %q, want the BOM-prefixed column resolved", orders[0].OrderID)
	}
}

func TestLoadDirVendorFilter(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "export.csv", sampleLedgerCSV)

	cfg := DefaultConfig()
	cfg.VendorFilter = "Deliveroo"
	orders, stats, err := NewLoader(cfg).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	if len(orders) != 3 {
		t.Errorf("orders = %d, want 3 (Just Eat row filtered)", len(orders))
	}
	if stats.RowsFiltered != 1 {
		t.Errorf("filtered = %d, want 1", stats.RowsFiltered)
	}
}

func TestLoadDirWindowFilter(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "export.csv", sampleLedgerCSV)

	cfg := DefaultConfig()
	cfg.Window = period.Window{
		Start: time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC),
	}
	orders, _, err := NewLoader(cfg).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("orders = %d, want 2 inside the window", len(orders))
	}
}

func TestLoadDirConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "a.csv", sampleLedgerCSV)
	writeLedgerFile(t, dir, "b.csv", sampleLedgerCSV)

	orders, stats, err := NewLoader(nil).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(orders) != 8 {
		t.Errorf("orders = %d, want 8 across both files", len(orders))
	}
	if stats.FilesRead != 2 {
		t.Errorf("files read = %d, want 2", stats.FilesRead)
	}
}

func TestLoadDirAliasHeaders(t *testing.T) {
	dir := t.TempDir()
	content := `Marketplace Order ID,Site Name,Vendor,Is Completed,Order Date,Gross Payment,Gross With Tips
5555123498,Leeds Central,Deliveroo,1,28/10/2025,24.50,25.50
`
	writeLedgerFile(t, dir, "alias.csv", content)

	orders, _, err := NewLoader(nil).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Location != "Leeds Central" || !orders[0].Completed {
		t.Errorf("aliased columns not resolved: %+v", orders[0])
	}
}

func TestLoadDirSchemaDrift(t *testing.T) {
	dir := t.TempDir()
	content := `mp_order_id,location_name,order_completed,created_at_day
5555123498,Leeds Central,true,2025-10-28
`
	writeLedgerFile(t, dir, "drift.csv", content)

	orders, stats, err := NewLoader(nil).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1 (drift is a warning, not a failure)", len(orders))
	}
	if !orders[0].GrossPayment.IsZero() {
		t.Errorf("gross payment = %s, want zero default", orders[0].GrossPayment)
	}
	if len(stats.DriftWarnings) != 1 {
		t.Fatalf("drift warnings = %d, want 1", len(stats.DriftWarnings))
	}
	if !stats.DriftWarnings[0].IsRecoverable() {
		t.Error("schema drift must be recoverable")
	}
}

func TestLoadDirMissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "bad.csv", "foo,bar\n1,2\n")

	if _, _, err := NewLoader(nil).LoadDir(dir); err == nil {
		t.Error("expected failure when no file has the required columns")
	}
}

func TestLoadDirEmpty(t *testing.T) {
	if _, _, err := NewLoader(nil).LoadDir(t.TempDir()); err == nil {
		t.Error("expected missing-input failure for an empty ledger directory")
	}
}

func TestLoadDirSkipsBrokenFileKeepsGood(t *testing.T) {
	dir := t.TempDir()
	writeLedgerFile(t, dir, "a_bad.csv", "foo,bar\n1,2\n")
	writeLedgerFile(t, dir, "b_good.csv", sampleLedgerCSV)

	orders, stats, err := NewLoader(nil).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if stats.FilesRead != 1 || stats.FilesSkipped != 1 {
		t.Errorf("read/skipped = %d/%d, want 1/1", stats.FilesRead, stats.FilesSkipped)
	}
	if len(orders) != 4 {
		t.Errorf("orders = %d, want 4 from the good file", len(orders))
	}
}
