package models

import (
	"testing"
	"time"
)

func TestCleanOrderReference(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain digits", "12345678", "12345678"},
		{"surrounding whitespace", "  12345678  ", "12345678"},
		{"float export artifact", "12345678.0", "12345678"},
		{"embedded letters", "ORD-1234-5678", "12345678"},
		{"hash prefix", "#4421", "4421"},
		{"empty", "", ""},
		{"letters only", "pending", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanOrderReference(tt.input); got != tt.expected {
				t.Errorf("CleanOrderReference(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"plain", "12.34", "12.34", false},
		{"currency symbol", "£1,234.56", "1234.56", false},
		{"negative", "-5.00", "-5", false},
		{"en dash minus", "–24.00", "-24", false},
		{"accounting parens", "(12.34)", "-12.34", false},
		{"empty is zero", "", "0", false},
		{"bare dash is zero", "-", "0", false},
		{"garbage", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMoney(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.expected {
				t.Errorf("ParseMoney(%q) = %s, want %s", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{"iso", "2025-11-03", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), false},
		{"iso timestamp", "2025-11-03 14:22:01", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), false},
		{"uk slash", "03/11/2025", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), false},
		{"uk slash two digit year", "03/11/25", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), false},
		{"long form", "3 November 2025", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "someday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlexibleDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFlexibleDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.expected) {
				t.Errorf("ParseFlexibleDate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPartialReference(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		n        int
		expected string
	}{
		{"long reference truncated", "1234567890", 4, "7890"},
		{"short reference kept whole", "421", 4, "421"},
		{"cleaning applied first", "#99887766.0", 4, "7766"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &StatementTransaction{Reference: tt.ref}
			if got := tx.PartialReference(tt.n); got != tt.expected {
				t.Errorf("PartialReference(%d) = %q, want %q", tt.n, got, tt.expected)
			}
		})
	}
}

func TestLedgerOrderPartialKey(t *testing.T) {
	o := &LedgerOrder{MarketplaceRef: "555512349876", Location: "Leeds Central"}
	ref, loc := o.PartialKey(4)
	if ref != "9876" || loc != "Leeds Central" {
		t.Errorf("PartialKey(4) = (%q, %q), want (9876, Leeds Central)", ref, loc)
	}
}

func TestRecordReference(t *testing.T) {
	stmtRec := &ReconciliationRecord{
		Statement: &StatementTransaction{Reference: "1001"},
		Ledger:    &LedgerOrder{MarketplaceRef: "2002"},
	}
	if got := stmtRec.Reference(); got != "1001" {
		t.Errorf("Reference() = %q, want statement side", got)
	}

	ledgerRec := &ReconciliationRecord{Ledger: &LedgerOrder{MarketplaceRef: "2002"}}
	if got := ledgerRec.Reference(); got != "2002" {
		t.Errorf("Reference() = %q, want ledger side", got)
	}
}
