// Command validate_report sanity-checks a generated reconciliation CSV:
// row ordering, category values, and variance arithmetic. Intended for
// eyeballing pipeline output during development.
//
// Usage:
//
//	go run ./testdata/validators -report "out/25.10.27 - 25.11.30 - Deliveroo Reconciliation.csv"
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
)

var reportFile = flag.String("report", "", "reconciliation report CSV to validate")

var validCategories = map[string]bool{
	"Matched":              true,
	"Not Matched":          true,
	"Missing in Statement": true,
	"Accrual":              true,
	"Commission":           true,
	"Marketing":            true,
}

func main() {
	flag.Parse()
	if *reportFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*reportFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		log.Fatalf("read report: %v", err)
	}
	if len(rows) < 1 {
		log.Fatal("report is empty")
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, required := range []string{"window_start", "order_reference", "match_category", "statement_gross", "ledger_amount", "amount_status", "variance"} {
		if _, ok := col[required]; !ok {
			log.Fatalf("report is missing the %q column", required)
		}
	}

	problems := 0
	prevKey := ""
	totalVariance := decimal.Zero

	for n, row := range rows[1:] {
		line := n + 2

		category := row[col["match_category"]]
		if !validCategories[category] {
			problems++
			fmt.Printf("line %d: unknown match category %q\n", line, category)
		}

		key := row[col["window_start"]] + "|" + row[col["order_reference"]]
		if prevKey != "" && key < prevKey {
			problems++
			fmt.Printf("line %d: rows out of order (%q after %q)\n", line, key, prevKey)
		}
		prevKey = key

		variance, err := decimal.NewFromString(row[col["variance"]])
		if err != nil {
			problems++
			fmt.Printf("line %d: bad variance %q\n", line, row[col["variance"]])
			continue
		}

		status := row[col["amount_status"]]
		switch status {
		case "Matched":
			if !variance.IsZero() {
				problems++
				fmt.Printf("line %d: matched amount with nonzero variance %s\n", line, variance)
			}
		case "Not Matched":
			gross, gerr := decimal.NewFromString(row[col["statement_gross"]])
			ledgerRaw := row[col["ledger_amount"]]
			if gerr == nil && ledgerRaw != "" {
				ledgerAmt, lerr := decimal.NewFromString(ledgerRaw)
				if lerr == nil && !gross.Sub(ledgerAmt).Equal(variance) {
					problems++
					fmt.Printf("line %d: variance %s != statement %s - ledger %s\n", line, variance, gross, ledgerAmt)
				}
			}
			totalVariance = totalVariance.Add(variance)
		case "Ignore":
			if !variance.IsZero() {
				problems++
				fmt.Printf("line %d: ignored row with nonzero variance %s\n", line, variance)
			}
		default:
			problems++
			fmt.Printf("line %d: unknown amount status %q\n", line, status)
		}
	}

	fmt.Printf("\n%d data rows, unmatched variance total %s\n", len(rows)-1, totalVariance.StringFixed(2))
	if problems > 0 {
		fmt.Printf("%d problem(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("report is consistent")
}
