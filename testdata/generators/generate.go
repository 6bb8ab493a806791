// Command generate produces synthetic reconciliation fixtures: weekly
// Deliveroo statement CSVs, a matching ledger export, and a location
// mapping file. Useful for manual pipeline runs and demos.
//
// Usage:
//
//	go run ./testdata/generators -output-dir ./fixtures -weeks 2 -orders 5
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/period"
)

var (
	outputDir     = flag.String("output-dir", "fixtures", "directory to write fixtures into")
	weeks         = flag.Int("weeks", 2, "number of statement weeks to generate")
	ordersPerWeek = flag.Int("orders", 5, "orders per statement week")
	startDate     = flag.String("start", "2025-10-27", "first statement week start (a Monday, YYYY-MM-DD)")
	seed          = flag.Int64("seed", 42, "random seed for reproducible fixtures")
	missingOrders = flag.Int("missing", 1, "ledger orders per week left off the statement")
)

const (
	providerName     = "Deliveroo"
	rawLocationName  = "Leeds - City Centre"
	ledgerLocation   = "Leeds Central"
	sectionHeader    = "restaurant_name,order_number,delivery_datetime_utc,order_value_gross,commission_net,commission_vat,adjustment_net,adjustment_vat,activity,note"
	commissionRate   = 0.12
	refundEveryNth   = 4
	ledgerExportName = "ledger_export.csv"
)

type order struct {
	ref      string
	date     time.Time
	gross    float64
	onStmt   bool
	refunded bool
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	if start.Weekday() != time.Monday {
		log.Fatalf("start date %s is not a Monday", *startDate)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatal(err)
	}
	statementsDir := filepath.Join(*outputDir, "statements")
	ledgerDir := filepath.Join(*outputDir, "ledger")
	for _, dir := range []string{statementsDir, ledgerDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal(err)
		}
	}

	var all []order
	nextRef := 5555100000 + rng.Intn(1000)

	for w := 0; w < *weeks; w++ {
		weekStart := start.AddDate(0, 0, 7*w)
		var weekOrders []order
		for i := 0; i < *ordersPerWeek+*missingOrders; i++ {
			nextRef += 1 + rng.Intn(97)
			o := order{
				ref:      fmt.Sprintf("%d", nextRef),
				date:     weekStart.AddDate(0, 0, rng.Intn(7)),
				gross:    float64(800+rng.Intn(3500)) / 100,
				onStmt:   i < *ordersPerWeek,
				refunded: i < *ordersPerWeek && i%refundEveryNth == refundEveryNth-1,
			}
			weekOrders = append(weekOrders, o)
		}
		all = append(all, weekOrders...)

		name := extract.CanonicalStatementName(providerName, weekStart, ".csv")
		if err := writeStatement(filepath.Join(statementsDir, name), weekOrders); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", name)
	}

	if err := writeLedger(filepath.Join(ledgerDir, ledgerExportName), all); err != nil {
		log.Fatal(err)
	}
	mappingPath := filepath.Join(*outputDir, "locations.csv")
	if err := os.WriteFile(mappingPath, []byte(rawLocationName+","+ledgerLocation+"\n"), 0644); err != nil {
		log.Fatal(err)
	}

	window := period.Window{Start: start, End: start.AddDate(0, 0, 7**weeks-1)}
	fmt.Printf("wrote %s and %s\n", ledgerExportName, filepath.Base(mappingPath))
	fmt.Printf("statement coverage: %s\n", window)
	fmt.Printf("try: reconciler reconcile --provider deliveroo --period %s --statements-dir %s --ledger-dir %s --mapping-file %s --output-dir %s\n",
		start.AddDate(0, 0, 7).Format("2006-01"), statementsDir, ledgerDir, mappingPath, *outputDir)
}

func writeStatement(path string, orders []order) error {
	var b strings.Builder
	b.WriteString("Orders and related adjustments\n")
	b.WriteString(sectionHeader + "\n")
	for _, o := range orders {
		if !o.onStmt {
			continue
		}
		commission := -o.gross * commissionRate
		fmt.Fprintf(&b, "%s,%s,%s,%.2f,%.2f,%.2f,0.00,0.00,Delivery,\n",
			rawLocationName, o.ref, o.date.Format("2006-01-02 12:00:00"),
			o.gross, commission, commission*0.2)
	}

	var refunds []order
	for _, o := range orders {
		if o.refunded {
			refunds = append(refunds, o)
		}
	}
	if len(refunds) > 0 {
		b.WriteString("Payments for contested customer refunds\n")
		b.WriteString(sectionHeader + "\n")
		for _, o := range refunds {
			fmt.Fprintf(&b, "%s,%s,%s,0.00,0.00,0.00,%.2f,%.2f,Customer refund,Refund reason: Missing items; At fault: Partner\n",
				rawLocationName, o.ref, o.date.Format("2006-01-02 12:00:00"),
				-o.gross/4, -o.gross/20)
		}
	}

	b.WriteString("Other payments and fees\n")
	b.WriteString(sectionHeader + "\n")
	fmt.Fprintf(&b, "%s,,%s,0.00,0.00,0.00,-12.00,-2.40,Service fee,Weekly platform fee\n",
		rawLocationName, orders[0].date.Format("2006-01-02 00:00:00"))

	return os.WriteFile(path, []byte(b.String()), 0644)
}

func writeLedger(path string, orders []order) error {
	var b strings.Builder
	b.WriteString("gp_order_id,mp_order_id,location_name,order_vendor,order_completed,created_at_day,total_payment_inc_vat,total_payment_with_tips_inc_vat\n")
	for i, o := range orders {
		fmt.Fprintf(&b, "L%04d,%s,%s,%s,true,%s,%.2f,%.2f\n",
			i+1, o.ref, ledgerLocation, providerName,
			o.date.Format("2006-01-02"), o.gross, o.gross)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
