// Package ledger loads the internal accounting export that statement
// transactions reconcile against. The export is a folder of CSV files with
// one row per order; files are concatenated and rows normalized into
// LedgerOrder values.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Config controls ledger loading.
type Config struct {
	// ColumnAliases maps logical field names to the header spellings the
	// export may use. Lookup is case-insensitive with spaces collapsed.
	ColumnAliases map[string][]string

	// VendorFilter keeps only rows whose vendor column matches
	// (case-insensitive). Empty keeps everything.
	VendorFilter string

	// Window keeps only rows whose order date falls inside it. The zero
	// window keeps everything.
	Window period.Window

	Logger logger.Logger
}

// DefaultConfig returns a configuration with the standard export column
// aliases.
func DefaultConfig() *Config {
	return &Config{
		ColumnAliases: map[string][]string{
			"order_id":            {"gp_order_id", "order_id", "id"},
			"order_id_obfuscated": {"gp_order_id_obfuscated", "id_obfuscated", "order_id_obfuscated"},
			"marketplace_ref":     {"mp_order_id", "partner_customer_order_number", "marketplace_order_id"},
			"location":            {"location_name", "mfc_name", "site_name"},
			"vendor":              {"order_vendor", "vendor", "marketplace"},
			"completed":           {"order_completed", "completed", "is_completed"},
			"order_date":          {"created_at_day", "order_date", "ops_day"},
			"gross_payment":       {"total_payment_inc_vat", "total_inc_vat", "gross_payment"},
			"gross_with_tips":     {"total_payment_with_tips_inc_vat", "total_inc_tips_local", "gross_with_tips"},
		},
		Logger: logger.GetGlobalLogger(),
	}
}

// requiredFields must resolve to a column in every ledger file.
var requiredFields = []string{"marketplace_ref", "location", "completed", "order_date"}

// optionalMoneyFields degrade to zero with a schema-drift warning when the
// column is absent.
var optionalMoneyFields = []string{"gross_payment", "gross_with_tips"}

// LoadStats summarizes a ledger load.
type LoadStats struct {
	FilesRead      int
	FilesSkipped   int
	RowsLoaded     int
	RowsDropped    int
	RowsFiltered   int
	DriftWarnings  []*apperrors.ReconcilerError
	MissingColumns map[string][]string // file -> missing optional columns
}

// Loader reads ledger export folders.
type Loader struct {
	cfg *Config
	log logger.Logger
}

// NewLoader creates a loader. A nil config uses defaults.
func NewLoader(cfg *Config) *Loader {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ColumnAliases == nil {
		cfg.ColumnAliases = DefaultConfig().ColumnAliases
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}
	return &Loader{cfg: cfg, log: cfg.Logger.WithComponent("ledger")}
}

// LoadDir reads every CSV file in dir, concatenates the rows, and returns
// the normalized orders. Files that fail to parse are skipped with a
// warning; the load fails only when zero files parse.
func (l *Loader) LoadDir(dir string) ([]*models.LedgerOrder, *LoadStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, nil, apperrors.MissingInputError("ledger", dir)
	}

	stats := &LoadStats{MissingColumns: make(map[string][]string)}
	var orders []*models.LedgerOrder

	for _, path := range files {
		fileOrders, err := l.loadFile(path, stats)
		if err != nil {
			l.log.WithError(err).WithField("file", filepath.Base(path)).Warn("Ledger file skipped")
			stats.FilesSkipped++
			continue
		}
		orders = append(orders, fileOrders...)
		stats.FilesRead++
	}

	if stats.FilesRead == 0 {
		return nil, nil, apperrors.MissingInputError("usable ledger", dir)
	}

	l.log.WithFields(logger.Fields{
		"files":    stats.FilesRead,
		"skipped":  stats.FilesSkipped,
		"rows":     stats.RowsLoaded,
		"dropped":  stats.RowsDropped,
		"filtered": stats.RowsFiltered,
	}).Info("Ledger loaded")

	return orders, stats, nil
}

func (l *Loader) loadFile(path string, stats *LoadStats) ([]*models.LedgerOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := l.resolveColumns(path, header, stats)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	var orders []*models.LedgerOrder
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			stats.RowsDropped++
			continue
		}

		order, err := l.rowToOrder(cols, header, record)
		if err != nil {
			l.log.WithError(err).WithFields(logger.Fields{
				"file": name,
				"row":  rowNum,
			}).Debug("Ledger row dropped")
			stats.RowsDropped++
			continue
		}
		if order == nil {
			stats.RowsFiltered++
			continue
		}
		orders = append(orders, order)
		stats.RowsLoaded++
	}
	return orders, nil
}

// resolvedColumns maps logical field names to header positions. -1 means
// the field has no column in this file.
type resolvedColumns map[string]int

func (l *Loader) resolveColumns(path string, header []string, stats *LoadStats) (resolvedColumns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}

	cols := make(resolvedColumns)
	for field, aliases := range l.cfg.ColumnAliases {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := index[normalizeHeader(alias)]; ok {
				cols[field] = i
				break
			}
		}
	}

	for _, field := range requiredFields {
		if cols[field] == -1 {
			return nil, fmt.Errorf("required column %q not found (aliases: %s)",
				field, strings.Join(l.cfg.ColumnAliases[field], ", "))
		}
	}

	var missing []string
	for _, field := range optionalMoneyFields {
		if cols[field] == -1 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		name := filepath.Base(path)
		drift := apperrors.SchemaDriftError(name, missing)
		stats.DriftWarnings = append(stats.DriftWarnings, drift)
		stats.MissingColumns[name] = missing
		l.log.WithFields(logger.Fields{
			"file":    name,
			"columns": strings.Join(missing, ", "),
		}).Warn("Ledger schema drift: expected columns absent, amounts default to zero")
	}

	return cols, nil
}

// rowToOrder converts one CSV record. Returns (nil, nil) when the row is
// excluded by the vendor or window filter.
func (l *Loader) rowToOrder(cols resolvedColumns, header []string, record []string) (*models.LedgerOrder, error) {
	get := func(field string) string {
		i := cols[field]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	if vendor := get("vendor"); l.cfg.VendorFilter != "" && vendor != "" &&
		!strings.EqualFold(vendor, l.cfg.VendorFilter) {
		return nil, nil
	}

	ref := models.CleanOrderReference(get("marketplace_ref"))
	if ref == "" {
		return nil, fmt.Errorf("row has no marketplace reference")
	}

	orderDate, err := models.ParseFlexibleDate(get("order_date"))
	if err != nil {
		return nil, err
	}
	if !l.cfg.Window.IsZero() && !l.cfg.Window.Contains(orderDate) {
		return nil, nil
	}

	grossPayment, err := models.ParseMoney(get("gross_payment"))
	if err != nil {
		return nil, err
	}
	grossWithTips, err := models.ParseMoney(get("gross_with_tips"))
	if err != nil {
		return nil, err
	}

	order := &models.LedgerOrder{
		OrderID:           get("order_id"),
		OrderIDObfuscated: get("order_id_obfuscated"),
		MarketplaceRef:    ref,
		Location:          get("location"),
		Vendor:            get("vendor"),
		Completed:         models.ParseBool(get("completed")),
		OrderDate:         orderDate,
		GrossPayment:      grossPayment,
		GrossWithTips:     grossWithTips,
		Extra:             make(map[string]string),
	}

	// Preserve columns the model does not name so the report can carry
	// them through unchanged.
	known := make(map[int]bool, len(cols))
	for _, i := range cols {
		if i >= 0 {
			known[i] = true
		}
	}
	for i, h := range header {
		if known[i] || i >= len(record) {
			continue
		}
		order.Extra[normalizeHeader(h)] = strings.TrimSpace(record[i])
	}

	return order, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(strings.ReplaceAll(h, "_", " ")), "_")
}
