// Package config assembles component configurations for a reconciliation
// run from the marketplace provider profiles and command-line options.
package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/ledger"
	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/internal/reporter"
	"statement-reconciliation-service/internal/variance"
	"statement-reconciliation-service/pkg/logger"
)

// ProviderProfile describes how one marketplace's statements are ingested
// and matched.
type ProviderProfile struct {
	// Name is the canonical provider name used in filenames and reports.
	Name string

	// Layout selects the statement extractor.
	Layout StatementLayout

	// FullReference is true when statements carry complete order
	// references. False selects partial-key matching.
	FullReference bool

	// TaxRate grosses up net commission and marketing charges.
	TaxRate float64

	// AmountField is the ledger amount statement grosses compare against.
	AmountField variance.AmountField

	// RenameRule recognizes the provider's raw download filenames.
	RenameRule *extract.RenameRule
}

// StatementLayout identifies a statement document format.
type StatementLayout string

const (
	LayoutSectionedCSV StatementLayout = "sectioned-csv"
	LayoutStatementPDF StatementLayout = "statement-pdf"
)

var profiles = map[string]*ProviderProfile{
	"justeat": {
		Name:          "Just Eat",
		Layout:        LayoutStatementPDF,
		FullReference: true,
		TaxRate:       0.20,
		AmountField:   variance.FieldGrossWithTips,
		RenameRule: &extract.RenameRule{
			// Raw invoice downloads are stamped with the Sunday the
			// statement week ends on.
			Pattern:    regexp.MustCompile(`^JEInv.*_(\d{2})\.(\d{2})\.(\d{2})\.pdf$`),
			DateLayout: "02.01.06",
			DateSep:    ".",
			DayOffset:  -6,
		},
	},
	"deliveroo": {
		Name:          "Deliveroo",
		Layout:        LayoutSectionedCSV,
		FullReference: false,
		TaxRate:       0.20,
		AmountField:   variance.FieldGrossWithTips,
		RenameRule: &extract.RenameRule{
			// Raw portal exports are stamped with the Monday after the
			// statement week.
			Pattern:    regexp.MustCompile(`^GoPuff_(\d{4})(\d{2})(\d{2})_statement\.csv$`),
			DateLayout: "20060102",
			DayOffset:  -7,
		},
	},
}

// ProviderNames lists the supported provider keys.
func ProviderNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderProfileFor resolves a provider name, tolerating spaces and
// casing ("Just Eat", "justeat", "JUSTEAT" all resolve the same way).
func ProviderProfileFor(name string) (*ProviderProfile, error) {
	key := strings.ToLower(strings.Join(strings.Fields(name), ""))
	profile, ok := profiles[key]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (supported: %s)", name, strings.Join(ProviderNames(), ", "))
	}
	return profile, nil
}

// Options carries the command-line inputs for a run.
type Options struct {
	Provider        string
	Period          string
	StatementsDir   string
	LedgerDir       string
	OutputDir       string
	RefundDetailDir string
	MappingFile     string

	// TaxRate overrides the profile's rate when positive.
	TaxRate float64

	// AmountField overrides the profile's ledger amount column when set.
	AmountField string

	// Workers bounds extraction concurrency when positive.
	Workers int

	Logger logger.Logger
}

// BuildPipelineConfig resolves the provider profile and assembles the full
// pipeline configuration.
func BuildPipelineConfig(opts Options) (*reconciler.Config, error) {
	profile, err := ProviderProfileFor(opts.Provider)
	if err != nil {
		return nil, err
	}

	amountField := profile.AmountField
	if opts.AmountField != "" {
		amountField, err = variance.ParseAmountField(opts.AmountField)
		if err != nil {
			return nil, err
		}
	}

	extractCfg := extract.DefaultConfig(profile.Name)
	extractCfg.TaxRate = decimal.NewFromFloat(profile.TaxRate)
	if opts.TaxRate > 0 {
		extractCfg.TaxRate = decimal.NewFromFloat(opts.TaxRate)
	}
	if opts.Workers > 0 {
		extractCfg.Workers = opts.Workers
	}
	if opts.Logger != nil {
		extractCfg.Logger = opts.Logger
	}

	var extractors []extract.DocumentLayoutExtractor
	switch profile.Layout {
	case LayoutSectionedCSV:
		extractors = append(extractors, extract.NewSectionedCSVExtractor(extractCfg))
	case LayoutStatementPDF:
		extractors = append(extractors, extract.NewStatementPDFExtractor(extractCfg))
	default:
		return nil, fmt.Errorf("provider %s has unsupported statement layout %q", profile.Name, profile.Layout)
	}

	var matchCfg *matcher.Config
	if profile.FullReference {
		matchCfg = matcher.FullReferenceConfig(profile.Name)
	} else {
		matchCfg = matcher.DefaultConfig(profile.Name)
	}
	matchCfg.AmountField = amountField
	if opts.Logger != nil {
		matchCfg.Logger = opts.Logger
	}

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.VendorFilter = profile.Name
	if opts.Logger != nil {
		ledgerCfg.Logger = opts.Logger
	}

	return &reconciler.Config{
		Provider:        profile.Name,
		Period:          opts.Period,
		StatementsDir:   opts.StatementsDir,
		LedgerDir:       opts.LedgerDir,
		OutputDir:       opts.OutputDir,
		RefundDetailDir: opts.RefundDetailDir,
		MappingFile:     opts.MappingFile,
		RenameRule:      profile.RenameRule,
		Extract:         extractCfg,
		Extractors:      extractors,
		Ledger:          ledgerCfg,
		Matcher:         matchCfg,
		Report:          reporter.DefaultConfig(profile.Name),
		AmountField:     amountField,
		Logger:          opts.Logger,
	}, nil
}
