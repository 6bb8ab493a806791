package cmd

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"statement-reconciliation-service/cmd/reconciler/config"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/internal/reporter"
	"statement-reconciliation-service/internal/variance"
	"statement-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	provider        string
	accountingPer   string
	statementsDir   string
	ledgerDir       string
	outputDir       string
	refundDetailDir string
	mappingFile     string
	taxRate         float64
	amountField     string
	workers         int
	showProgress    bool
)

var periodRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile marketplace statements against the order ledger",
	Long: `Reconcile extracts a month of marketplace statement documents, loads the
internal order ledger, pairs statement rows with ledger orders, and writes
a reconciliation report with per-order variances.

The accounting period snaps to whole Monday-to-Sunday statement weeks.
Ledger orders completed after the last available statement are reported as
accruals.

Examples:
  # Reconcile Deliveroo statements for November 2025
  reconciler reconcile --provider deliveroo --period 2025-11 \
    --statements-dir ./statements --ledger-dir ./ledger --output-dir ./out \
    --mapping-file locations.csv

  # Just Eat with a custom tax rate and progress output
  reconciler reconcile --provider justeat --period 2025-11 \
    --statements-dir ./je --ledger-dir ./ledger --output-dir ./out \
    --tax-rate 0.20 --progress

  # Compare against the ledger amount excluding tips
  reconciler reconcile --provider deliveroo --period 2025-11 \
    --statements-dir ./statements --ledger-dir ./ledger --output-dir ./out \
    --amount-field gross_payment`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&provider, "provider", "P", "", "marketplace provider: deliveroo, justeat (required)")
	reconcileCmd.Flags().StringVarP(&accountingPer, "period", "p", "", "accounting period YYYY-MM (required)")
	reconcileCmd.Flags().StringVar(&statementsDir, "statements-dir", "", "directory of statement documents (required)")
	reconcileCmd.Flags().StringVar(&ledgerDir, "ledger-dir", "", "directory of ledger export CSVs (required)")
	reconcileCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the reconciliation report (required)")

	// Optional flags
	reconcileCmd.Flags().StringVar(&refundDetailDir, "refund-detail-dir", "", "directory for refund audit files (default: output dir)")
	reconcileCmd.Flags().StringVarP(&mappingFile, "mapping-file", "m", "", "CSV mapping statement location names to ledger names")
	reconcileCmd.Flags().Float64Var(&taxRate, "tax-rate", 0, "tax rate for grossing up net charges (default: provider profile)")
	reconcileCmd.Flags().StringVar(&amountField, "amount-field", "", "ledger amount column: gross_with_tips, gross_payment")
	reconcileCmd.Flags().IntVar(&workers, "workers", 0, "statement extraction concurrency (default: 4)")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show a run summary on completion")

	reconcileCmd.MarkFlagRequired("provider")
	reconcileCmd.MarkFlagRequired("period")
	reconcileCmd.MarkFlagRequired("statements-dir")
	reconcileCmd.MarkFlagRequired("ledger-dir")
	reconcileCmd.MarkFlagRequired("output-dir")

	// Bind flags to viper
	viper.BindPFlag("provider", reconcileCmd.Flags().Lookup("provider"))
	viper.BindPFlag("period", reconcileCmd.Flags().Lookup("period"))
	viper.BindPFlag("statements-dir", reconcileCmd.Flags().Lookup("statements-dir"))
	viper.BindPFlag("ledger-dir", reconcileCmd.Flags().Lookup("ledger-dir"))
	viper.BindPFlag("output-dir", reconcileCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("refund-detail-dir", reconcileCmd.Flags().Lookup("refund-detail-dir"))
	viper.BindPFlag("mapping-file", reconcileCmd.Flags().Lookup("mapping-file"))
	viper.BindPFlag("tax-rate", reconcileCmd.Flags().Lookup("tax-rate"))
	viper.BindPFlag("amount-field", reconcileCmd.Flags().Lookup("amount-field"))
	viper.BindPFlag("workers", reconcileCmd.Flags().Lookup("workers"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Viper values allow overrides from config file and environment.
	provider = viper.GetString("provider")
	accountingPer = viper.GetString("period")
	statementsDir = viper.GetString("statements-dir")
	ledgerDir = viper.GetString("ledger-dir")
	outputDir = viper.GetString("output-dir")
	refundDetailDir = viper.GetString("refund-detail-dir")
	mappingFile = viper.GetString("mapping-file")
	taxRate = viper.GetFloat64("tax-rate")
	amountField = viper.GetString("amount-field")
	workers = viper.GetInt("workers")
	showProgress = viper.GetBool("progress")

	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if _, err := config.ProviderProfileFor(provider); err != nil {
		return err
	}

	if accountingPer == "" {
		return fmt.Errorf("period is required")
	}
	if !periodRe.MatchString(accountingPer) {
		return fmt.Errorf("invalid period %q: use YYYY-MM, e.g. 2025-11", accountingPer)
	}

	if err := validateDirExists(statementsDir, "statements directory"); err != nil {
		return err
	}
	if err := validateDirExists(ledgerDir, "ledger directory"); err != nil {
		return err
	}
	if outputDir == "" {
		return fmt.Errorf("output-dir is required")
	}

	if mappingFile != "" {
		info, err := os.Stat(mappingFile)
		if err != nil {
			return fmt.Errorf("mapping file is not readable: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("mapping file is a directory: %s", mappingFile)
		}
	}

	if taxRate < 0 || taxRate >= 1 {
		return fmt.Errorf("tax rate must be a fraction between 0 and 1, got %v", taxRate)
	}
	if amountField != "" {
		if _, err := variance.ParseAmountField(amountField); err != nil {
			return err
		}
	}
	if workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}

	return nil
}

func validateDirExists(path, description string) error {
	if path == "" {
		return fmt.Errorf("%s is required", description)
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, path)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %s", description, path)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	log := logger.GetGlobalLogger()
	if viper.GetBool("verbose") {
		logCfg := logger.DebugConfig()
		if l, err := logger.NewLogger(logCfg); err == nil {
			log = l
		}
	}

	pipelineCfg, err := config.BuildPipelineConfig(config.Options{
		Provider:        provider,
		Period:          accountingPer,
		StatementsDir:   statementsDir,
		LedgerDir:       ledgerDir,
		OutputDir:       outputDir,
		RefundDetailDir: refundDetailDir,
		MappingFile:     mappingFile,
		TaxRate:         taxRate,
		AmountField:     amountField,
		Workers:         workers,
		Logger:          log,
	})
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	pipeline, err := reconciler.NewPipeline(pipelineCfg)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	ShowWarnings(result.Warnings)

	if showProgress || viper.GetBool("verbose") {
		gen, err := reporter.NewGenerator(pipelineCfg.Report)
		if err == nil {
			gen.WriteSummary(os.Stderr, result.Summary, result.TotalVariance.StringFixed(2))
		}
		fmt.Fprintf(os.Stderr, "\nReport: %s\n", result.OutputPath)
		for _, p := range result.RefundDetailPaths {
			fmt.Fprintf(os.Stderr, "Refund details: %s\n", p)
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), result.OutputPath)
	}

	return nil
}
