package reporter

import (
	"os"
	"path/filepath"
	"sort"

	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// FileWriter writes report artifacts to an output directory with
// consistent error handling and logging.
type FileWriter struct {
	gen *Generator
	log logger.Logger
}

// NewFileWriter wraps a generator for filesystem output.
func NewFileWriter(cfg *Config, log logger.Logger) (*FileWriter, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "report", cfg, err)
	}
	return &FileWriter{gen: gen, log: log.WithComponent("reporter")}, nil
}

// WriteReport writes the reconciliation CSV into dir and returns its path.
func (fw *FileWriter) WriteReport(dir string, window period.Window, records []*models.ReconciliationRecord) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	path := filepath.Join(dir, fw.gen.OutputFilename(window))
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.FileError(apperrors.CodeFilePermission, path, err)
	}
	defer f.Close()

	if err := fw.gen.WriteCSV(f, records); err != nil {
		return "", apperrors.ReconciliationError(apperrors.CodeReportFailed, "writing reconciliation report", err)
	}

	fw.log.WithFields(logger.Fields{
		"file": filepath.Base(path),
		"rows": len(records),
	}).Info("Reconciliation report written")
	return path, nil
}

// WriteRefundDetails writes one audit file per source statement into dir
// and returns the paths. Statements without refund details produce no file.
func (fw *FileWriter) WriteRefundDetails(dir string, details []extract.RefundDetail) ([]string, error) {
	if len(details) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	bySource := make(map[string][]extract.RefundDetail)
	for _, d := range details {
		bySource[d.SourceFile] = append(bySource[d.SourceFile], d)
	}

	var paths []string
	for _, source := range sortedKeys(bySource) {
		path := filepath.Join(dir, RefundDetailFilename(source))
		f, err := os.Create(path)
		if err != nil {
			return paths, apperrors.FileError(apperrors.CodeFilePermission, path, err)
		}
		err = fw.gen.WriteRefundDetails(f, bySource[source])
		f.Close()
		if err != nil {
			return paths, apperrors.ReconciliationError(apperrors.CodeReportFailed, "writing refund details", err)
		}
		paths = append(paths, path)
	}

	fw.log.WithField("files", len(paths)).Info("Refund detail files written")
	return paths, nil
}

func sortedKeys(m map[string][]extract.RefundDetail) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
