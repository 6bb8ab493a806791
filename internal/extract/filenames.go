package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"statement-reconciliation-service/internal/models"
	apperrors "statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Canonical statement filenames look like
// "25.11.03 - Deliveroo Statement.csv": a YY.MM.DD week-start date, the
// provider name, and the Statement suffix.
var canonicalNameRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{2}) - (.+) Statement\.(?i:csv|pdf)$`)

// ParseStatementFilename extracts the week-start date from a canonical
// statement filename for the given provider. Two-digit years resolve into
// the 2000s.
func ParseStatementFilename(provider, name string) (time.Time, bool) {
	m := canonicalNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	if provider != "" && m[4] != provider {
		return time.Time{}, false
	}
	t, err := time.Parse("06.01.02", fmt.Sprintf("%s.%s.%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return models.Day(t), true
}

// CanonicalStatementName builds the canonical filename for a provider
// statement covering the week starting on day.
func CanonicalStatementName(provider string, day time.Time, ext string) string {
	return fmt.Sprintf("%s - %s Statement%s", day.Format("06.01.02"), provider, ext)
}

// RenameRule describes how to recognize a provider's raw download filename
// and recover the statement date from it.
type RenameRule struct {
	// Pattern must capture the date parts named by DateLayout, e.g.
	// `^JEInv.*_(\d{2})\.(\d{2})\.(\d{2})\.pdf$` with layout "02.01.06".
	Pattern *regexp.Regexp
	// DateLayout is the Go layout the joined capture groups parse as.
	DateLayout string
	// DateSep joins the capture groups before parsing.
	DateSep string
	// DayOffset shifts the parsed date to the statement week start.
	// Some providers stamp files with the payment date instead.
	DayOffset int
}

// RenameRawStatements renames raw provider downloads in dir to the
// canonical form so the batch scanner can date-filter them. Files already
// in canonical form are left alone. Returns the number of files renamed.
func RenameRawStatements(provider, dir string, rule RenameRule, log logger.Logger) (int, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("rename")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, apperrors.FileError(apperrors.CodeDirectoryError, dir, err)
	}

	renamed := 0
	for _, e := range entries {
		if e.IsDir() || canonicalNameRe.MatchString(e.Name()) {
			continue
		}
		m := rule.Pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}

		joined := m[1]
		for _, g := range m[2:] {
			joined += rule.DateSep + g
		}
		t, err := time.Parse(rule.DateLayout, joined)
		if err != nil {
			log.WithField("file", e.Name()).Warn("Raw statement filename date did not parse")
			continue
		}
		day := models.Day(t).AddDate(0, 0, rule.DayOffset)

		target := CanonicalStatementName(provider, day, filepath.Ext(e.Name()))
		if err := os.Rename(filepath.Join(dir, e.Name()), filepath.Join(dir, target)); err != nil {
			return renamed, apperrors.FileError(apperrors.CodeFilePermission, filepath.Join(dir, e.Name()), err)
		}
		log.WithFields(logger.Fields{"from": e.Name(), "to": target}).Info("Renamed raw statement")
		renamed++
	}
	return renamed, nil
}
