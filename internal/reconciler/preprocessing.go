package reconciler

import (
	"statement-reconciliation-service/internal/extract"
	"statement-reconciliation-service/internal/mapping"
	"statement-reconciliation-service/internal/models"
	apperrors "statement-reconciliation-service/pkg/errors"
)

// prepareStatements canonicalizes raw statement downloads so the
// extraction pass can date and select them by filename.
func (p *Pipeline) prepareStatements() error {
	if p.cfg.RenameRule == nil {
		return nil
	}
	renamed, err := extract.RenameRawStatements(p.cfg.Provider, p.cfg.StatementsDir, *p.cfg.RenameRule, p.log)
	if err != nil {
		return err
	}
	if renamed > 0 {
		p.log.WithField("renamed", renamed).Info("Raw statement files canonicalized")
	}
	return nil
}

// loadMapping reads the location mapping file into the extraction
// configuration.
func (p *Pipeline) loadMapping() error {
	if p.cfg.MappingFile == "" || p.cfg.Extract.Mapping != nil {
		return nil
	}
	store, err := mapping.LoadFile(p.cfg.MappingFile)
	if err != nil {
		return err
	}
	p.cfg.Extract.Mapping = store
	p.log.WithField("entries", store.Len()).Debug("Location mapping loaded")
	return nil
}

// collectUnmapped surfaces statement locations the mapping file does not
// cover. The run continues; affected rows reconcile as not matched.
func (p *Pipeline) collectUnmapped(transactions []*models.StatementTransaction, result *Result) {
	store := p.cfg.Extract.Mapping
	if store == nil {
		return
	}
	var names []string
	for _, tx := range transactions {
		if tx.RawLocation != "" {
			names = append(names, tx.RawLocation)
		}
	}
	unmapped := store.Unmapped(names)
	if len(unmapped) == 0 {
		return
	}
	result.UnmappedLocations = unmapped
	warn := apperrors.UnmappedLocationsError(unmapped)
	result.Warnings = append(result.Warnings, warn)
	p.log.WithField("locations", len(unmapped)).Warn(warn.Message)
}
