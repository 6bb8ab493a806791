// Package mapping resolves provider location labels to canonical ledger
// location names. Providers print their own site names on statements;
// matching on the partial-key join requires the ledger's spelling.
package mapping

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	apperrors "statement-reconciliation-service/pkg/errors"
)

// Store holds the provider-name to ledger-name mapping.
type Store struct {
	byProviderName map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byProviderName: make(map[string]string)}
}

// NewStoreFromMap creates a store from an in-memory mapping, mainly for
// tests and defaults.
func NewStoreFromMap(m map[string]string) *Store {
	s := NewStore()
	for k, v := range m {
		s.Add(k, v)
	}
	return s
}

// LoadFile reads a two-column CSV mapping file (provider name, ledger
// name). A header row is detected and skipped when its first cell does not
// look like data used elsewhere in the file.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
		}
		return nil, apperrors.FileError(apperrors.CodeFilePermission, path, err)
	}
	defer f.Close()

	s, err := load(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidFormat,
			fmt.Sprintf("invalid mapping file %s", path))
	}
	return s, nil
}

func load(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	s := NewStore()
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			continue
		}
		provider := strings.TrimSpace(record[0])
		ledger := strings.TrimSpace(record[1])
		if provider == "" || ledger == "" {
			continue
		}
		// Tolerate an optional header row.
		if first && looksLikeHeader(provider, ledger) {
			first = false
			continue
		}
		first = false
		s.Add(provider, ledger)
	}
	return s, nil
}

func looksLikeHeader(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, "provider") || strings.Contains(la, "statement") ||
		strings.Contains(lb, "ledger") || strings.Contains(lb, "location")
}

// Add registers one mapping entry. Lookup keys are case-insensitive and
// whitespace-trimmed.
func (s *Store) Add(providerName, ledgerName string) {
	s.byProviderName[normalize(providerName)] = ledgerName
}

// Lookup resolves a provider location label to the canonical ledger name.
func (s *Store) Lookup(providerName string) (string, bool) {
	v, ok := s.byProviderName[normalize(providerName)]
	return v, ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.byProviderName)
}

// Unmapped returns the sorted unique provider names from the input that
// have no mapping entry.
func (s *Store) Unmapped(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := s.Lookup(name); ok {
			continue
		}
		if !seen[normalize(name)] {
			seen[normalize(name)] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
