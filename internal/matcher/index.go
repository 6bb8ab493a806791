package matcher

import (
	"sort"
	"strings"
	"time"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/period"
)

// partialKey identifies a ledger order by its reference suffix and,
// optionally, its canonical location.
type partialKey struct {
	refSuffix string
	location  string
}

// LedgerIndex provides candidate lookups over ledger orders and tracks
// which orders have been consumed by a match.
type LedgerIndex struct {
	byRef     map[string][]*models.LedgerOrder
	byPartial map[partialKey][]*models.LedgerOrder
	all       []*models.LedgerOrder
	consumed  map[*models.LedgerOrder]bool
}

// NewLedgerIndex builds both lookup tables. Candidate slices are sorted by
// order date (then reference) so ties resolve deterministically.
func NewLedgerIndex(orders []*models.LedgerOrder, partialDigits int, useLocation bool) *LedgerIndex {
	idx := &LedgerIndex{
		byRef:     make(map[string][]*models.LedgerOrder),
		byPartial: make(map[partialKey][]*models.LedgerOrder),
		all:       orders,
		consumed:  make(map[*models.LedgerOrder]bool),
	}

	for _, o := range orders {
		if o.MarketplaceRef == "" {
			continue
		}
		idx.byRef[o.MarketplaceRef] = append(idx.byRef[o.MarketplaceRef], o)

		suffix, loc := o.PartialKey(partialDigits)
		if !useLocation {
			loc = ""
		}
		key := partialKey{refSuffix: suffix, location: normalizeLocation(loc)}
		idx.byPartial[key] = append(idx.byPartial[key], o)
	}

	for _, candidates := range idx.byRef {
		sortCandidates(candidates)
	}
	for _, candidates := range idx.byPartial {
		sortCandidates(candidates)
	}
	return idx
}

func sortCandidates(candidates []*models.LedgerOrder) {
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].OrderDate.Equal(candidates[j].OrderDate) {
			return candidates[i].OrderDate.Before(candidates[j].OrderDate)
		}
		return candidates[i].MarketplaceRef < candidates[j].MarketplaceRef
	})
}

func normalizeLocation(loc string) string {
	return strings.ToLower(strings.TrimSpace(loc))
}

// MatchFull returns the unconsumed ledger order with the given normalized
// reference. Duplicate references resolve to the earliest order date.
func (idx *LedgerIndex) MatchFull(ref string) (*models.LedgerOrder, bool) {
	for _, o := range idx.byRef[ref] {
		if !idx.consumed[o] {
			return o, true
		}
	}
	return nil, false
}

// MatchPartial returns the unconsumed candidate for the partial key whose
// order date is nearest to date, within toleranceDays. Equal distances
// resolve to the earlier ledger date.
func (idx *LedgerIndex) MatchPartial(refSuffix, location string, date time.Time, toleranceDays int) (*models.LedgerOrder, bool) {
	key := partialKey{refSuffix: refSuffix, location: normalizeLocation(location)}

	var best *models.LedgerOrder
	bestDist := toleranceDays + 1
	for _, o := range idx.byPartial[key] {
		if idx.consumed[o] {
			continue
		}
		dist := dayDistance(o.OrderDate, date)
		if dist > toleranceDays {
			continue
		}
		// Candidates are date-sorted, so on equal distance the earlier
		// ledger date is kept.
		if dist < bestDist {
			best = o
			bestDist = dist
		}
	}
	return best, best != nil
}

func dayDistance(a, b time.Time) int {
	d := int(models.Day(a).Sub(models.Day(b)).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// Consume marks an order as matched so later lookups skip it.
func (idx *LedgerIndex) Consume(o *models.LedgerOrder) {
	idx.consumed[o] = true
}

// UnconsumedCompleted returns completed orders inside the window that no
// statement row matched, sorted by order date then reference.
func (idx *LedgerIndex) UnconsumedCompleted(window period.Window) []*models.LedgerOrder {
	if window.IsZero() {
		return nil
	}
	var out []*models.LedgerOrder
	for _, o := range idx.all {
		if idx.consumed[o] || !o.Completed {
			continue
		}
		if !window.Contains(o.OrderDate) {
			continue
		}
		out = append(out, o)
	}
	sortCandidates(out)
	return out
}
