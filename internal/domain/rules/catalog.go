package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrRuleNotFound is returned when no version of a rule code covers the
	// requested date.
	ErrRuleNotFound = errors.New("bonus rule not found")
	// ErrAmbiguousVersion is returned when more than one version of a rule
	// code covers the requested date. Overlapping effective ranges are a
	// master-data defect; the resolver refuses to pick one.
	ErrAmbiguousVersion = errors.New("ambiguous bonus rule version")
)

// Catalog is an immutable snapshot of the active rule versions, taken once
// per calculation run so that every visit in the run sees the same rule set.
type Catalog struct {
	byCode map[string][]*RuleDefinition
	codes  []string
}

// NewCatalog builds a snapshot from the given definitions. Inactive
// definitions are skipped. Versions for a code are kept in effective_from
// order.
func NewCatalog(defs []*RuleDefinition) *Catalog {
	byCode := make(map[string][]*RuleDefinition)
	for _, d := range defs {
		if !d.Active {
			continue
		}
		byCode[d.Code] = append(byCode[d.Code], d)
	}

	codes := make([]string, 0, len(byCode))
	for code, versions := range byCode {
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].EffectiveFrom.Before(versions[j].EffectiveFrom)
		})
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return &Catalog{byCode: byCode, codes: codes}
}

// Codes returns every rule code in the snapshot, sorted. Iterating this
// order keeps calculation output deterministic.
func (c *Catalog) Codes() []string {
	return c.codes
}

// CodesForCategory returns the sorted codes whose versions belong to the
// given insurance category. A code whose versions disagree on category is
// master data the admin tool should never produce; the first version wins.
func (c *Catalog) CodesForCategory(cat InsuranceCategory) []string {
	out := make([]string, 0, len(c.codes))
	for _, code := range c.codes {
		versions := c.byCode[code]
		if len(versions) > 0 && versions[0].Category == cat {
			out = append(out, code)
		}
	}
	return out
}

// Versions returns the snapshot's versions for a code, in effective_from
// order, or nil when the code is unknown.
func (c *Catalog) Versions(code string) []*RuleDefinition {
	return c.byCode[code]
}

// Len returns the number of distinct rule codes in the snapshot.
func (c *Catalog) Len() int {
	return len(c.codes)
}

// Resolve returns the single version of code whose effective interval
// covers asOf. A visit on the last day of an outgoing version resolves to
// that version; a visit on the first day of the successor resolves to the
// successor, because effective_to is exclusive.
func (c *Catalog) Resolve(code string, asOf time.Time) (*RuleDefinition, error) {
	versions, ok := c.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s as of %s", ErrRuleNotFound, code, asOf.Format("2006-01-02"))
	}

	var found *RuleDefinition
	for _, v := range versions {
		if !v.CoversDate(asOf) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s versions %d and %d both cover %s",
				ErrAmbiguousVersion, code, found.Version, v.Version, asOf.Format("2006-01-02"))
		}
		found = v
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s as of %s", ErrRuleNotFound, code, asOf.Format("2006-01-02"))
	}
	return found, nil
}
