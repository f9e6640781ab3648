package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ruleVersion(code string, version int, cat InsuranceCategory, from time.Time, to *time.Time) *RuleDefinition {
	return &RuleDefinition{
		ID:            uuid.New(),
		Code:          code,
		Version:       version,
		Name:          code,
		Category:      cat,
		PointsMode:    PointsFixed,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Active:        true,
	}
}

func TestCatalogResolveVersionBoundary(t *testing.T) {
	cutover := date(2025, 1, 1)
	v1 := ruleVersion("emergency-visit", 1, CategoryMedical, date(2020, 1, 1), &cutover)
	v2 := ruleVersion("emergency-visit", 2, CategoryMedical, cutover, nil)
	cat := NewCatalog([]*RuleDefinition{v2, v1})

	got, err := cat.Resolve("emergency-visit", date(2024, 12, 31))
	if err != nil {
		t.Fatalf("resolve last day of v1: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("2024-12-31 resolved to version %d, want 1", got.Version)
	}

	got, err = cat.Resolve("emergency-visit", date(2025, 1, 1))
	if err != nil {
		t.Fatalf("resolve first day of v2: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("2025-01-01 resolved to version %d, want 2", got.Version)
	}
}

func TestCatalogResolveNotFound(t *testing.T) {
	to := date(2024, 6, 1)
	cat := NewCatalog([]*RuleDefinition{
		ruleVersion("long-visit", 1, CategoryMedical, date(2024, 1, 1), &to),
	})

	if _, err := cat.Resolve("no-such-code", date(2024, 3, 1)); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("unknown code: got %v, want ErrRuleNotFound", err)
	}

	// coverage gap after the only version ends
	if _, err := cat.Resolve("long-visit", date(2024, 7, 1)); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("coverage gap: got %v, want ErrRuleNotFound", err)
	}
}

func TestCatalogResolveAmbiguous(t *testing.T) {
	cat := NewCatalog([]*RuleDefinition{
		ruleVersion("multi-staff", 1, CategoryMedical, date(2024, 1, 1), nil),
		ruleVersion("multi-staff", 2, CategoryMedical, date(2024, 6, 1), nil),
	})

	if _, err := cat.Resolve("multi-staff", date(2024, 7, 1)); !errors.Is(err, ErrAmbiguousVersion) {
		t.Errorf("overlap: got %v, want ErrAmbiguousVersion", err)
	}

	// before the overlap only v1 covers
	got, err := cat.Resolve("multi-staff", date(2024, 3, 1))
	if err != nil {
		t.Fatalf("resolve before overlap: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("got version %d, want 1", got.Version)
	}
}

func TestCatalogSkipsInactive(t *testing.T) {
	inactive := ruleVersion("draft-rule", 1, CategoryMedical, date(2024, 1, 1), nil)
	inactive.Active = false
	cat := NewCatalog([]*RuleDefinition{inactive})

	if cat.Len() != 0 {
		t.Errorf("inactive rule ended up in catalog, len=%d", cat.Len())
	}
	if _, err := cat.Resolve("draft-rule", date(2024, 2, 1)); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("inactive rule resolvable: %v", err)
	}
}

func TestCatalogCodesSortedByCategory(t *testing.T) {
	cat := NewCatalog([]*RuleDefinition{
		ruleVersion("care-terminal", 1, CategoryLongTermCare, date(2024, 1, 1), nil),
		ruleVersion("emergency-visit", 1, CategoryMedical, date(2024, 1, 1), nil),
		ruleVersion("after-hours", 1, CategoryMedical, date(2024, 1, 1), nil),
	})

	medical := cat.CodesForCategory(CategoryMedical)
	if len(medical) != 2 || medical[0] != "after-hours" || medical[1] != "emergency-visit" {
		t.Errorf("medical codes wrong: %v", medical)
	}

	care := cat.CodesForCategory(CategoryLongTermCare)
	if len(care) != 1 || care[0] != "care-terminal" {
		t.Errorf("long-term-care codes wrong: %v", care)
	}
}
