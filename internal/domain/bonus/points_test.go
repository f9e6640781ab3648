package bonus

import (
	"encoding/json"
	"testing"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

func TestResolvePointsFixed(t *testing.T) {
	points := 2500
	def := &rules.RuleDefinition{Code: "special-management", Version: 1, PointsMode: rules.PointsFixed, FixedPoints: &points}

	got, err := ResolvePoints(def, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 2500 {
		t.Errorf("fixed points = %d, want 2500 verbatim", got)
	}
}

func TestResolvePointsFixedWithoutValue(t *testing.T) {
	def := &rules.RuleDefinition{Code: "broken", Version: 1, PointsMode: rules.PointsFixed}
	if _, err := ResolvePoints(def, nil); err == nil {
		t.Error("fixed rule without a value should not resolve")
	}
}

func TestResolvePointsConditional(t *testing.T) {
	var list rules.ConditionList
	if err := json.Unmarshal([]byte(`[{"kind":"capability","flag":"24h-support","expect":true,"priority":1,"points":6400}]`), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	def := &rules.RuleDefinition{Code: "24h-support-system", Version: 2, PointsMode: rules.PointsConditional, Conditions: list}

	got, err := ResolvePoints(def, list[0])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 6400 {
		t.Errorf("conditional points = %d, want 6400 from the matched branch", got)
	}

	if _, err := ResolvePoints(def, nil); err == nil {
		t.Error("conditional rule without a matched condition should not resolve")
	}
}
