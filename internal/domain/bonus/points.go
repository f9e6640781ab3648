package bonus

import (
	"errors"
	"fmt"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

var errRuleMisconfigured = errors.New("rule misconfigured")

// ResolvePoints derives the point value of an applying rule. Fixed-mode
// rules carry the value on the definition; conditional rules take it from
// the branch that matched. The value is copied verbatim, never scaled.
func ResolvePoints(def *rules.RuleDefinition, matched rules.Condition) (int, error) {
	switch def.PointsMode {
	case rules.PointsFixed:
		if def.FixedPoints == nil {
			return 0, fmt.Errorf("%w: %s v%d is fixed mode without a point value", errRuleMisconfigured, def.Code, def.Version)
		}
		return *def.FixedPoints, nil
	case rules.PointsConditional:
		if matched == nil {
			return 0, fmt.Errorf("%w: %s v%d resolved without a matched condition", errRuleMisconfigured, def.Code, def.Version)
		}
		return matched.Points(), nil
	default:
		return 0, fmt.Errorf("%w: %s v%d has unknown points mode %q", errRuleMisconfigured, def.Code, def.Version, def.PointsMode)
	}
}

// Justification returns the stored explanation for why a rule applied.
func Justification(def *rules.RuleDefinition, matched rules.Condition) string {
	if def.PointsMode == rules.PointsFixed {
		return fmt.Sprintf("fixed surcharge %s", def.Name)
	}
	if matched != nil {
		return matched.Describe()
	}
	return def.Name
}
