package bonus

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// Calculator decides which surcharges apply to one visit. Given the same
// catalog snapshot, visit context, and committed history, its output is
// deterministic: rule codes are walked in sorted order and conditions in
// priority order.
type Calculator struct {
	checker *AggregateChecker
	logger  zerolog.Logger
}

func NewCalculator(checker *AggregateChecker, logger zerolog.Logger) *Calculator {
	return &Calculator{checker: checker, logger: logger}
}

// Calculate evaluates every rule of the visit's insurance category against
// the visit. A rule that cannot be resolved for the visit date, or whose
// definition is inconsistent, is skipped with a log line; one broken rule
// never blocks the rest. The returned error is reserved for infrastructure
// failures while reading aggregates.
func (c *Calculator) Calculate(ctx context.Context, cat *rules.Catalog, vc *VisitContext) ([]CalculatedBonus, error) {
	out := make([]CalculatedBonus, 0, 4)

	for _, code := range cat.CodesForCategory(vc.Category) {
		def, err := cat.Resolve(code, vc.VisitDate)
		if err != nil {
			evt := c.logger.Warn()
			if errors.Is(err, rules.ErrRuleNotFound) {
				// no version covers the visit date; common for retired rules
				evt = c.logger.Debug()
			}
			evt.
				Str("rule_code", code).
				Str("visit_id", vc.VisitID.String()).
				Str("visit_date", vc.VisitDate.Format("2006-01-02")).
				Err(err).
				Msg("rule skipped")
			continue
		}

		matched, applies, err := c.ruleApplies(ctx, def, vc)
		if err != nil {
			return nil, err
		}
		if !applies {
			continue
		}

		points, err := ResolvePoints(def, matched)
		if err != nil {
			c.logger.Warn().
				Str("rule_code", code).
				Str("visit_id", vc.VisitID.String()).
				Err(err).
				Msg("rule skipped")
			continue
		}

		out = append(out, CalculatedBonus{
			RuleCode:      def.Code,
			RuleVersion:   def.Version,
			Points:        points,
			Justification: Justification(def, matched),
		})
	}

	return out, nil
}

// ruleApplies decides whether one resolved rule version applies to the
// visit. Fixed-mode rules apply unconditionally within their effective
// range. Conditional rules evaluate their conditions in priority order and
// the first match wins; malformed conditions never match.
func (c *Calculator) ruleApplies(ctx context.Context, def *rules.RuleDefinition, vc *VisitContext) (rules.Condition, bool, error) {
	if def.PointsMode == rules.PointsFixed {
		return nil, true, nil
	}

	for _, cond := range def.OrderedConditions() {
		if mc, ok := cond.(*rules.MonthlyCapCondition); ok {
			within, err := c.checker.WithinLimit(ctx, def.Code, vc.PatientID, PeriodOf(vc.VisitDate), vc.VisitID, mc.Max)
			if err != nil {
				return nil, false, fmt.Errorf("rule %s: %w", def.Code, err)
			}
			if within {
				return cond, true, nil
			}
			continue
		}
		if EvaluateCondition(cond, vc) {
			return cond, true, nil
		}
	}
	return nil, false, nil
}
