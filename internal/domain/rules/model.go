package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsuranceCategory is the billing regime a rule belongs to. The two
// categories are mutually exclusive; a rule never applies across both.
type InsuranceCategory string

const (
	CategoryMedical      InsuranceCategory = "medical"
	CategoryLongTermCare InsuranceCategory = "long-term-care"
)

func (c InsuranceCategory) Valid() bool {
	return c == CategoryMedical || c == CategoryLongTermCare
}

// PointsMode selects how a rule's point value is derived.
type PointsMode string

const (
	PointsFixed       PointsMode = "fixed"
	PointsConditional PointsMode = "conditional"
)

// ConditionKind discriminates the condition variants.
type ConditionKind string

const (
	KindCapability ConditionKind = "capability"
	KindThreshold  ConditionKind = "threshold"
	KindReason     ConditionKind = "reason"
	KindMonthlyCap ConditionKind = "monthly-cap"
	kindMalformed  ConditionKind = "malformed"
)

// Condition is one check inside a conditional rule. The set of variants is
// closed; each carries only the operands its kind needs, plus the priority
// that orders first-match evaluation and the points of its branch.
type Condition interface {
	Kind() ConditionKind
	Priority() int
	Points() int
	// Describe returns the human-readable justification recorded when this
	// condition is the one that matched.
	Describe() string
}

type conditionBase struct {
	Rank         int `json:"priority"`
	BranchPoints int `json:"points"`
}

func (b conditionBase) Priority() int { return b.Rank }
func (b conditionBase) Points() int   { return b.BranchPoints }

// CapabilityCondition matches a boolean circumstance flag on the visit or
// its facility, e.g. 24-hour support or an emergency visit reason being
// present.
type CapabilityCondition struct {
	conditionBase
	Flag   string `json:"flag"`
	Expect bool   `json:"expect"`
}

func (c *CapabilityCondition) Kind() ConditionKind { return KindCapability }
func (c *CapabilityCondition) Describe() string {
	return fmt.Sprintf("capability %s=%t", c.Flag, c.Expect)
}

// ThresholdCondition matches when a numeric attribute of the visit is
// greater than or equal to Min. The comparison is inclusive.
type ThresholdCondition struct {
	conditionBase
	Field string `json:"field"`
	Min   *int   `json:"min"`
}

func (c *ThresholdCondition) Kind() ConditionKind { return KindThreshold }
func (c *ThresholdCondition) Describe() string {
	if c.Min == nil {
		return fmt.Sprintf("threshold %s>=?", c.Field)
	}
	return fmt.Sprintf("threshold %s>=%d", c.Field, *c.Min)
}

// ReasonCondition matches when the named reason field of the visit contains
// Pattern as a substring.
type ReasonCondition struct {
	conditionBase
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
}

func (c *ReasonCondition) Kind() ConditionKind { return KindReason }
func (c *ReasonCondition) Describe() string {
	return fmt.Sprintf("reason %s~%q", c.Field, c.Pattern)
}

// MonthlyCapCondition matches while the rule has been applied to the
// patient fewer than Max times in the visit's calendar month. The count is
// taken over committed history rows, excluding the visit under evaluation.
type MonthlyCapCondition struct {
	conditionBase
	Max int `json:"max"`
}

func (c *MonthlyCapCondition) Kind() ConditionKind { return KindMonthlyCap }
func (c *MonthlyCapCondition) Describe() string {
	return fmt.Sprintf("within monthly cap of %d", c.Max)
}

// MalformedCondition stands in for a condition entry that could not be
// decoded. It never matches, so an unreadable master-data row fails closed
// instead of failing the calculation.
type MalformedCondition struct {
	conditionBase
	Raw    json.RawMessage
	Reason string
}

func (c *MalformedCondition) Kind() ConditionKind { return kindMalformed }
func (c *MalformedCondition) Describe() string {
	return fmt.Sprintf("malformed condition (%s)", c.Reason)
}

// ConditionList decodes the JSONB condition array stored on a rule version.
type ConditionList []Condition

type conditionEnvelope struct {
	Kind ConditionKind `json:"kind"`
	conditionBase
	Flag    string `json:"flag"`
	Expect  bool   `json:"expect"`
	Field   string `json:"field"`
	Min     *int   `json:"min"`
	Pattern string `json:"pattern"`
	Max     int    `json:"max"`
}

func (l *ConditionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	out := make(ConditionList, 0, len(raws))
	for _, raw := range raws {
		out = append(out, decodeCondition(raw))
	}
	*l = out
	return nil
}

func decodeCondition(raw json.RawMessage) Condition {
	var env conditionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &MalformedCondition{Raw: raw, Reason: err.Error()}
	}

	switch env.Kind {
	case KindCapability:
		if env.Flag == "" {
			return &MalformedCondition{conditionBase: env.conditionBase, Raw: raw, Reason: "capability without flag"}
		}
		return &CapabilityCondition{conditionBase: env.conditionBase, Flag: env.Flag, Expect: env.Expect}
	case KindThreshold:
		if env.Field == "" {
			return &MalformedCondition{conditionBase: env.conditionBase, Raw: raw, Reason: "threshold without field"}
		}
		return &ThresholdCondition{conditionBase: env.conditionBase, Field: env.Field, Min: env.Min}
	case KindReason:
		if env.Field == "" {
			return &MalformedCondition{conditionBase: env.conditionBase, Raw: raw, Reason: "reason without field"}
		}
		return &ReasonCondition{conditionBase: env.conditionBase, Field: env.Field, Pattern: env.Pattern}
	case KindMonthlyCap:
		return &MonthlyCapCondition{conditionBase: env.conditionBase, Max: env.Max}
	default:
		return &MalformedCondition{conditionBase: env.conditionBase, Raw: raw, Reason: fmt.Sprintf("unknown kind %q", env.Kind)}
	}
}

func (l ConditionList) MarshalJSON() ([]byte, error) {
	out := make([]map[string]interface{}, 0, len(l))
	for _, c := range l {
		m := map[string]interface{}{
			"kind":     c.Kind(),
			"priority": c.Priority(),
			"points":   c.Points(),
		}
		switch v := c.(type) {
		case *CapabilityCondition:
			m["flag"] = v.Flag
			m["expect"] = v.Expect
		case *ThresholdCondition:
			m["field"] = v.Field
			if v.Min != nil {
				m["min"] = *v.Min
			}
		case *ReasonCondition:
			m["field"] = v.Field
			m["pattern"] = v.Pattern
		case *MonthlyCapCondition:
			m["max"] = v.Max
		}
		out = append(out, m)
	}
	return json.Marshal(out)
}

// RuleDefinition maps to one row of the bonus_rules table: a date-bounded
// version of one surcharge code. Owned by the master-data administration
// tool; this service only reads it.
type RuleDefinition struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	Code          string            `db:"code" json:"code"`
	Version       int               `db:"version" json:"version"`
	Name          string            `db:"name" json:"name"`
	Category      InsuranceCategory `db:"insurance_category" json:"insurance_category"`
	PointsMode    PointsMode        `db:"points_mode" json:"points_mode"`
	FixedPoints   *int              `db:"fixed_points" json:"fixed_points,omitempty"`
	Conditions    ConditionList     `db:"conditions" json:"conditions"`
	EffectiveFrom time.Time         `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time        `db:"effective_to" json:"effective_to,omitempty"`
	Active        bool              `db:"active" json:"active"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// CoversDate reports whether the version's [effective_from, effective_to)
// interval contains d. effective_to is exclusive when present, unbounded
// when absent.
func (r *RuleDefinition) CoversDate(d time.Time) bool {
	if d.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !d.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// OrderedConditions returns the conditions sorted by ascending priority,
// preserving the defined order for equal priorities.
func (r *RuleDefinition) OrderedConditions() []Condition {
	out := make([]Condition, len(r.Conditions))
	copy(out, r.Conditions)
	// insertion sort keeps the sort stable without pulling in sort.SliceStable
	// on every calculation; condition lists are short.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority() < out[j-1].Priority(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
