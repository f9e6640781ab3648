package bonus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// VisitContext is the read-only snapshot of one visit that the calculator
// evaluates conditions against. It joins the visit row with the facility
// capability flags so evaluation itself needs no I/O.
type VisitContext struct {
	VisitID            uuid.UUID
	PatientID          uuid.UUID
	FacilityID         uuid.UUID
	VisitDate          time.Time
	StartTime          time.Time
	EndTime            time.Time
	Category           rules.InsuranceCategory
	PatientAge         int
	Has24HSupport      bool
	EmergencyReason    string
	MultiStaffReason   string
	LongDurationReason string
	OrdinalInDay       int
}

// DurationMinutes returns the visit length in whole minutes.
func (v *VisitContext) DurationMinutes() int {
	return int(v.EndTime.Sub(v.StartTime).Minutes())
}

// CalculatedBonus is one surcharge the calculator decided applies to a
// visit, pinned to the exact rule version that produced it.
type CalculatedBonus struct {
	RuleCode      string `json:"rule_code"`
	RuleVersion   int    `json:"rule_version"`
	Points        int    `json:"points"`
	Justification string `json:"justification"`
}

// HistoryRecord is one persisted row of bonus_calculation_history. Rows
// are immutable once written; a recalculation replaces rows rather than
// updating them.
type HistoryRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	VisitID       uuid.UUID `db:"visit_id" json:"visit_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitDate     time.Time `db:"visit_date" json:"visit_date"`
	RuleCode      string    `db:"rule_code" json:"rule_code"`
	RuleVersion   int       `db:"rule_version" json:"rule_version"`
	Points        int       `db:"points" json:"points"`
	Justification string    `db:"justification" json:"justification"`
	CalculatedAt  time.Time `db:"calculated_at" json:"calculated_at"`
}

// Period is one calendar month, the unit of batch recalculation and of
// monthly cap counting.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("period must be YYYY-MM: %q", s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the calendar month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month. Date ranges built
// from a period are [Start, End).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Summary reports what a recalculation run did.
type Summary struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Period          string    `json:"period"`
	VisitsProcessed int       `json:"visits_processed"`
	RulesApplied    int       `json:"rules_applied"`
	RulesRemoved    int       `json:"rules_removed"`
}
