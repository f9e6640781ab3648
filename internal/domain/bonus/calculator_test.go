package bonus

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// memHistory is an in-memory HistoryRepository with the same diff
// semantics as the Postgres implementation.
type memHistory struct {
	mu        sync.Mutex
	rows      map[uuid.UUID][]*HistoryRecord
	failVisit uuid.UUID
	failErr   error
}

func newMemHistory() *memHistory {
	return &memHistory{rows: make(map[uuid.UUID][]*HistoryRecord)}
}

func (m *memHistory) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*HistoryRecord(nil), m.rows[visitID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RuleCode < out[j].RuleCode })
	return out, nil
}

func (m *memHistory) ListByPatientPeriod(_ context.Context, patientID uuid.UUID, period Period) ([]*HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryRecord
	for _, recs := range m.rows {
		for _, r := range recs {
			if r.PatientID == patientID && !r.VisitDate.Before(period.Start()) && r.VisitDate.Before(period.End()) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.Before(out[j].VisitDate)
		}
		return out[i].RuleCode < out[j].RuleCode
	})
	return out, nil
}

func (m *memHistory) CountInPeriod(_ context.Context, ruleCode string, patientID uuid.UUID, period Period, excludeVisitID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for visitID, recs := range m.rows {
		if visitID == excludeVisitID {
			continue
		}
		for _, r := range recs {
			if r.PatientID == patientID && r.RuleCode == ruleCode &&
				!r.VisitDate.Before(period.Start()) && r.VisitDate.Before(period.End()) {
				n++
			}
		}
	}
	return n, nil
}

func (m *memHistory) ReplaceForVisit(_ context.Context, visitID uuid.UUID, desired []*HistoryRecord) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil && visitID == m.failVisit {
		return 0, 0, m.failErr
	}

	existing := make(map[string]*HistoryRecord)
	for _, r := range m.rows[visitID] {
		existing[r.RuleCode] = r
	}
	wanted := make(map[string]*HistoryRecord)
	for _, r := range desired {
		wanted[r.RuleCode] = r
	}

	added, removed := 0, 0
	var next []*HistoryRecord
	for code, old := range existing {
		if want, ok := wanted[code]; ok &&
			want.RuleVersion == old.RuleVersion && want.Points == old.Points && want.Justification == old.Justification {
			next = append(next, old)
			continue
		}
		removed++
	}
	for code, want := range wanted {
		if old, ok := existing[code]; ok &&
			old.RuleVersion == want.RuleVersion && old.Points == want.Points && old.Justification == want.Justification {
			continue
		}
		cp := *want
		next = append(next, &cp)
		added++
	}
	m.rows[visitID] = next
	return added, removed, nil
}

// memVisits is an in-memory VisitSource.
type memVisits struct {
	visits []*VisitContext
}

func (m *memVisits) GetContext(_ context.Context, visitID uuid.UUID) (*VisitContext, error) {
	for _, v := range m.visits {
		if v.VisitID == visitID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrVisitNotFound, visitID)
}

func (m *memVisits) ListByPatientPeriod(_ context.Context, patientID uuid.UUID, period Period) ([]*VisitContext, error) {
	var out []*VisitContext
	for _, v := range m.visits {
		if v.PatientID == patientID && !v.VisitDate.Before(period.Start()) && v.VisitDate.Before(period.End()) {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.Before(out[j].VisitDate)
		}
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].VisitID.String() < out[j].VisitID.String()
	})
	return out, nil
}

// memLocker is a Locker that records lock activity.
type memLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
}

func (m *memLocker) Lock(_ context.Context, patientID uuid.UUID, period Period) (func(context.Context), error) {
	m.mu.Lock()
	m.acquired = append(m.acquired, patientID.String()+"/"+period.String())
	m.mu.Unlock()
	return func(context.Context) {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}, nil
}

type staticCatalog struct {
	cat *rules.Catalog
}

func (s *staticCatalog) Snapshot(context.Context) (*rules.Catalog, error) {
	return s.cat, nil
}

func decodeConditions(t *testing.T, raw string) rules.ConditionList {
	t.Helper()
	var list rules.ConditionList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.Fatalf("decode conditions: %v", err)
	}
	return list
}

func conditionalRule(t *testing.T, code string, version int, from time.Time, to *time.Time, condJSON string) *rules.RuleDefinition {
	t.Helper()
	return &rules.RuleDefinition{
		ID:            uuid.New(),
		Code:          code,
		Version:       version,
		Name:          code,
		Category:      rules.CategoryMedical,
		PointsMode:    rules.PointsConditional,
		Conditions:    decodeConditions(t, condJSON),
		EffectiveFrom: from,
		EffectiveTo:   to,
		Active:        true,
	}
}

func fixedRule(code string, version, points int, cat rules.InsuranceCategory, from time.Time) *rules.RuleDefinition {
	return &rules.RuleDefinition{
		ID:            uuid.New(),
		Code:          code,
		Version:       version,
		Name:          code,
		Category:      cat,
		PointsMode:    rules.PointsFixed,
		FixedPoints:   &points,
		EffectiveFrom: from,
		Active:        true,
	}
}

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// eveningCatalog holds the rule set behind the canonical example: a 19:00
// emergency visit at a 24-hour-support station earns both the emergency
// surcharge and the support-system surcharge.
func eveningCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	return rules.NewCatalog([]*rules.RuleDefinition{
		conditionalRule(t, "emergency-visit", 1, epoch, nil,
			`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":2650}]`),
		conditionalRule(t, "support-system-24h", 1, epoch, nil,
			`[{"kind":"capability","flag":"24h-support","expect":true,"priority":1,"points":6400}]`),
		conditionalRule(t, "multi-staff-visit", 1, epoch, nil,
			`[{"kind":"capability","flag":"multi-staff-reason","expect":true,"priority":1,"points":4500}]`),
	})
}

func newCalculator(history *memHistory) *Calculator {
	return NewCalculator(NewAggregateChecker(history), zerolog.Nop())
}

func TestCalculateEveningEmergencyVisit(t *testing.T) {
	calc := newCalculator(newMemHistory())
	vc := eveningEmergencyVisit()

	got, err := calc.Calculate(context.Background(), eveningCatalog(t), vc)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected exactly 2 surcharges, got %d: %+v", len(got), got)
	}
	// sorted code order
	if got[0].RuleCode != "emergency-visit" || got[1].RuleCode != "support-system-24h" {
		t.Errorf("unexpected rules: %+v", got)
	}
	if got[0].Points != 2650 || got[1].Points != 6400 {
		t.Errorf("unexpected points: %+v", got)
	}
	for _, b := range got {
		if b.Justification == "" {
			t.Errorf("rule %s has no justification", b.RuleCode)
		}
		if b.RuleVersion != 1 {
			t.Errorf("rule %s pinned to version %d, want 1", b.RuleCode, b.RuleVersion)
		}
	}
}

func TestCalculateDeterministic(t *testing.T) {
	calc := newCalculator(newMemHistory())
	cat := eveningCatalog(t)
	vc := eveningEmergencyVisit()

	first, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("first calculate: %v", err)
	}
	second, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("second calculate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same inputs produced different output:\n%+v\n%+v", first, second)
	}
}

func TestCalculateFirstMatchWins(t *testing.T) {
	calc := newCalculator(newMemHistory())
	vc := eveningEmergencyVisit() // 90 minutes

	cat := rules.NewCatalog([]*rules.RuleDefinition{
		conditionalRule(t, "long-visit", 1, epoch, nil, `[
			{"kind":"threshold","field":"duration-minutes","min":120,"priority":1,"points":5200},
			{"kind":"threshold","field":"duration-minutes","min":60,"priority":2,"points":3000}
		]`),
	})

	got, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surcharge, got %d", len(got))
	}
	// priority 1 does not match at 90 minutes, priority 2 does
	if got[0].Points != 3000 {
		t.Errorf("points = %d, want 3000 from the second branch", got[0].Points)
	}

	// both branches match at 150 minutes; the higher priority one wins
	vc.EndTime = vc.StartTime.Add(150 * time.Minute)
	got, err = calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate long: %v", err)
	}
	if len(got) != 1 || got[0].Points != 5200 {
		t.Errorf("expected the priority 1 branch at 5200 points, got %+v", got)
	}
}

func TestCalculateCategoryFiltering(t *testing.T) {
	calc := newCalculator(newMemHistory())
	vc := eveningEmergencyVisit()
	vc.Category = rules.CategoryLongTermCare

	cat := rules.NewCatalog([]*rules.RuleDefinition{
		fixedRule("medical-base", 1, 1000, rules.CategoryMedical, epoch),
		fixedRule("care-base", 1, 800, rules.CategoryLongTermCare, epoch),
	})

	got, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(got) != 1 || got[0].RuleCode != "care-base" {
		t.Errorf("long-term-care visit got wrong rules: %+v", got)
	}
}

func TestCalculateVersionBoundary(t *testing.T) {
	calc := newCalculator(newMemHistory())

	cutover := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v1 := conditionalRule(t, "emergency-visit", 1, epoch, &cutover,
		`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":2500}]`)
	v2 := conditionalRule(t, "emergency-visit", 2, cutover, nil,
		`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":2650}]`)
	cat := rules.NewCatalog([]*rules.RuleDefinition{v1, v2})

	vc := eveningEmergencyVisit()
	vc.VisitDate = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	got, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate 2024-12-31: %v", err)
	}
	if len(got) != 1 || got[0].RuleVersion != 1 || got[0].Points != 2500 {
		t.Errorf("last day of v1: %+v", got)
	}

	vc.VisitDate = cutover
	got, err = calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate 2025-01-01: %v", err)
	}
	if len(got) != 1 || got[0].RuleVersion != 2 || got[0].Points != 2650 {
		t.Errorf("first day of v2: %+v", got)
	}
}

func TestCalculateSkipsUnresolvableRule(t *testing.T) {
	calc := newCalculator(newMemHistory())
	vc := eveningEmergencyVisit()

	// two active versions with overlapping ranges make the code ambiguous
	broken1 := conditionalRule(t, "broken-overlap", 1, epoch, nil,
		`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":100}]`)
	broken2 := conditionalRule(t, "broken-overlap", 2, epoch, nil,
		`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":200}]`)
	good := conditionalRule(t, "emergency-visit", 1, epoch, nil,
		`[{"kind":"capability","flag":"emergency-reason","expect":true,"priority":1,"points":2650}]`)
	cat := rules.NewCatalog([]*rules.RuleDefinition{broken1, broken2, good})

	got, err := calc.Calculate(context.Background(), cat, vc)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(got) != 1 || got[0].RuleCode != "emergency-visit" {
		t.Errorf("broken rule should be skipped, good rule kept: %+v", got)
	}
}

func TestCalculateMonthlyCap(t *testing.T) {
	history := newMemHistory()
	calc := newCalculator(history)

	cat := rules.NewCatalog([]*rules.RuleDefinition{
		conditionalRule(t, "special-management", 1, epoch, nil,
			`[{"kind":"monthly-cap","max":1,"priority":1,"points":2500}]`),
	})

	first := eveningEmergencyVisit()
	got, err := calc.Calculate(context.Background(), cat, first)
	if err != nil {
		t.Fatalf("first visit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("first visit of the month should get the capped rule, got %+v", got)
	}

	// commit the first visit's result, then evaluate a second visit in the
	// same month for the same patient
	if _, _, err := history.ReplaceForVisit(context.Background(), first.VisitID, []*HistoryRecord{{
		ID: uuid.New(), VisitID: first.VisitID, PatientID: first.PatientID,
		VisitDate: first.VisitDate, RuleCode: "special-management", RuleVersion: 1, Points: 2500,
	}}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	second := eveningEmergencyVisit()
	second.PatientID = first.PatientID
	second.VisitDate = first.VisitDate.AddDate(0, 0, 7)

	got, err = calc.Calculate(context.Background(), cat, second)
	if err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("cap of 1 reached, second visit still got %+v", got)
	}

	// re-evaluating the first visit must not count its own row
	got, err = calc.Calculate(context.Background(), cat, first)
	if err != nil {
		t.Fatalf("re-evaluate first visit: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("re-evaluation counted the visit's own row against the cap: %+v", got)
	}
}
