package bonus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// CatalogSource provides the rule snapshot a run calculates against.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*rules.Catalog, error)
}

// Orchestrator runs batch recalculation for a patient and month. Visits
// are processed strictly in chronological order and each visit's history
// is committed before the next visit is evaluated, so monthly caps see the
// decisions already made earlier in the run.
type Orchestrator struct {
	visits   VisitSource
	history  HistoryRepository
	locker   Locker
	catalogs CatalogSource
	calc     *Calculator
	logger   zerolog.Logger
	now      func() time.Time
}

func NewOrchestrator(visits VisitSource, history HistoryRepository, locker Locker, catalogs CatalogSource, calc *Calculator, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		visits:   visits,
		history:  history,
		locker:   locker,
		catalogs: catalogs,
		calc:     calc,
		logger:   logger,
		now:      time.Now,
	}
}

// Recalculate reprocesses every visit of the patient in the period. The
// patient-month scope is held under an advisory lock for the whole run;
// concurrent requests for the same scope queue up rather than interleave.
// On failure the run halts at the failing visit; everything committed
// before it stays committed, and the error names where to resume.
func (o *Orchestrator) Recalculate(ctx context.Context, patientID uuid.UUID, period Period) (*Summary, error) {
	release, err := o.locker.Lock(ctx, patientID, period)
	if err != nil {
		return nil, fmt.Errorf("lock patient %s period %s: %w", patientID, period, err)
	}
	defer release(ctx)

	// the snapshot is taken once; master-data edits during the run do not
	// split the month across rule sets
	catalog, err := o.catalogs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}

	visits, err := o.visits.ListByPatientPeriod(ctx, patientID, period)
	if err != nil {
		return nil, fmt.Errorf("list visits for %s %s: %w", patientID, period, err)
	}

	summary := &Summary{PatientID: patientID, Period: period.String()}
	start := o.now()

	for i, vc := range visits {
		added, removed, err := o.processVisit(ctx, catalog, vc)
		if err != nil {
			return nil, fmt.Errorf("recalculation halted at visit %d of %d (visit %s, %s): %w",
				i+1, len(visits), vc.VisitID, vc.VisitDate.Format("2006-01-02"), err)
		}
		summary.VisitsProcessed++
		summary.RulesApplied += added
		summary.RulesRemoved += removed
	}

	o.logger.Info().
		Str("patient_id", patientID.String()).
		Str("period", period.String()).
		Int("visits", summary.VisitsProcessed).
		Int("applied", summary.RulesApplied).
		Int("removed", summary.RulesRemoved).
		Dur("elapsed", o.now().Sub(start)).
		Msg("recalculation completed")
	return summary, nil
}

// processVisit calculates the desired rule set for one visit and persists
// the difference. ReplaceForVisit commits before returning, which is what
// makes the per-visit results visible to cap checks later in the run.
func (o *Orchestrator) processVisit(ctx context.Context, catalog *rules.Catalog, vc *VisitContext) (added, removed int, err error) {
	bonuses, err := o.calc.Calculate(ctx, catalog, vc)
	if err != nil {
		return 0, 0, err
	}

	desired := make([]*HistoryRecord, 0, len(bonuses))
	now := o.now().UTC()
	for _, b := range bonuses {
		desired = append(desired, &HistoryRecord{
			ID:            uuid.New(),
			VisitID:       vc.VisitID,
			PatientID:     vc.PatientID,
			VisitDate:     vc.VisitDate,
			RuleCode:      b.RuleCode,
			RuleVersion:   b.RuleVersion,
			Points:        b.Points,
			Justification: b.Justification,
			CalculatedAt:  now,
		})
	}

	return o.history.ReplaceForVisit(ctx, vc.VisitID, desired)
}
