package bonus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service ties the calculator, the orchestrator, and the history store
// together behind the operations the HTTP layer exposes.
type Service struct {
	visits   VisitSource
	history  HistoryRepository
	locker   Locker
	catalogs CatalogSource
	calc     *Calculator
	orch     *Orchestrator
	logger   zerolog.Logger
}

func NewService(visits VisitSource, history HistoryRepository, locker Locker, catalogs CatalogSource, logger zerolog.Logger) *Service {
	calc := NewCalculator(NewAggregateChecker(history), logger)
	return &Service{
		visits:   visits,
		history:  history,
		locker:   locker,
		catalogs: catalogs,
		calc:     calc,
		orch:     NewOrchestrator(visits, history, locker, catalogs, calc, logger),
		logger:   logger,
	}
}

// CalculateVisit runs the single-visit path: calculate the surcharges for
// one visit against a fresh catalog snapshot and persist the difference.
// Record-entry screens call this right after a visit is saved or edited.
// It holds the same patient-month lock as a batch run; monthly cap counts
// would otherwise race a concurrent recalculation or a calculate on a
// sibling visit.
func (s *Service) CalculateVisit(ctx context.Context, visitID uuid.UUID) ([]CalculatedBonus, error) {
	vc, err := s.visits.GetContext(ctx, visitID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, vc.PatientID, PeriodOf(vc.VisitDate))
	if err != nil {
		return nil, fmt.Errorf("lock patient %s period %s: %w", vc.PatientID, PeriodOf(vc.VisitDate), err)
	}
	defer release(ctx)

	catalog, err := s.catalogs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}

	bonuses, err := s.calc.Calculate(ctx, catalog, vc)
	if err != nil {
		return nil, err
	}

	desired := make([]*HistoryRecord, 0, len(bonuses))
	for _, b := range bonuses {
		desired = append(desired, recordFromBonus(vc, b))
	}

	added, removed, err := s.history.ReplaceForVisit(ctx, visitID, desired)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("visit_id", visitID.String()).
		Int("rules", len(bonuses)).
		Int("added", added).
		Int("removed", removed).
		Msg("visit bonuses calculated")
	return bonuses, nil
}

// Recalculate runs the batch path for one patient and month.
func (s *Service) Recalculate(ctx context.Context, patientID uuid.UUID, period Period) (*Summary, error) {
	return s.orch.Recalculate(ctx, patientID, period)
}

// ListVisitBonuses returns the stored history rows of one visit.
func (s *Service) ListVisitBonuses(ctx context.Context, visitID uuid.UUID) ([]*HistoryRecord, error) {
	return s.history.ListByVisit(ctx, visitID)
}

// ListPatientBonuses returns the stored history rows of a patient's month.
func (s *Service) ListPatientBonuses(ctx context.Context, patientID uuid.UUID, period Period) ([]*HistoryRecord, error) {
	return s.history.ListByPatientPeriod(ctx, patientID, period)
}

func recordFromBonus(vc *VisitContext, b CalculatedBonus) *HistoryRecord {
	return &HistoryRecord{
		ID:            uuid.New(),
		VisitID:       vc.VisitID,
		PatientID:     vc.PatientID,
		VisitDate:     vc.VisitDate,
		RuleCode:      b.RuleCode,
		RuleVersion:   b.RuleVersion,
		Points:        b.Points,
		Justification: b.Justification,
		CalculatedAt:  time.Now().UTC(),
	}
}
