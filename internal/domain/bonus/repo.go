package bonus

import (
	"context"

	"github.com/google/uuid"
)

// HistoryRepository persists calculation history rows.
type HistoryRepository interface {
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*HistoryRecord, error)
	ListByPatientPeriod(ctx context.Context, patientID uuid.UUID, period Period) ([]*HistoryRecord, error)
	// CountInPeriod counts committed applications of a rule to a patient in
	// a period, excluding rows of the given visit. Monthly cap conditions
	// are decided from this count.
	CountInPeriod(ctx context.Context, ruleCode string, patientID uuid.UUID, period Period, excludeVisitID uuid.UUID) (int, error)
	// ReplaceForVisit reconciles the stored rows of a visit with the
	// desired set in one transaction: rows no longer desired are deleted,
	// new or changed rows are inserted, identical rows are left untouched.
	// It returns how many rows were added and removed.
	ReplaceForVisit(ctx context.Context, visitID uuid.UUID, desired []*HistoryRecord) (added, removed int, err error)
}

// VisitSource reads visit snapshots for calculation. It is implemented
// against the visits table directly so the engine does not depend on the
// record-keeping service layer.
type VisitSource interface {
	GetContext(ctx context.Context, visitID uuid.UUID) (*VisitContext, error)
	// ListByPatientPeriod returns the patient's visits for the period
	// ordered by visit_date, start_time, id. This order is the processing
	// order of a recalculation run.
	ListByPatientPeriod(ctx context.Context, patientID uuid.UUID, period Period) ([]*VisitContext, error)
}

// Locker serializes recalculation per patient and month. Lock blocks until
// the scope is free and returns a release function.
type Locker interface {
	Lock(ctx context.Context, patientID uuid.UUID, period Period) (release func(context.Context), err error)
}
