package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVisitNotFound    = errors.New("visit not found")
	ErrFacilityNotFound = errors.New("facility not found")
)

// Repository persists visit records.
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatientRange returns the patient's visits with visit_date in
	// [start, end), ordered by visit_date, start_time, id. The order is the
	// processing order of a recalculation run.
	ListByPatientRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*Visit, error)
	// CountOnDay returns how many visits the patient already has on a date.
	CountOnDay(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error)
}

// FacilityRepository persists nursing stations.
type FacilityRepository interface {
	Create(ctx context.Context, f *Facility) error
	GetByID(ctx context.Context, id uuid.UUID) (*Facility, error)
	List(ctx context.Context) ([]*Facility, error)
}
