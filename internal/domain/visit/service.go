package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

var ErrInvalidVisit = errors.New("invalid visit")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Service validates and persists visit records.
type Service struct {
	repo       Repository
	facilities FacilityRepository
	logger     zerolog.Logger
}

func NewService(repo Repository, facilities FacilityRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, facilities: facilities, logger: logger}
}

// Create records a visit. The ordinal within the day is derived from the
// visits already recorded for the patient on that date.
func (s *Service) Create(ctx context.Context, req *CreateVisitRequest) (*Visit, error) {
	day, start, end, err := parseTimes(req.VisitDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	cat := rules.InsuranceCategory(req.InsuranceCategory)
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: unknown insurance category %q", ErrInvalidVisit, req.InsuranceCategory)
	}
	if req.PatientAge < 0 {
		return nil, fmt.Errorf("%w: negative patient age", ErrInvalidVisit)
	}

	if _, err := s.facilities.GetByID(ctx, req.FacilityID); err != nil {
		if errors.Is(err, ErrFacilityNotFound) {
			return nil, fmt.Errorf("%w: facility %s does not exist", ErrInvalidVisit, req.FacilityID)
		}
		return nil, err
	}

	sameDay, err := s.repo.CountOnDay(ctx, req.PatientID, day)
	if err != nil {
		return nil, err
	}

	v := &Visit{
		ID:                 uuid.New(),
		PatientID:          req.PatientID,
		FacilityID:         req.FacilityID,
		VisitDate:          day,
		StartTime:          start,
		EndTime:            end,
		InsuranceCategory:  cat,
		PatientAge:         req.PatientAge,
		EmergencyReason:    req.EmergencyReason,
		MultiStaffReason:   req.MultiStaffReason,
		LongDurationReason: req.LongDurationReason,
		OrdinalInDay:       sameDay + 1,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("visit_id", v.ID.String()).
		Str("patient_id", v.PatientID.String()).
		Str("visit_date", day.Format(dateLayout)).
		Int("ordinal", v.OrdinalInDay).
		Msg("visit recorded")
	return v, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

// Update edits times and reasons of an existing visit. Callers are
// expected to trigger a bonus recalculation afterwards; this service does
// not do it implicitly.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateVisitRequest) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.StartTime != nil {
		t, err := timeOnDay(v.VisitDate, *req.StartTime)
		if err != nil {
			return nil, err
		}
		v.StartTime = t
	}
	if req.EndTime != nil {
		t, err := timeOnDay(v.VisitDate, *req.EndTime)
		if err != nil {
			return nil, err
		}
		v.EndTime = t
	}
	if !v.EndTime.After(v.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidVisit)
	}
	if req.EmergencyReason != nil {
		v.EmergencyReason = *req.EmergencyReason
	}
	if req.MultiStaffReason != nil {
		v.MultiStaffReason = *req.MultiStaffReason
	}
	if req.LongDurationReason != nil {
		v.LongDurationReason = *req.LongDurationReason
	}

	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes a visit. Its calculation history rows go with it through
// the foreign key cascade.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// ListByPatientMonth returns the patient's visits for one calendar month
// in processing order.
func (s *Service) ListByPatientMonth(ctx context.Context, patientID uuid.UUID, year int, month time.Month) ([]*Visit, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.repo.ListByPatientRange(ctx, patientID, start, start.AddDate(0, 1, 0))
}

func parseTimes(dateStr, startStr, endStr string) (day, start, end time.Time, err error) {
	day, err = time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return day, start, end, fmt.Errorf("%w: visit_date must be YYYY-MM-DD", ErrInvalidVisit)
	}
	start, err = timeOnDay(day, startStr)
	if err != nil {
		return day, start, end, err
	}
	end, err = timeOnDay(day, endStr)
	if err != nil {
		return day, start, end, err
	}
	if !end.After(start) {
		return day, start, end, fmt.Errorf("%w: end time must be after start time", ErrInvalidVisit)
	}
	return day, start, end, nil
}

func timeOnDay(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, hhmm, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time must be HH:MM", ErrInvalidVisit)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
