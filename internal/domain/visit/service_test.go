package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	visits map[uuid.UUID]*Visit
}

func newMockRepo() *mockRepo {
	return &mockRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, v *Visit) error {
	if _, ok := m.visits[v.ID]; !ok {
		return ErrVisitNotFound
	}
	v.UpdatedAt = time.Now()
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.visits[id]; !ok {
		return ErrVisitNotFound
	}
	delete(m.visits, id)
	return nil
}

func (m *mockRepo) ListByPatientRange(_ context.Context, patientID uuid.UUID, start, end time.Time) ([]*Visit, error) {
	var out []*Visit
	for _, v := range m.visits {
		if v.PatientID == patientID && !v.VisitDate.Before(start) && v.VisitDate.Before(end) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) CountOnDay(_ context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	n := 0
	for _, v := range m.visits {
		if v.PatientID == patientID && v.VisitDate.Equal(day) {
			n++
		}
	}
	return n, nil
}

type mockFacilityRepo struct {
	facilities map[uuid.UUID]*Facility
}

func (m *mockFacilityRepo) Create(_ context.Context, f *Facility) error {
	m.facilities[f.ID] = f
	return nil
}

func (m *mockFacilityRepo) GetByID(_ context.Context, id uuid.UUID) (*Facility, error) {
	f, ok := m.facilities[id]
	if !ok {
		return nil, ErrFacilityNotFound
	}
	return f, nil
}

func (m *mockFacilityRepo) List(_ context.Context) ([]*Facility, error) {
	var out []*Facility
	for _, f := range m.facilities {
		out = append(out, f)
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo, uuid.UUID) {
	repo := newMockRepo()
	facilityID := uuid.New()
	facilities := &mockFacilityRepo{facilities: map[uuid.UUID]*Facility{
		facilityID: {ID: facilityID, Name: "Sakura Station", Has24HSupport: true},
	}}
	return NewService(repo, facilities, zerolog.Nop()), repo, facilityID
}

func validRequest(facilityID uuid.UUID) *CreateVisitRequest {
	return &CreateVisitRequest{
		PatientID:         uuid.New(),
		FacilityID:        facilityID,
		VisitDate:         "2025-03-10",
		StartTime:         "19:00",
		EndTime:           "20:10",
		InsuranceCategory: "medical",
		PatientAge:        78,
		EmergencyReason:   "sudden fever reported by family",
	}
}

func TestCreateVisit(t *testing.T) {
	svc, _, facilityID := newTestService()

	v, err := svc.Create(context.Background(), validRequest(facilityID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.OrdinalInDay != 1 {
		t.Errorf("first visit of the day should get ordinal 1, got %d", v.OrdinalInDay)
	}
	if v.DurationMinutes() != 70 {
		t.Errorf("duration = %d minutes, want 70", v.DurationMinutes())
	}
	if v.StartTime.Hour() != 19 {
		t.Errorf("start hour = %d, want 19", v.StartTime.Hour())
	}
}

func TestCreateVisitOrdinalIncrements(t *testing.T) {
	svc, _, facilityID := newTestService()

	req := validRequest(facilityID)
	first, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := validRequest(facilityID)
	second.PatientID = first.PatientID
	second.StartTime = "21:00"
	second.EndTime = "21:45"
	v2, err := svc.Create(context.Background(), second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if v2.OrdinalInDay != 2 {
		t.Errorf("second visit of the day should get ordinal 2, got %d", v2.OrdinalInDay)
	}
}

func TestCreateVisitValidation(t *testing.T) {
	svc, _, facilityID := newTestService()

	cases := []struct {
		name   string
		mutate func(*CreateVisitRequest)
	}{
		{"bad date", func(r *CreateVisitRequest) { r.VisitDate = "10/03/2025" }},
		{"bad time", func(r *CreateVisitRequest) { r.StartTime = "7pm" }},
		{"end before start", func(r *CreateVisitRequest) { r.EndTime = "18:00" }},
		{"unknown category", func(r *CreateVisitRequest) { r.InsuranceCategory = "private" }},
		{"negative age", func(r *CreateVisitRequest) { r.PatientAge = -1 }},
		{"unknown facility", func(r *CreateVisitRequest) { r.FacilityID = uuid.New() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest(facilityID)
			tc.mutate(req)
			if _, err := svc.Create(context.Background(), req); !errors.Is(err, ErrInvalidVisit) {
				t.Errorf("got %v, want ErrInvalidVisit", err)
			}
		})
	}
}

func TestUpdateVisitTimes(t *testing.T) {
	svc, _, facilityID := newTestService()

	v, err := svc.Create(context.Background(), validRequest(facilityID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newEnd := "21:00"
	updated, err := svc.Update(context.Background(), v.ID, &UpdateVisitRequest{EndTime: &newEnd})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DurationMinutes() != 120 {
		t.Errorf("duration after update = %d, want 120", updated.DurationMinutes())
	}

	badEnd := "08:00"
	if _, err := svc.Update(context.Background(), v.ID, &UpdateVisitRequest{EndTime: &badEnd}); !errors.Is(err, ErrInvalidVisit) {
		t.Errorf("end before start accepted: %v", err)
	}
}

func TestListByPatientMonth(t *testing.T) {
	svc, repo, facilityID := newTestService()

	req := validRequest(facilityID)
	v, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// a visit in another month must not show up
	other := *v
	other.ID = uuid.New()
	other.VisitDate = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	repo.visits[other.ID] = &other

	visits, err := svc.ListByPatientMonth(context.Background(), v.PatientID, 2025, time.March)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit in March, got %d", len(visits))
	}
	if visits[0].ID != v.ID {
		t.Error("wrong visit returned")
	}
}
