package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// Visit is one completed nursing visit record. The fields mirror what the
// record-entry screens capture; the bonus engine reads them but never
// writes them.
type Visit struct {
	ID                 uuid.UUID               `db:"id" json:"id"`
	PatientID          uuid.UUID               `db:"patient_id" json:"patient_id"`
	FacilityID         uuid.UUID               `db:"facility_id" json:"facility_id"`
	VisitDate          time.Time               `db:"visit_date" json:"visit_date"`
	StartTime          time.Time               `db:"start_time" json:"start_time"`
	EndTime            time.Time               `db:"end_time" json:"end_time"`
	InsuranceCategory  rules.InsuranceCategory `db:"insurance_category" json:"insurance_category"`
	PatientAge         int                     `db:"patient_age" json:"patient_age"`
	EmergencyReason    string                  `db:"emergency_reason" json:"emergency_reason,omitempty"`
	MultiStaffReason   string                  `db:"multi_staff_reason" json:"multi_staff_reason,omitempty"`
	LongDurationReason string                  `db:"long_duration_reason" json:"long_duration_reason,omitempty"`
	OrdinalInDay       int                     `db:"ordinal_in_day" json:"ordinal_in_day"`
	CreatedAt          time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time               `db:"updated_at" json:"updated_at"`
}

// DurationMinutes returns the visit length in whole minutes.
func (v *Visit) DurationMinutes() int {
	return int(v.EndTime.Sub(v.StartTime).Minutes())
}

// Facility is the visiting nursing station a visit belongs to. The
// 24-hour support flag feeds capability conditions during calculation.
type Facility struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Has24HSupport bool      `db:"has_24h_support" json:"has_24h_support"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CreateVisitRequest is the payload for recording a visit.
type CreateVisitRequest struct {
	PatientID          uuid.UUID `json:"patient_id"`
	FacilityID         uuid.UUID `json:"facility_id"`
	VisitDate          string    `json:"visit_date"`
	StartTime          string    `json:"start_time"`
	EndTime            string    `json:"end_time"`
	InsuranceCategory  string    `json:"insurance_category"`
	PatientAge         int       `json:"patient_age"`
	EmergencyReason    string    `json:"emergency_reason"`
	MultiStaffReason   string    `json:"multi_staff_reason"`
	LongDurationReason string    `json:"long_duration_reason"`
}

// UpdateVisitRequest carries the editable fields of a visit. Times and
// reasons may change after the fact; identity fields may not.
type UpdateVisitRequest struct {
	StartTime          *string `json:"start_time"`
	EndTime            *string `json:"end_time"`
	EmergencyReason    *string `json:"emergency_reason"`
	MultiStaffReason   *string `json:"multi_staff_reason"`
	LongDurationReason *string `json:"long_duration_reason"`
}
