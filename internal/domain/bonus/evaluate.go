package bonus

import (
	"strings"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/domain/rules"
)

// Capability flags and numeric fields conditions can reference. An operand
// naming anything outside these sets never matches; master data with a
// typo fails closed instead of applying a surcharge by accident.
const (
	flag24HSupport     = "24h-support"
	flagEmergency      = "emergency-reason"
	flagMultiStaff     = "multi-staff-reason"
	flagLongDuration   = "long-duration-reason"
	fieldDuration      = "duration-minutes"
	fieldPatientAge    = "patient-age"
	fieldVisitOrdinal  = "visit-ordinal"
	fieldStartHour     = "start-hour"
	reasonEmergency    = flagEmergency
	reasonMultiStaff   = flagMultiStaff
	reasonLongDuration = flagLongDuration
)

// EvaluateCondition reports whether a single condition matches the visit.
// It is pure: no I/O, no clock, no mutation. Monthly cap conditions are
// cross-record and are not decided here; they return false so a caller
// that forgets to special-case them stays fail-closed.
func EvaluateCondition(cond rules.Condition, vc *VisitContext) bool {
	switch c := cond.(type) {
	case *rules.CapabilityCondition:
		v, known := capabilityValue(c.Flag, vc)
		return known && v == c.Expect
	case *rules.ThresholdCondition:
		if c.Min == nil {
			return false
		}
		v, known := numericValue(c.Field, vc)
		return known && v >= *c.Min
	case *rules.ReasonCondition:
		if c.Pattern == "" {
			return false
		}
		v, known := reasonValue(c.Field, vc)
		return known && v != "" && strings.Contains(v, c.Pattern)
	default:
		return false
	}
}

func capabilityValue(flag string, vc *VisitContext) (bool, bool) {
	switch flag {
	case flag24HSupport:
		return vc.Has24HSupport, true
	case flagEmergency:
		return vc.EmergencyReason != "", true
	case flagMultiStaff:
		return vc.MultiStaffReason != "", true
	case flagLongDuration:
		return vc.LongDurationReason != "", true
	default:
		return false, false
	}
}

func numericValue(field string, vc *VisitContext) (int, bool) {
	switch field {
	case fieldDuration:
		return vc.DurationMinutes(), true
	case fieldPatientAge:
		return vc.PatientAge, true
	case fieldVisitOrdinal:
		return vc.OrdinalInDay, true
	case fieldStartHour:
		return vc.StartTime.Hour(), true
	default:
		return 0, false
	}
}

func reasonValue(field string, vc *VisitContext) (string, bool) {
	switch field {
	case reasonEmergency:
		return vc.EmergencyReason, true
	case reasonMultiStaff:
		return vc.MultiStaffReason, true
	case reasonLongDuration:
		return vc.LongDurationReason, true
	default:
		return "", false
	}
}
