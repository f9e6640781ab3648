package bonus

import "errors"

var (
	// ErrPersistenceConflict is returned when writing history rows collides
	// with a concurrent writer, surfaced from the unique constraint on
	// (visit_id, rule_code). The advisory lock makes this unreachable for
	// well-behaved callers; it exists as the last line of defense.
	ErrPersistenceConflict = errors.New("bonus history write conflict")

	// ErrVisitNotFound is returned when a calculation is requested for a
	// visit that does not exist.
	ErrVisitNotFound = errors.New("visit not found")
)
