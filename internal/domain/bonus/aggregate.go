package bonus

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AggregateChecker answers monthly cap questions from committed history
// rows. It deliberately reads through the repository on every call rather
// than caching: within a sequential recalculation run, the commit of visit
// N must be visible when visit N+1 is evaluated.
type AggregateChecker struct {
	history HistoryRepository
}

func NewAggregateChecker(history HistoryRepository) *AggregateChecker {
	return &AggregateChecker{history: history}
}

// WithinLimit reports whether applying ruleCode to one more visit of the
// patient in the period would stay within max applications. Rows belonging
// to the visit under evaluation are excluded so that re-running a
// calculation does not count its own previous result against the cap.
func (a *AggregateChecker) WithinLimit(ctx context.Context, ruleCode string, patientID uuid.UUID, period Period, excludeVisitID uuid.UUID, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	n, err := a.history.CountInPeriod(ctx, ruleCode, patientID, period, excludeVisitID)
	if err != nil {
		return false, fmt.Errorf("count %s applications in %s: %w", ruleCode, period, err)
	}
	return n < max, nil
}
