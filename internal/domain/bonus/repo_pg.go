package bonus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/platform/db"
)

type historyRepoPG struct {
	pool *pgxpool.Pool
}

// NewHistoryRepoPG creates a PostgreSQL-backed history repository.
func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

type runner interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *historyRepoPG) conn(ctx context.Context) runner {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const historyColumns = `id, visit_id, patient_id, visit_date, rule_code, rule_version,
	points, justification, calculated_at`

func (r *historyRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*HistoryRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+historyColumns+`
		FROM bonus_calculation_history
		WHERE visit_id = $1
		ORDER BY rule_code`, visitID)
	if err != nil {
		return nil, fmt.Errorf("list history by visit: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func (r *historyRepoPG) ListByPatientPeriod(ctx context.Context, patientID uuid.UUID, period Period) ([]*HistoryRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+historyColumns+`
		FROM bonus_calculation_history
		WHERE patient_id = $1 AND visit_date >= $2 AND visit_date < $3
		ORDER BY visit_date, visit_id, rule_code`,
		patientID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("list history by patient period: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func (r *historyRepoPG) CountInPeriod(ctx context.Context, ruleCode string, patientID uuid.UUID, period Period, excludeVisitID uuid.UUID) (int, error) {
	var n int
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bonus_calculation_history
		WHERE patient_id = $1 AND rule_code = $2
		  AND visit_date >= $3 AND visit_date < $4
		  AND visit_id <> $5`,
		patientID, ruleCode, period.Start(), period.End(), excludeVisitID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count history in period: %w", err)
	}
	return n, nil
}

// ReplaceForVisit reconciles stored rows with the desired set inside one
// transaction. A stored row survives only when its code, version, points,
// and justification are all unchanged; rows are never updated in place.
func (r *historyRepoPG) ReplaceForVisit(ctx context.Context, visitID uuid.UUID, desired []*HistoryRecord) (added, removed int, err error) {
	err = db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		added, removed = 0, 0
		tx := db.TxFromContext(ctx)

		rows, err := tx.Query(ctx, `
			SELECT `+historyColumns+`
			FROM bonus_calculation_history
			WHERE visit_id = $1
			FOR UPDATE`, visitID)
		if err != nil {
			return fmt.Errorf("load existing history: %w", err)
		}
		existing, err := scanHistory(rows)
		rows.Close()
		if err != nil {
			return err
		}

		existingByCode := make(map[string]*HistoryRecord, len(existing))
		for _, rec := range existing {
			existingByCode[rec.RuleCode] = rec
		}
		desiredByCode := make(map[string]*HistoryRecord, len(desired))
		for _, rec := range desired {
			desiredByCode[rec.RuleCode] = rec
		}

		for code, old := range existingByCode {
			want, keep := desiredByCode[code]
			if keep && want.RuleVersion == old.RuleVersion && want.Points == old.Points && want.Justification == old.Justification {
				continue
			}
			if _, err := tx.Exec(ctx, `
				DELETE FROM bonus_calculation_history WHERE id = $1`, old.ID); err != nil {
				return fmt.Errorf("delete stale history row %s/%s: %w", visitID, code, err)
			}
			removed++
		}

		for code, want := range desiredByCode {
			if old, ok := existingByCode[code]; ok &&
				old.RuleVersion == want.RuleVersion && old.Points == want.Points && old.Justification == want.Justification {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO bonus_calculation_history
					(id, visit_id, patient_id, visit_date, rule_code, rule_version, points, justification, calculated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				want.ID, want.VisitID, want.PatientID, want.VisitDate, want.RuleCode,
				want.RuleVersion, want.Points, want.Justification, want.CalculatedAt,
			); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return fmt.Errorf("%w: visit %s rule %s", ErrPersistenceConflict, visitID, code)
				}
				return fmt.Errorf("insert history row %s/%s: %w", visitID, code, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, removed, nil
}

func scanHistory(rows pgx.Rows) ([]*HistoryRecord, error) {
	var out []*HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.VisitID, &rec.PatientID, &rec.VisitDate, &rec.RuleCode,
			&rec.RuleVersion, &rec.Points, &rec.Justification, &rec.CalculatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

type visitSourcePG struct {
	pool *pgxpool.Pool
}

// NewVisitSourcePG creates a PostgreSQL-backed visit source. It joins the
// facility row so capability flags are present on the context.
func NewVisitSourcePG(pool *pgxpool.Pool) VisitSource {
	return &visitSourcePG{pool: pool}
}

func (s *visitSourcePG) conn(ctx context.Context) runner {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const visitContextQuery = `
	SELECT v.id, v.patient_id, v.facility_id, v.visit_date, v.start_time, v.end_time,
		v.insurance_category, v.patient_age, f.has_24h_support,
		v.emergency_reason, v.multi_staff_reason, v.long_duration_reason, v.ordinal_in_day
	FROM visits v
	JOIN facilities f ON f.id = v.facility_id`

func (s *visitSourcePG) GetContext(ctx context.Context, visitID uuid.UUID) (*VisitContext, error) {
	row := s.conn(ctx).QueryRow(ctx, visitContextQuery+`
		WHERE v.id = $1`, visitID)

	vc, err := scanVisitContext(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrVisitNotFound, visitID)
		}
		return nil, fmt.Errorf("get visit context: %w", err)
	}
	return vc, nil
}

func (s *visitSourcePG) ListByPatientPeriod(ctx context.Context, patientID uuid.UUID, period Period) ([]*VisitContext, error) {
	rows, err := s.conn(ctx).Query(ctx, visitContextQuery+`
		WHERE v.patient_id = $1 AND v.visit_date >= $2 AND v.visit_date < $3
		ORDER BY v.visit_date, v.start_time, v.id`,
		patientID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("list visit contexts: %w", err)
	}
	defer rows.Close()

	var out []*VisitContext
	for rows.Next() {
		vc, err := scanVisitContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit context: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

func scanVisitContext(row pgx.Row) (*VisitContext, error) {
	var vc VisitContext
	if err := row.Scan(
		&vc.VisitID, &vc.PatientID, &vc.FacilityID, &vc.VisitDate, &vc.StartTime, &vc.EndTime,
		&vc.Category, &vc.PatientAge, &vc.Has24HSupport,
		&vc.EmergencyReason, &vc.MultiStaffReason, &vc.LongDurationReason, &vc.OrdinalInDay,
	); err != nil {
		return nil, err
	}
	return &vc, nil
}

type lockerPG struct {
	pool *pgxpool.Pool
}

// NewLockerPG creates an advisory-lock based Locker. The lock is held on a
// dedicated pooled connection until released, so it serializes recalculation
// across every instance of the service sharing the database.
func NewLockerPG(pool *pgxpool.Pool) Locker {
	return &lockerPG{pool: pool}
}

func (l *lockerPG) Lock(ctx context.Context, patientID uuid.UUID, period Period) (func(context.Context), error) {
	key := db.LockKey("bonus-recalc", patientID.String(), period.String())
	lock, err := db.AcquireAdvisoryLock(ctx, l.pool, key)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
