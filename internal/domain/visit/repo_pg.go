package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG creates a PostgreSQL-backed visit repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type runner interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) runner {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitColumns = `id, patient_id, facility_id, visit_date, start_time, end_time,
	insurance_category, patient_age, emergency_reason, multi_staff_reason,
	long_duration_reason, ordinal_in_day, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, facility_id, visit_date, start_time, end_time,
			insurance_category, patient_age, emergency_reason, multi_staff_reason,
			long_duration_reason, ordinal_in_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.FacilityID, v.VisitDate, v.StartTime, v.EndTime,
		v.InsuranceCategory, v.PatientAge, v.EmergencyReason, v.MultiStaffReason,
		v.LongDurationReason, v.OrdinalInDay)
	if err := row.Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)

	v, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE visits
		SET start_time = $2, end_time = $3, emergency_reason = $4,
			multi_staff_reason = $5, long_duration_reason = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.StartTime, v.EndTime, v.EmergencyReason,
		v.MultiStaffReason, v.LongDurationReason)
	if err := row.Scan(&v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVisitNotFound
		}
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	row := r.conn(ctx).QueryRow(ctx, `
		DELETE FROM visits WHERE id = $1 RETURNING id`, id)
	if err := row.Scan(&deleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVisitNotFound
		}
		return fmt.Errorf("delete visit: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatientRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1 AND visit_date >= $2 AND visit_date < $3
		ORDER BY visit_date, start_time, id`,
		patientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) CountOnDay(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	var n int
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM visits WHERE patient_id = $1 AND visit_date = $2`,
		patientID, day)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits on day: %w", err)
	}
	return n, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	if err := row.Scan(
		&v.ID, &v.PatientID, &v.FacilityID, &v.VisitDate, &v.StartTime, &v.EndTime,
		&v.InsuranceCategory, &v.PatientAge, &v.EmergencyReason, &v.MultiStaffReason,
		&v.LongDurationReason, &v.OrdinalInDay, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

type facilityRepoPG struct {
	pool *pgxpool.Pool
}

// NewFacilityRepoPG creates a PostgreSQL-backed facility repository.
func NewFacilityRepoPG(pool *pgxpool.Pool) FacilityRepository {
	return &facilityRepoPG{pool: pool}
}

func (r *facilityRepoPG) conn(ctx context.Context) runner {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *facilityRepoPG) Create(ctx context.Context, f *Facility) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO facilities (id, name, has_24h_support)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		f.ID, f.Name, f.Has24HSupport)
	if err := row.Scan(&f.CreatedAt); err != nil {
		return fmt.Errorf("create facility: %w", err)
	}
	return nil
}

func (r *facilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, has_24h_support, created_at FROM facilities WHERE id = $1`, id)

	var f Facility
	if err := row.Scan(&f.ID, &f.Name, &f.Has24HSupport, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, fmt.Errorf("get facility: %w", err)
	}
	return &f, nil
}

func (r *facilityRepoPG) List(ctx context.Context) ([]*Facility, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, has_24h_support, created_at FROM facilities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var out []*Facility
	for rows.Next() {
		var f Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Has24HSupport, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
