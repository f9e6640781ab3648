package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bscode-watanabejun/nasreco-visiting-nursing-sub008/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG creates a PostgreSQL-backed rule repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const ruleColumns = `id, code, version, name, insurance_category, points_mode,
	fixed_points, conditions, effective_from, effective_to, active, created_at`

func (r *repoPG) ListActive(ctx context.Context) ([]*RuleDefinition, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleColumns+`
		FROM bonus_rules
		WHERE active = TRUE
		ORDER BY code, effective_from`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *repoPG) ListByCode(ctx context.Context, code string) ([]*RuleDefinition, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleColumns+`
		FROM bonus_rules
		WHERE code = $1
		ORDER BY effective_from`, code)
	if err != nil {
		return nil, fmt.Errorf("list rules by code: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *repoPG) GetByCodeVersion(ctx context.Context, code string, version int) (*RuleDefinition, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM bonus_rules
		WHERE code = $1 AND version = $2`, code, version)

	def, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s version %d", ErrRuleNotFound, code, version)
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return def, nil
}

func scanRules(rows pgx.Rows) ([]*RuleDefinition, error) {
	var out []*RuleDefinition
	for rows.Next() {
		def, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (*RuleDefinition, error) {
	var def RuleDefinition
	var conditions []byte
	if err := row.Scan(
		&def.ID, &def.Code, &def.Version, &def.Name, &def.Category,
		&def.PointsMode, &def.FixedPoints, &conditions,
		&def.EffectiveFrom, &def.EffectiveTo, &def.Active, &def.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &def.Conditions); err != nil {
			// A condition array that is not even a JSON array fails closed
			// as a single malformed entry rather than failing the load.
			def.Conditions = ConditionList{&MalformedCondition{Raw: conditions, Reason: err.Error()}}
		}
	}
	return &def, nil
}
