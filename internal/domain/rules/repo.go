package rules

import "context"

// Repository provides read access to the bonus rule master data. The rows
// are owned by the administration tool; the calculation service never
// writes them.
type Repository interface {
	ListActive(ctx context.Context) ([]*RuleDefinition, error)
	ListByCode(ctx context.Context, code string) ([]*RuleDefinition, error)
	GetByCodeVersion(ctx context.Context, code string, version int) (*RuleDefinition, error)
}
