package rules

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Service loads rule master data and exposes catalog snapshots to the
// calculation engine.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Snapshot reads the active rule versions and freezes them into a Catalog.
// Callers hold the returned catalog for the duration of one calculation
// run; concurrent master-data edits do not affect a run in progress.
func (s *Service) Snapshot(ctx context.Context) (*Catalog, error) {
	defs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}

	cat := NewCatalog(defs)
	s.logger.Debug().
		Int("codes", cat.Len()).
		Int("versions", len(defs)).
		Msg("rule catalog snapshot taken")
	return cat, nil
}

// ListByCode returns every stored version of a rule code, including
// inactive ones, for inspection.
func (s *Service) ListByCode(ctx context.Context, code string) ([]*RuleDefinition, error) {
	return s.repo.ListByCode(ctx, code)
}

// GetVersion returns one exact rule version.
func (s *Service) GetVersion(ctx context.Context, code string, version int) (*RuleDefinition, error) {
	return s.repo.GetByCodeVersion(ctx, code, version)
}

// ListActive returns all active rule versions across codes.
func (s *Service) ListActive(ctx context.Context) ([]*RuleDefinition, error) {
	return s.repo.ListActive(ctx)
}
