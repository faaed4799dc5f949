package service

import (
	"errors"
	"fmt"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"
)

// ConflictService is the manual resolution gateway: it holds conflicts that
// automatic resolution could not settle and applies per-conflict operator
// decisions. It never recomputes the surrounding press run; after deciding,
// the caller re-runs detection or patches the draft with the decided value.
type ConflictService struct {
	repo repository.ConflictRepository
}

func NewConflictService(repo repository.ConflictRepository) *ConflictService {
	return &ConflictService{repo: repo}
}

// SavePending stores conflicts surfaced for manual review.
func (s *ConflictService) SavePending(conflicts []*domain.Conflict) error {
	for _, c := range conflicts {
		if err := s.repo.Put(c); err != nil {
			return fmt.Errorf("failed to save pending conflict %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *ConflictService) Get(conflictID string) (*domain.Conflict, error) {
	conflict, err := s.repo.Get(conflictID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// ListPending returns the conflicts still awaiting an operator decision.
func (s *ConflictService) ListPending() ([]*domain.Conflict, error) {
	all, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	pending := make([]*domain.Conflict, 0, len(all))
	for _, c := range all {
		if !c.Resolved {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// ResolveManually finalizes one conflict with the operator's decision:
// keep the local value, keep the server value, or apply a custom value.
func (s *ConflictService) ResolveManually(conflictID string, req *domain.ManualResolutionRequest, resolvedBy string) (*domain.Conflict, error) {
	conflict, err := s.Get(conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Resolved {
		return nil, fmt.Errorf("conflict %s is already resolved", conflictID)
	}

	var value *domain.EntitySnapshot
	switch req.Decision {
	case domain.DecisionLocal:
		value = conflict.LocalValue
	case domain.DecisionServer:
		if conflict.ServerValue == nil {
			return nil, fmt.Errorf("conflict %s has no server value to apply", conflictID)
		}
		value = conflict.ServerValue
	case domain.DecisionCustom:
		if req.CustomValue == nil {
			return nil, fmt.Errorf("custom resolution requires a value")
		}
		value = req.CustomValue
	default:
		return nil, fmt.Errorf("unknown decision %q", req.Decision)
	}

	conflict.MarkResolved(domain.ResolutionManualReview, value, resolvedBy)
	if err := s.repo.Put(conflict); err != nil {
		return nil, fmt.Errorf("failed to persist resolution for %s: %w", conflictID, err)
	}
	return conflict, nil
}

// ClearResolved drops conflicts whose resolution has been applied.
func (s *ConflictService) ClearResolved() (int, error) {
	all, err := s.repo.List()
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, c := range all {
		if !c.Resolved {
			continue
		}
		if err := s.repo.Delete(c.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// Discard removes conflicts from a completed sync attempt regardless of
// resolution state.
func (s *ConflictService) Discard(conflicts []*domain.Conflict) {
	for _, c := range conflicts {
		_ = s.repo.Delete(c.ID)
	}
}
