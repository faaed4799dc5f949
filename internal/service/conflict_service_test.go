package service

import (
	"testing"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"
)

func newTestConflictService() *ConflictService {
	return NewConflictService(repository.NewMemoryConflictRepository())
}

func pendingConflict(id string) *domain.Conflict {
	local := basePressRun(time.Now())
	server := basePressRun(time.Now())
	server.Notes = "server notes"
	return &domain.Conflict{
		ID:                id,
		Kind:              domain.ConflictFieldModified,
		EntityKind:        domain.EntityPressRun,
		EntityID:          local.ID,
		LocalValue:        &domain.EntitySnapshot{PressRun: local},
		ServerValue:       &domain.EntitySnapshot{PressRun: server},
		ConflictingFields: []string{"notes"},
		DetectedAt:        time.Now(),
	}
}

func TestConflictService_SaveAndListPending(t *testing.T) {
	s := newTestConflictService()

	if err := s.SavePending([]*domain.Conflict{pendingConflict("c-1"), pendingConflict("c-2")}); err != nil {
		t.Fatalf("save pending failed: %v", err)
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending conflicts, got %d", len(pending))
	}
}

func TestConflictService_ResolveManuallyLocal(t *testing.T) {
	s := newTestConflictService()
	c := pendingConflict("c-1")
	s.SavePending([]*domain.Conflict{c})

	resolved, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionLocal}, "op-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolved.Resolved {
		t.Error("expected conflict marked resolved")
	}
	if resolved.ResolvedValue != c.LocalValue {
		t.Error("local decision must adopt the local snapshot")
	}
	if resolved.ResolvedBy != "op-1" {
		t.Errorf("expected resolver op-1, got %s", resolved.ResolvedBy)
	}

	pending, _ := s.ListPending()
	if len(pending) != 0 {
		t.Errorf("resolved conflict must leave the pending list, got %d", len(pending))
	}
}

func TestConflictService_ResolveManuallyServer(t *testing.T) {
	s := newTestConflictService()
	c := pendingConflict("c-1")
	s.SavePending([]*domain.Conflict{c})

	resolved, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionServer}, "op-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ResolvedValue != c.ServerValue {
		t.Error("server decision must adopt the server snapshot")
	}
}

func TestConflictService_ServerDecisionRequiresServerValue(t *testing.T) {
	s := newTestConflictService()
	c := pendingConflict("c-1")
	c.ServerValue = nil
	s.SavePending([]*domain.Conflict{c})

	if _, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionServer}, "op-1"); err == nil {
		t.Fatal("expected error when no server value exists")
	}
}

func TestConflictService_ResolveManuallyCustom(t *testing.T) {
	s := newTestConflictService()
	s.SavePending([]*domain.Conflict{pendingConflict("c-1")})

	custom := basePressRun(time.Now())
	custom.Notes = "operator-written notes"
	snapshot := &domain.EntitySnapshot{PressRun: custom}

	resolved, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{
		Decision:    domain.DecisionCustom,
		CustomValue: snapshot,
	}, "op-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ResolvedValue != snapshot {
		t.Error("custom decision must adopt the provided snapshot")
	}
}

func TestConflictService_CustomDecisionRequiresValue(t *testing.T) {
	s := newTestConflictService()
	s.SavePending([]*domain.Conflict{pendingConflict("c-1")})

	if _, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionCustom}, "op-1"); err == nil {
		t.Fatal("expected error for a custom decision without a value")
	}
}

func TestConflictService_ResolveTwiceFails(t *testing.T) {
	s := newTestConflictService()
	s.SavePending([]*domain.Conflict{pendingConflict("c-1")})

	if _, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionLocal}, "op-1"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if _, err := s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionServer}, "op-2"); err == nil {
		t.Fatal("expected error re-resolving a settled conflict")
	}
}

func TestConflictService_ResolveUnknownConflict(t *testing.T) {
	s := newTestConflictService()

	if _, err := s.ResolveManually("missing", &domain.ManualResolutionRequest{Decision: domain.DecisionLocal}, "op-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConflictService_ClearResolved(t *testing.T) {
	s := newTestConflictService()
	s.SavePending([]*domain.Conflict{pendingConflict("c-1"), pendingConflict("c-2")})
	s.ResolveManually("c-1", &domain.ManualResolutionRequest{Decision: domain.DecisionLocal}, "op-1")

	cleared, err := s.ClearResolved()
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared != 1 {
		t.Errorf("expected 1 cleared, got %d", cleared)
	}

	if _, err := s.Get("c-2"); err != nil {
		t.Error("unresolved conflicts must survive clearing")
	}
}
