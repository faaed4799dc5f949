package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"
)

type mockGateway struct {
	serverRun *domain.PressRun
	fetchErr  error
	commitErr error
	committed *domain.PressRun
}

func (g *mockGateway) FetchPressRun(ctx context.Context, id string) (*domain.PressRun, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	if g.serverRun == nil {
		return nil, nil
	}
	return g.serverRun.Clone(), nil
}

func (g *mockGateway) CommitPressRun(ctx context.Context, run *domain.PressRun) error {
	if g.commitErr != nil {
		return g.commitErr
	}
	g.committed = run.Clone()
	return nil
}

type syncFixture struct {
	drafts    *DraftService
	queue     *SyncQueueService
	conflicts *ConflictService
	gateway   *mockGateway
	sync      *SyncService
}

func newSyncFixture(gateway *mockGateway) *syncFixture {
	drafts := NewDraftService(repository.NewMemoryDraftRepository(), 0, 0)
	queue := NewSyncQueueService(repository.NewMemoryQueueRepository())
	conflicts := NewConflictService(repository.NewMemoryConflictRepository())
	return &syncFixture{
		drafts:    drafts,
		queue:     queue,
		conflicts: conflicts,
		gateway:   gateway,
		sync:      NewSyncService(drafts, queue, conflicts, NewConflictDetector(), NewConflictResolver(), gateway, nil),
	}
}

func seedDraft(t *testing.T, f *syncFixture) *domain.PressRun {
	t.Helper()
	run, err := f.drafts.Create(&domain.CreatePressRunRequest{VendorID: "V1"})
	if err != nil {
		t.Fatalf("seed draft failed: %v", err)
	}
	_, err = f.drafts.AddLoad(run.ID, &domain.AddLoadRequest{
		PurchaseLineID: "pl-1",
		VarietyID:      "dabinett",
		WeightKg:       120,
		WeightUnit:     domain.WeightUnitKg,
		OriginalWeight: 120,
		OriginalUnit:   domain.WeightUnitKg,
	})
	if err != nil {
		t.Fatalf("seed load failed: %v", err)
	}
	run, err = f.drafts.Get(run.ID)
	if err != nil {
		t.Fatalf("reload seed failed: %v", err)
	}
	return run
}

func TestSyncPressRun_CleanSync(t *testing.T) {
	gateway := &mockGateway{}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)
	gateway.serverRun = local.Clone()

	f.queue.Enqueue(&domain.EnqueueRequest{Intent: domain.IntentCreatePressRun, PressRunID: local.ID})

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeSynced {
		t.Fatalf("expected synced outcome, got %s (%s)", outcome.Status, outcome.Error)
	}
	if gateway.committed == nil {
		t.Fatal("expected the resolved run committed upstream")
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusSynced {
		t.Errorf("expected local status synced, got %s", stored.Status)
	}
	if stored.SyncAttempts != 0 {
		t.Errorf("expected attempts reset, got %d", stored.SyncAttempts)
	}

	items, _ := f.queue.List()
	if len(items) != 0 {
		t.Errorf("expected queue cleared for the run, got %d items", len(items))
	}
}

func TestSyncPressRun_FetchFailureRecordsError(t *testing.T) {
	gateway := &mockGateway{fetchErr: errors.New("upstream unreachable")}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("transport failures are reported in the outcome, not the error: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Status)
	}
	if outcome.Error == "" {
		t.Error("expected the fetch error surfaced")
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusError {
		t.Errorf("expected error status, got %s", stored.Status)
	}
	if stored.SyncAttempts != 1 {
		t.Errorf("expected one recorded attempt, got %d", stored.SyncAttempts)
	}
}

func TestSyncPressRun_CommitFailureRecordsError(t *testing.T) {
	gateway := &mockGateway{commitErr: errors.New("server rejected write")}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)
	gateway.serverRun = local.Clone()

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("commit failures are reported in the outcome: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Status)
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusError {
		t.Errorf("expected error status, got %s", stored.Status)
	}
}

func TestSyncPressRun_ManualReviewParksConflicts(t *testing.T) {
	gateway := &mockGateway{}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	server := local.Clone()
	server.Loads[0].Status = domain.LoadStatusConfirmed
	gateway.serverRun = server

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeManualReview {
		t.Fatalf("expected manual review outcome, got %s", outcome.Status)
	}
	if len(outcome.Conflicts) != 1 {
		t.Fatalf("expected the blocking conflict surfaced, got %d", len(outcome.Conflicts))
	}

	pending, _ := f.conflicts.ListPending()
	if len(pending) != 1 {
		t.Errorf("expected the conflict parked for review, got %d", len(pending))
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusError {
		t.Errorf("expected error status pending review, got %s", stored.Status)
	}
	if gateway.committed != nil {
		t.Error("nothing may be committed when review is required")
	}
}

func TestSyncPressRun_ServerWinsResolvesDivergence(t *testing.T) {
	gateway := &mockGateway{}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	server := local.Clone()
	server.Notes = "corrected at the office"
	server.LastModified = time.Now().Add(time.Hour)
	gateway.serverRun = server

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionServerWins, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeSynced {
		t.Fatalf("expected synced outcome, got %s (%s)", outcome.Status, outcome.Error)
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Notes != "corrected at the office" {
		t.Errorf("expected server notes adopted, got %q", stored.Notes)
	}
}

func TestSyncPressRun_ServerDeletionAccepted(t *testing.T) {
	gateway := &mockGateway{} // serverRun nil: deleted upstream
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionServerWins, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeSynced {
		t.Fatalf("expected synced outcome, got %s (%s)", outcome.Status, outcome.Error)
	}
	if outcome.ResolvedRun != nil {
		t.Error("accepted deletion resolves to no run")
	}

	if _, err := f.drafts.Get(local.ID); err != ErrNotFound {
		t.Errorf("expected local draft dropped, got %v", err)
	}
	if gateway.committed != nil {
		t.Error("nothing may be committed for an accepted deletion")
	}
}

func TestSyncPressRun_DeletionUnderMergeNeedsReview(t *testing.T) {
	gateway := &mockGateway{}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeManualReview {
		t.Fatalf("deletions must not auto-merge, got %s", outcome.Status)
	}

	if _, err := f.drafts.Get(local.ID); err != nil {
		t.Error("the local draft must survive until the operator decides")
	}
}

func TestSyncPressRun_ErrorStatusRetries(t *testing.T) {
	gateway := &mockGateway{fetchErr: errors.New("upstream unreachable")}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	// First attempt fails and parks the run in error status.
	f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusError {
		t.Fatalf("expected error status, got %s", stored.Status)
	}

	// A later attempt from error status is allowed and can succeed.
	gateway.fetchErr = nil
	gateway.serverRun = local.Clone()
	outcome, err := f.sync.SyncPressRun(context.Background(), local.ID, domain.ResolutionMerge, "op-1", "dev-1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if outcome.Status != domain.SyncOutcomeSynced {
		t.Fatalf("expected retry to sync, got %s (%s)", outcome.Status, outcome.Error)
	}
}

func TestSyncPressRun_UnknownDraft(t *testing.T) {
	f := newSyncFixture(&mockGateway{})

	if _, err := f.sync.SyncPressRun(context.Background(), "missing", domain.ResolutionMerge, "op-1", "dev-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetect_DryRunLeavesStateAlone(t *testing.T) {
	gateway := &mockGateway{}
	f := newSyncFixture(gateway)
	local := seedDraft(t, f)

	server := local.Clone()
	server.Loads[0].WeightKg = 200
	gateway.serverRun = server

	conflicts, err := f.sync.Detect(context.Background(), local.ID)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(conflicts))
	}

	stored, _ := f.drafts.Get(local.ID)
	if stored.Status != domain.PressRunStatusDraft {
		t.Errorf("dry-run detection must not change status, got %s", stored.Status)
	}
	if stored.SyncAttempts != 0 {
		t.Errorf("dry-run detection must not record attempts, got %d", stored.SyncAttempts)
	}
	pending, _ := f.conflicts.ListPending()
	if len(pending) != 0 {
		t.Errorf("dry-run detection must not park conflicts, got %d", len(pending))
	}
}
