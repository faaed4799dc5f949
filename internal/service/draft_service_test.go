package service

import (
	"errors"
	"testing"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"
)

func newTestDraftService() *DraftService {
	return NewDraftService(repository.NewMemoryDraftRepository(), 0, 0)
}

type failingDraftRepo struct{}

func (f *failingDraftRepo) Put(run *domain.PressRun) error { return errors.New("store unavailable") }
func (f *failingDraftRepo) Get(id string) (*domain.PressRun, error) {
	return nil, errors.New("store unavailable")
}
func (f *failingDraftRepo) List() ([]*domain.PressRun, error) {
	return nil, errors.New("store unavailable")
}
func (f *failingDraftRepo) Delete(id string) error { return errors.New("store unavailable") }

func TestDraftService_Create(t *testing.T) {
	s := newTestDraftService()

	run, err := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if run.ID == "" {
		t.Error("expected press run id to be generated")
	}
	if run.Status != domain.PressRunStatusDraft {
		t.Errorf("expected status draft, got %s", run.Status)
	}
	if len(run.Loads) != 0 {
		t.Errorf("expected no loads, got %d", len(run.Loads))
	}
	if run.TotalWeightKg != 0 {
		t.Errorf("expected zero total, got %f", run.TotalWeightKg)
	}

	stored, err := s.Get(run.ID)
	if err != nil {
		t.Fatalf("expected stored run, got %v", err)
	}
	if stored.VendorID != "V1" {
		t.Errorf("expected vendor V1, got %s", stored.VendorID)
	}
}

func TestDraftService_CreateRequiresVendor(t *testing.T) {
	s := newTestDraftService()

	_, err := s.Create(&domain.CreatePressRunRequest{})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDraftService_EndToEndScenario(t *testing.T) {
	s := newTestDraftService()

	run, err := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := s.AddLoad(run.ID, &domain.AddLoadRequest{
		PurchaseLineID: "pl-1",
		VarietyID:      "dabinett",
		WeightKg:       5,
		WeightUnit:     domain.WeightUnitKg,
		OriginalWeight: 5,
		OriginalUnit:   domain.WeightUnitKg,
	})
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	_, err = s.AddLoad(run.ID, &domain.AddLoadRequest{
		PurchaseLineID: "pl-2",
		VarietyID:      "kingston-black",
		WeightKg:       7,
		WeightUnit:     domain.WeightUnitKg,
		OriginalWeight: 7,
		OriginalUnit:   domain.WeightUnitKg,
	})
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}

	stored, _ := s.Get(run.ID)
	if stored.TotalWeightKg != 12 {
		t.Errorf("expected total 12, got %f", stored.TotalWeightKg)
	}
	if stored.Loads[0].Sequence != 1 || stored.Loads[1].Sequence != 2 {
		t.Errorf("expected sequences [1 2], got [%d %d]", stored.Loads[0].Sequence, stored.Loads[1].Sequence)
	}

	if err := s.RemoveLoad(run.ID, first.ID); err != nil {
		t.Fatalf("remove load failed: %v", err)
	}

	stored, _ = s.Get(run.ID)
	if len(stored.Loads) != 1 {
		t.Fatalf("expected one load, got %d", len(stored.Loads))
	}
	if stored.Loads[0].Sequence != 1 {
		t.Errorf("expected remaining load resequenced to 1, got %d", stored.Loads[0].Sequence)
	}
	if stored.TotalWeightKg != 7 {
		t.Errorf("expected total 7, got %f", stored.TotalWeightKg)
	}
}

func TestDraftService_UpdateLoadRecomputesTotal(t *testing.T) {
	s := newTestDraftService()
	run, _ := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})
	load, _ := s.AddLoad(run.ID, &domain.AddLoadRequest{
		PurchaseLineID: "pl-1",
		VarietyID:      "dabinett",
		WeightKg:       10,
		WeightUnit:     domain.WeightUnitKg,
		OriginalWeight: 22,
		OriginalUnit:   domain.WeightUnitLb,
	})

	weight := 15.5
	if _, err := s.UpdateLoad(run.ID, load.ID, &domain.UpdateLoadRequest{WeightKg: &weight}); err != nil {
		t.Fatalf("update load failed: %v", err)
	}

	stored, _ := s.Get(run.ID)
	if stored.TotalWeightKg != 15.5 {
		t.Errorf("expected total 15.5, got %f", stored.TotalWeightKg)
	}
}

func TestDraftService_SaveFailsClosedOnInvalidData(t *testing.T) {
	s := newTestDraftService()
	run, _ := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})

	bad := 150.0
	_, err := s.AddLoad(run.ID, &domain.AddLoadRequest{
		PurchaseLineID:   "pl-1",
		VarietyID:        "dabinett",
		WeightKg:         10,
		WeightUnit:       domain.WeightUnitKg,
		OriginalWeight:   10,
		OriginalUnit:     domain.WeightUnitKg,
		DefectPercentage: &bad,
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for defect percentage 150, got %v", err)
	}

	stored, _ := s.Get(run.ID)
	if len(stored.Loads) != 0 {
		t.Error("failed save must not leave partial state")
	}
}

func TestDraftService_InvalidStatusTransition(t *testing.T) {
	s := newTestDraftService()
	run, _ := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})

	synced := domain.PressRunStatusSynced
	_, err := s.Update(run.ID, &domain.UpdatePressRunRequest{Status: &synced})
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
}

func TestDraftService_StorageErrorIsReturned(t *testing.T) {
	s := NewDraftService(&failingDraftRepo{}, 0, 0)

	if _, err := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"}); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestDraftService_EvictionSkipsUnsyncedRuns(t *testing.T) {
	repo := repository.NewMemoryDraftRepository()
	// Quota small enough that every save forces eviction consideration.
	s := NewDraftService(repo, 200, 100)

	oldSynced := &domain.PressRun{
		ID:           "synced-old",
		VendorID:     "V1",
		Status:       domain.PressRunStatusSynced,
		StartedAt:    time.Now().Add(-48 * time.Hour),
		LastModified: time.Now().Add(-48 * time.Hour),
	}
	repo.Put(oldSynced)

	draft := &domain.PressRun{
		ID:           "draft-older",
		VendorID:     "V2",
		Status:       domain.PressRunStatusDraft,
		StartedAt:    time.Now().Add(-72 * time.Hour),
		LastModified: time.Now().Add(-72 * time.Hour),
	}
	repo.Put(draft)

	if _, err := s.Create(&domain.CreatePressRunRequest{VendorID: "V3", Notes: "new run"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := repo.Get("synced-old"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("expected the synced run to be evicted")
	}
	if _, err := repo.Get("draft-older"); err != nil {
		t.Error("draft runs must never be evicted, regardless of age")
	}
}

func TestDraftService_RetainedSyncedCap(t *testing.T) {
	repo := repository.NewMemoryDraftRepository()
	s := NewDraftService(repo, DefaultMaxStorageBytes, 2)

	for i, id := range []string{"s1", "s2", "s3"} {
		repo.Put(&domain.PressRun{
			ID:           id,
			VendorID:     "V1",
			Status:       domain.PressRunStatusSynced,
			StartedAt:    time.Now(),
			LastModified: time.Now().Add(time.Duration(i) * time.Minute),
		})
	}

	if _, err := s.Create(&domain.CreatePressRunRequest{VendorID: "V2"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// s1 has the oldest last_modified of the three synced runs.
	if _, err := repo.Get("s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("expected oldest synced run evicted to honor the retained cap")
	}
	if _, err := repo.Get("s3"); err != nil {
		t.Error("expected newest synced run to survive")
	}
}

func TestDraftService_InvariantsHoldAtRest(t *testing.T) {
	s := newTestDraftService()
	run, _ := s.Create(&domain.CreatePressRunRequest{VendorID: "V1"})

	weights := []float64{3.5, 4.25, 9}
	for i, w := range weights {
		_, err := s.AddLoad(run.ID, &domain.AddLoadRequest{
			PurchaseLineID: "pl",
			VarietyID:      "variety",
			WeightKg:       w,
			WeightUnit:     domain.WeightUnitKg,
			OriginalWeight: w,
			OriginalUnit:   domain.WeightUnitKg,
		})
		if err != nil {
			t.Fatalf("load %d failed: %v", i, err)
		}
	}

	runs, _ := s.List()
	for _, stored := range runs {
		var sum float64
		for i, load := range stored.Loads {
			sum += load.WeightKg
			if load.Sequence != i+1 {
				t.Errorf("run %s load %d: sequence %d, want %d", stored.ID, i, load.Sequence, i+1)
			}
		}
		if stored.TotalWeightKg != sum {
			t.Errorf("run %s: total %f != sum %f", stored.ID, stored.TotalWeightKg, sum)
		}
	}
}
