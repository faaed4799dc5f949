package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultMaxStorageBytes      = 50 * 1024 * 1024
	DefaultMaxRetainedPressRuns = 100
)

// DraftService is the capacity-bounded store for in-progress press runs. It
// owns the draft invariants: the total weight always equals the sum of the
// load weights, load sequences stay contiguous from 1, and nothing is written
// unless the whole aggregate passes schema validation.
type DraftService struct {
	repo            repository.DraftRepository
	validate        *validator.Validate
	maxStorageBytes int64
	maxRetained     int
}

func NewDraftService(repo repository.DraftRepository, maxStorageBytes int64, maxRetained int) *DraftService {
	if maxStorageBytes <= 0 {
		maxStorageBytes = DefaultMaxStorageBytes
	}
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetainedPressRuns
	}
	return &DraftService{
		repo:            repo,
		validate:        validator.New(),
		maxStorageBytes: maxStorageBytes,
		maxRetained:     maxRetained,
	}
}

// Create allocates a new draft press run for a vendor and persists it.
func (s *DraftService) Create(req *domain.CreatePressRunRequest) (*domain.PressRun, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	now := time.Now()
	run := &domain.PressRun{
		ID:           uuid.New().String(),
		VendorID:     req.VendorID,
		Status:       domain.PressRunStatusDraft,
		StartedAt:    now,
		LastModified: now,
		Loads:        []domain.Load{},
		Notes:        req.Notes,
	}

	if err := s.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *DraftService) Get(id string) (*domain.PressRun, error) {
	run, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Printf("draft store: failed to read press run %s: %v", id, err)
		return nil, err
	}
	return run, nil
}

func (s *DraftService) List() ([]*domain.PressRun, error) {
	runs, err := s.repo.List()
	if err != nil {
		log.Printf("draft store: failed to list press runs: %v", err)
		return nil, err
	}
	return runs, nil
}

// Save validates the whole aggregate, re-derives the total, stamps
// last_modified and persists. It fails closed: on any validation error
// nothing is written. Before writing it enforces the storage quota and the
// retained-synced cap, evicting synced runs if needed.
func (s *DraftService) Save(run *domain.PressRun) error {
	run.RecomputeTotal()
	for i := range run.Loads {
		if run.Loads[i].Sequence != i+1 {
			return &ValidationError{Err: fmt.Errorf("load %s has sequence %d, want %d", run.Loads[i].ID, run.Loads[i].Sequence, i+1)}
		}
	}
	if err := s.validate.Struct(run); err != nil {
		log.Printf("draft store: press run %s failed validation: %v", run.ID, err)
		return &ValidationError{Err: err}
	}

	run.LastModified = time.Now()

	if err := s.ensureCapacity(run); err != nil {
		log.Printf("draft store: eviction before saving %s failed: %v", run.ID, err)
		return err
	}

	if err := s.repo.Put(run); err != nil {
		log.Printf("draft store: failed to persist press run %s: %v", run.ID, err)
		return err
	}
	return nil
}

func (s *DraftService) Delete(id string) error {
	err := s.repo.Delete(id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		log.Printf("draft store: failed to delete press run %s: %v", id, err)
		return err
	}
	return nil
}

// Update applies note and status changes to the press run. Status changes are
// checked against the lifecycle: forward-only, except error -> draft.
func (s *DraftService) Update(id string, req *domain.UpdatePressRunRequest) (*domain.PressRun, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil && *req.Status != run.Status {
		if !domain.CanTransition(run.Status, *req.Status) {
			return nil, &InvalidTransitionError{From: run.Status, To: *req.Status}
		}
		run.Status = *req.Status
	}
	if req.Notes != nil {
		run.Notes = *req.Notes
	}
	if err := s.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

// AddLoad appends a load with a fresh id and the next sequence number, then
// recomputes the total and saves the whole aggregate.
func (s *DraftService) AddLoad(runID string, req *domain.AddLoadRequest) (*domain.Load, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	run, err := s.Get(runID)
	if err != nil {
		return nil, err
	}

	load := domain.Load{
		ID:               uuid.New().String(),
		PurchaseLineID:   req.PurchaseLineID,
		VarietyID:        req.VarietyID,
		WeightKg:         req.WeightKg,
		WeightUnit:       req.WeightUnit,
		OriginalWeight:   req.OriginalWeight,
		OriginalUnit:     req.OriginalUnit,
		BrixMeasurement:  req.BrixMeasurement,
		PHMeasurement:    req.PHMeasurement,
		ConditionGrade:   req.ConditionGrade,
		DefectPercentage: req.DefectPercentage,
		Status:           domain.LoadStatusPending,
		Sequence:         len(run.Loads) + 1,
	}
	run.Loads = append(run.Loads, load)

	if err := s.Save(run); err != nil {
		return nil, err
	}
	return &load, nil
}

// UpdateLoad merges the provided fields into one load and saves the aggregate.
func (s *DraftService) UpdateLoad(runID, loadID string, req *domain.UpdateLoadRequest) (*domain.Load, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	run, err := s.Get(runID)
	if err != nil {
		return nil, err
	}
	load := run.FindLoad(loadID)
	if load == nil {
		return nil, ErrNotFound
	}

	if req.WeightKg != nil {
		load.WeightKg = *req.WeightKg
	}
	if req.WeightUnit != nil {
		load.WeightUnit = *req.WeightUnit
	}
	if req.OriginalWeight != nil {
		load.OriginalWeight = *req.OriginalWeight
	}
	if req.OriginalUnit != nil {
		load.OriginalUnit = *req.OriginalUnit
	}
	if req.BrixMeasurement != nil {
		load.BrixMeasurement = req.BrixMeasurement
	}
	if req.PHMeasurement != nil {
		load.PHMeasurement = req.PHMeasurement
	}
	if req.ConditionGrade != nil {
		load.ConditionGrade = req.ConditionGrade
	}
	if req.DefectPercentage != nil {
		load.DefectPercentage = req.DefectPercentage
	}
	if req.Status != nil {
		load.Status = *req.Status
	}

	if err := s.Save(run); err != nil {
		return nil, err
	}
	return load.Clone(), nil
}

// RemoveLoad removes one load, renumbers the remainder contiguously from 1
// and recomputes the total.
func (s *DraftService) RemoveLoad(runID, loadID string) error {
	run, err := s.Get(runID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range run.Loads {
		if run.Loads[i].ID == loadID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}

	run.Loads = append(run.Loads[:idx], run.Loads[idx+1:]...)
	run.Resequence()

	return s.Save(run)
}

// ensureCapacity evicts synced press runs, oldest last_modified first, until
// the incoming save fits under the storage quota and the synced count fits
// under the retained cap. Runs in draft, syncing or error status are never
// evicted regardless of age.
func (s *DraftService) ensureCapacity(incoming *domain.PressRun) error {
	runs, err := s.repo.List()
	if err != nil {
		return err
	}

	var total int64
	var synced []*domain.PressRun
	for _, run := range runs {
		if run.ID == incoming.ID {
			continue
		}
		total += estimatedSize(run)
		if run.Status == domain.PressRunStatusSynced {
			synced = append(synced, run)
		}
	}
	total += estimatedSize(incoming)

	sort.Slice(synced, func(i, j int) bool {
		return synced[i].LastModified.Before(synced[j].LastModified)
	})

	syncedCount := len(synced)
	if incoming.Status == domain.PressRunStatusSynced {
		syncedCount++
	}

	for len(synced) > 0 && (total > s.maxStorageBytes || syncedCount > s.maxRetained) {
		victim := synced[0]
		synced = synced[1:]
		if err := s.repo.Delete(victim.ID); err != nil {
			return err
		}
		total -= estimatedSize(victim)
		syncedCount--
		log.Printf("draft store: evicted synced press run %s (last modified %s)", victim.ID, victim.LastModified.Format(time.RFC3339))
	}
	return nil
}

func estimatedSize(run *domain.PressRun) int64 {
	data, err := json.Marshal(run)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
