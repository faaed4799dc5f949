package service

import (
	"errors"
	"log"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SyncQueueService keeps the ordered list of pending mutation intents. The
// external scheduler sequences dependent intents and owns backoff timing;
// this side only records attempts.
type SyncQueueService struct {
	repo     repository.QueueRepository
	validate *validator.Validate
}

func NewSyncQueueService(repo repository.QueueRepository) *SyncQueueService {
	return &SyncQueueService{repo: repo, validate: validator.New()}
}

func (s *SyncQueueService) Enqueue(req *domain.EnqueueRequest) (*domain.QueueItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	item := &domain.QueueItem{
		ID:         uuid.New().String(),
		Intent:     req.Intent,
		PressRunID: req.PressRunID,
		Payload:    req.Payload,
		Attempts:   0,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Put(item); err != nil {
		log.Printf("sync queue: failed to enqueue %s for press run %s: %v", req.Intent, req.PressRunID, err)
		return nil, err
	}
	return item, nil
}

func (s *SyncQueueService) List() ([]*domain.QueueItem, error) {
	return s.repo.List()
}

// Update is used by the scheduler to bump attempt bookkeeping.
func (s *SyncQueueService) Update(id string, req *domain.UpdateQueueItemRequest) (*domain.QueueItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	item, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if req.Attempts != nil {
		item.Attempts = *req.Attempts
	}
	if req.LastAttempt != nil {
		item.LastAttempt = req.LastAttempt
	}
	if err := s.repo.Put(item); err != nil {
		log.Printf("sync queue: failed to update item %s: %v", id, err)
		return nil, err
	}
	return item, nil
}

// Remove deletes one item once its intent is confirmed committed server-side.
func (s *SyncQueueService) Remove(id string) error {
	err := s.repo.Delete(id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// RemoveForPressRun drops every intent referencing the press run, called after
// the run is confirmed synced.
func (s *SyncQueueService) RemoveForPressRun(pressRunID string) error {
	items, err := s.repo.List()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.PressRunID != pressRunID {
			continue
		}
		if err := s.repo.Delete(item.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Clear removes all items, used for full resets such as logout.
func (s *SyncQueueService) Clear() error {
	return s.repo.DeleteAll()
}
