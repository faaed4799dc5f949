package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/websocket"
)

// ServerGateway is the API-client collaborator: it fetches the authoritative
// press run and commits resolved ones. Fetch returns (nil, nil) when the
// press run does not exist server-side.
type ServerGateway interface {
	FetchPressRun(ctx context.Context, id string) (*domain.PressRun, error)
	CommitPressRun(ctx context.Context, run *domain.PressRun) error
}

// SyncService runs one full sync attempt for a press run: fetch the server
// copy, detect conflicts, resolve them under the requested strategy, commit
// the resolved run and clean up the queue. The caller must serialize sync
// attempts per press run id; this service assumes at most one in flight.
type SyncService struct {
	drafts    *DraftService
	queue     *SyncQueueService
	conflicts *ConflictService
	detector  *ConflictDetector
	resolver  *ConflictResolver
	gateway   ServerGateway
	wsManager *websocket.Manager
}

func NewSyncService(
	drafts *DraftService,
	queue *SyncQueueService,
	conflicts *ConflictService,
	detector *ConflictDetector,
	resolver *ConflictResolver,
	gateway ServerGateway,
	wsManager *websocket.Manager,
) *SyncService {
	return &SyncService{
		drafts:    drafts,
		queue:     queue,
		conflicts: conflicts,
		detector:  detector,
		resolver:  resolver,
		gateway:   gateway,
		wsManager: wsManager,
	}
}

// Detect is the dry-run path: it compares the local draft against the current
// server copy without resolving or mutating anything.
func (s *SyncService) Detect(ctx context.Context, pressRunID string) ([]*domain.Conflict, error) {
	local, err := s.drafts.Get(pressRunID)
	if err != nil {
		return nil, err
	}
	server, err := s.gateway.FetchPressRun(ctx, pressRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server press run: %w", err)
	}
	return s.detector.Detect(local, server), nil
}

// SyncPressRun executes one sync attempt under the given strategy. actor and
// deviceID identify who triggered it, for conflict attribution and for
// excluding the originating device from broadcasts.
func (s *SyncService) SyncPressRun(ctx context.Context, pressRunID string, strategy domain.ResolutionStrategy, actor, deviceID string) (*domain.SyncOutcome, error) {
	local, err := s.drafts.Get(pressRunID)
	if err != nil {
		return nil, err
	}

	if local.Status == domain.PressRunStatusError {
		local.Status = domain.PressRunStatusDraft
	}
	if !domain.CanTransition(local.Status, domain.PressRunStatusSyncing) {
		return nil, &InvalidTransitionError{From: local.Status, To: domain.PressRunStatusSyncing}
	}

	// Persist the syncing status on a copy; detection below must see the
	// draft's original last_modified stamp, not the one from this save.
	syncing := local.Clone()
	syncing.Status = domain.PressRunStatusSyncing
	if err := s.drafts.Save(syncing); err != nil {
		return nil, err
	}

	server, err := s.gateway.FetchPressRun(ctx, pressRunID)
	if err != nil {
		s.recordFailure(local)
		return s.failedOutcome(pressRunID, strategy, fmt.Sprintf("failed to fetch server press run: %v", err)), nil
	}

	detected := s.detector.Detect(local, server)
	result := s.resolver.Resolve(detected, local, server, strategy, actor)

	if result.RequiresManualReview {
		if err := s.conflicts.SavePending(result.Conflicts); err != nil {
			log.Printf("sync: failed to persist pending conflicts for %s: %v", pressRunID, err)
		}
		s.recordFailure(local)
		s.broadcastConflicts(actor, deviceID, pressRunID, result.Conflicts)
		return &domain.SyncOutcome{
			PressRunID: pressRunID,
			Status:     domain.SyncOutcomeManualReview,
			Strategy:   strategy,
			Conflicts:  result.Conflicts,
			Error:      result.Error,
			SyncedAt:   time.Now(),
		}, nil
	}
	if !result.Success {
		s.recordFailure(local)
		return s.failedOutcome(pressRunID, strategy, result.Error), nil
	}

	resolved := result.ResolvedRun
	if resolved == nil {
		// Server-side deletion accepted: drop the local draft.
		if err := s.drafts.Delete(pressRunID); err != nil {
			return nil, err
		}
	} else {
		if err := s.gateway.CommitPressRun(ctx, resolved); err != nil {
			s.recordFailure(local)
			return s.failedOutcome(pressRunID, strategy, fmt.Sprintf("failed to commit resolved press run: %v", err)), nil
		}
		resolved.Status = domain.PressRunStatusSynced
		resolved.SyncAttempts = 0
		if err := s.drafts.Save(resolved); err != nil {
			return nil, err
		}
	}

	if err := s.queue.RemoveForPressRun(pressRunID); err != nil {
		log.Printf("sync: failed to clear queue for %s: %v", pressRunID, err)
	}
	s.conflicts.Discard(result.Conflicts)
	s.broadcastSynced(actor, deviceID, pressRunID, resolved)

	return &domain.SyncOutcome{
		PressRunID:  pressRunID,
		Status:      domain.SyncOutcomeSynced,
		Strategy:    strategy,
		ResolvedRun: resolved,
		Conflicts:   result.Conflicts,
		SyncedAt:    time.Now(),
	}, nil
}

// recordFailure moves the draft to error status and bumps the attempt counter
// the external scheduler uses for backoff. Failures here are logged and
// swallowed: the sync outcome already reports the original problem.
func (s *SyncService) recordFailure(local *domain.PressRun) {
	run, err := s.drafts.Get(local.ID)
	if err != nil {
		log.Printf("sync: failed to reload press run %s after failure: %v", local.ID, err)
		return
	}
	run.SyncAttempts++
	run.Status = domain.PressRunStatusError
	if err := s.drafts.Save(run); err != nil {
		log.Printf("sync: failed to record sync failure for %s: %v", local.ID, err)
	}
}

func (s *SyncService) failedOutcome(pressRunID string, strategy domain.ResolutionStrategy, msg string) *domain.SyncOutcome {
	return &domain.SyncOutcome{
		PressRunID: pressRunID,
		Status:     domain.SyncOutcomeFailed,
		Strategy:   strategy,
		Error:      msg,
		SyncedAt:   time.Now(),
	}
}

func (s *SyncService) broadcastConflicts(operatorID, deviceID, pressRunID string, conflicts []*domain.Conflict) {
	if s.wsManager == nil {
		return
	}
	for _, c := range conflicts {
		msg, err := websocket.NewMessage(websocket.TypeConflictDetected, &websocket.ConflictPayload{
			ConflictID:        c.ID,
			PressRunID:        pressRunID,
			Kind:              string(c.Kind),
			EntityKind:        string(c.EntityKind),
			EntityID:          c.EntityID,
			ConflictingFields: c.ConflictingFields,
		})
		if err != nil {
			continue
		}
		if err := s.wsManager.BroadcastToOperator(operatorID, msg, deviceID); err != nil {
			log.Printf("sync: failed to broadcast conflict %s: %v", c.ID, err)
		}
	}
}

func (s *SyncService) broadcastSynced(operatorID, deviceID, pressRunID string, resolved *domain.PressRun) {
	if s.wsManager == nil {
		return
	}
	payload := &websocket.PressRunSyncedPayload{
		PressRunID: pressRunID,
		Deleted:    resolved == nil,
		SyncedAt:   time.Now(),
		DeviceID:   deviceID,
	}
	if resolved != nil {
		payload.TotalWeightKg = resolved.TotalWeightKg
		payload.LoadCount = len(resolved.Loads)
	}
	msg, err := websocket.NewMessage(websocket.TypePressRunSynced, payload)
	if err != nil {
		return
	}
	if err := s.wsManager.BroadcastToOperator(operatorID, msg, deviceID); err != nil {
		log.Printf("sync: failed to broadcast synced press run %s: %v", pressRunID, err)
	}
}
