package domain

import "time"

type SyncOutcomeStatus string

const (
	SyncOutcomeSynced       SyncOutcomeStatus = "synced"
	SyncOutcomeManualReview SyncOutcomeStatus = "manual_review"
	SyncOutcomeFailed       SyncOutcomeStatus = "failed"
)

// SyncOutcome reports the result of one sync attempt for a press run.
type SyncOutcome struct {
	PressRunID  string             `json:"press_run_id"`
	Status      SyncOutcomeStatus  `json:"status"`
	Strategy    ResolutionStrategy `json:"strategy"`
	ResolvedRun *PressRun          `json:"resolved_run,omitempty"`
	Conflicts   []*Conflict        `json:"conflicts,omitempty"`
	Error       string             `json:"error,omitempty"`
	SyncedAt    time.Time          `json:"synced_at"`
}

type SyncPressRunRequest struct {
	Strategy ResolutionStrategy `json:"strategy" validate:"required,oneof=local_wins server_wins merge manual_review"`
	DeviceID string             `json:"device_id"`
}
