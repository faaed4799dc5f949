package domain

import (
	"encoding/json"
	"time"
)

type SyncIntent string

const (
	IntentCreatePressRun   SyncIntent = "create_press_run"
	IntentAddLoad          SyncIntent = "add_load"
	IntentCompletePressRun SyncIntent = "complete_press_run"
)

// QueueItem is one pending mutation intent awaiting transmission. The external
// scheduler owns sequencing and backoff; this side only keeps the bookkeeping.
type QueueItem struct {
	ID          string          `json:"id"`
	Intent      SyncIntent      `json:"intent"`
	PressRunID  string          `json:"press_run_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type EnqueueRequest struct {
	Intent     SyncIntent      `json:"intent" validate:"required,oneof=create_press_run add_load complete_press_run"`
	PressRunID string          `json:"press_run_id" validate:"required"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type UpdateQueueItemRequest struct {
	Attempts    *int       `json:"attempts,omitempty" validate:"omitempty,gte=0"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}
