package domain

import "time"

type ConflictKind string

const (
	ConflictFieldModified    ConflictKind = "field_modified"
	ConflictEntityDeleted    ConflictKind = "entity_deleted"
	ConflictValidationFailed ConflictKind = "validation_failed"
	ConflictDomain           ConflictKind = "domain_conflict"
)

type EntityKind string

const (
	EntityPressRun EntityKind = "press_run"
	EntityLoad     EntityKind = "load"
)

type ResolutionStrategy string

const (
	ResolutionLocalWins    ResolutionStrategy = "local_wins"
	ResolutionServerWins   ResolutionStrategy = "server_wins"
	ResolutionMerge        ResolutionStrategy = "merge"
	ResolutionManualReview ResolutionStrategy = "manual_review"
)

type ManualDecision string

const (
	DecisionLocal  ManualDecision = "local"
	DecisionServer ManualDecision = "server"
	DecisionCustom ManualDecision = "custom"
)

// AllFields marks a whole-entity conflict (deletion) where no per-field set
// is meaningful.
const AllFields = "*"

// EntitySnapshot holds a typed copy of one side of a conflict. Exactly one of
// the two fields is set, matching the conflict's EntityKind.
type EntitySnapshot struct {
	PressRun *PressRun `json:"press_run,omitempty"`
	Load     *Load     `json:"load,omitempty"`
}

// Conflict records one detected divergence between the local draft and the
// authoritative server press run. Conflicts are created fresh on every
// detection pass and live only for the enclosing sync attempt, unless handed
// to manual review.
type Conflict struct {
	ID                string          `json:"id"`
	Kind              ConflictKind    `json:"kind"`
	EntityKind        EntityKind      `json:"entity_kind"`
	EntityID          string          `json:"entity_id"`
	LocalValue        *EntitySnapshot `json:"local_value,omitempty"`
	ServerValue       *EntitySnapshot `json:"server_value,omitempty"`
	ConflictingFields []string        `json:"conflicting_fields"`
	DetectedAt        time.Time       `json:"detected_at"`

	Resolved           bool               `json:"resolved"`
	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy,omitempty"`
	ResolvedValue      *EntitySnapshot    `json:"resolved_value,omitempty"`
	ResolvedBy         string             `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
}

// Blocking reports whether this conflict can never be auto-merged.
func (c *Conflict) Blocking() bool {
	if c.Kind != ConflictFieldModified {
		return true
	}
	for _, f := range c.ConflictingFields {
		if f == "status" {
			return true
		}
	}
	return false
}

// MarkResolved stamps the resolution metadata on the conflict.
func (c *Conflict) MarkResolved(strategy ResolutionStrategy, value *EntitySnapshot, by string) {
	now := time.Now()
	c.Resolved = true
	c.ResolutionStrategy = strategy
	c.ResolvedValue = value
	c.ResolvedBy = by
	c.ResolvedAt = &now
}

// ResolutionResult is the outcome of one resolution pass over a conflict list.
// Either ResolvedRun is set (auto-applied) or RequiresManualReview is true;
// a partially merged run is never returned.
type ResolutionResult struct {
	Success              bool        `json:"success"`
	ResolvedRun          *PressRun   `json:"resolved_run,omitempty"`
	RequiresManualReview bool        `json:"requires_manual_review"`
	Error                string      `json:"error,omitempty"`
	Conflicts            []*Conflict `json:"conflicts"`
}

type ManualResolutionRequest struct {
	Decision    ManualDecision  `json:"decision" validate:"required,oneof=local server custom"`
	CustomValue *EntitySnapshot `json:"custom_value,omitempty"`
}
