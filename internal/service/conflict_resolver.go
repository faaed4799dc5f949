package service

import (
	"fmt"

	"cidermill-sync-server/internal/domain"
)

// ConflictResolver applies one resolution strategy to a detected conflict
// list. It is pure: it works on clones and never writes to storage, so an
// aborted merge leaves no partial state anywhere.
type ConflictResolver struct{}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Resolve produces either a resolved press run or a manual-review
// requirement. resolvedBy is recorded on each conflict the strategy settles.
func (r *ConflictResolver) Resolve(conflicts []*domain.Conflict, local, server *domain.PressRun, strategy domain.ResolutionStrategy, resolvedBy string) *domain.ResolutionResult {
	if len(conflicts) == 0 {
		return &domain.ResolutionResult{
			Success:     true,
			ResolvedRun: local,
			Conflicts:   conflicts,
		}
	}

	switch strategy {
	case domain.ResolutionLocalWins:
		for _, c := range conflicts {
			c.MarkResolved(domain.ResolutionLocalWins, c.LocalValue, resolvedBy)
		}
		return &domain.ResolutionResult{
			Success:     true,
			ResolvedRun: local,
			Conflicts:   conflicts,
		}

	case domain.ResolutionServerWins:
		for _, c := range conflicts {
			c.MarkResolved(domain.ResolutionServerWins, c.ServerValue, resolvedBy)
		}
		return &domain.ResolutionResult{
			Success:     true,
			ResolvedRun: adoptServerRun(server),
			Conflicts:   conflicts,
		}

	case domain.ResolutionMerge:
		return r.merge(conflicts, local, resolvedBy)

	case domain.ResolutionManualReview:
		return &domain.ResolutionResult{
			RequiresManualReview: true,
			Conflicts:            conflicts,
		}

	default:
		return &domain.ResolutionResult{
			RequiresManualReview: true,
			Error:                fmt.Sprintf("%v: %s", ErrUnknownStrategy, strategy),
			Conflicts:            conflicts,
		}
	}
}

// merge folds the conflicts over a working copy of the local draft. The first
// blocking conflict (deletion, domain or validation conflict, or any status
// divergence) aborts the whole pass: the result then carries only that single
// conflict and the working copy is discarded, so no partially merged run is
// ever observable.
func (r *ConflictResolver) merge(conflicts []*domain.Conflict, local *domain.PressRun, resolvedBy string) *domain.ResolutionResult {
	working := local.Clone()

	for _, c := range conflicts {
		if c.Blocking() {
			return &domain.ResolutionResult{
				RequiresManualReview: true,
				Conflicts:            []*domain.Conflict{c},
			}
		}
		if err := applyFieldMerge(working, c); err != nil {
			return &domain.ResolutionResult{
				RequiresManualReview: true,
				Error:                "merge failed",
				Conflicts:            conflicts,
			}
		}
	}

	working.RecomputeTotal()

	for _, c := range conflicts {
		c.MarkResolved(domain.ResolutionMerge, mergedSnapshot(working, c), resolvedBy)
	}

	return &domain.ResolutionResult{
		Success:     true,
		ResolvedRun: working,
		Conflicts:   conflicts,
	}
}

func applyFieldMerge(working *domain.PressRun, c *domain.Conflict) error {
	switch c.EntityKind {
	case domain.EntityPressRun:
		if c.ServerValue == nil || c.ServerValue.PressRun == nil {
			return fmt.Errorf("press run conflict %s has no server snapshot", c.ID)
		}
		mergePressRunFields(working, c.ServerValue.PressRun, c.ConflictingFields)
		return nil

	case domain.EntityLoad:
		if c.ServerValue == nil || c.ServerValue.Load == nil {
			return fmt.Errorf("load conflict %s has no server snapshot", c.ID)
		}
		load := working.FindLoad(c.EntityID)
		if load == nil {
			return fmt.Errorf("load %s not present in working copy", c.EntityID)
		}
		mergeLoadFields(load, c.ServerValue.Load, c.ConflictingFields)
		return nil

	default:
		return fmt.Errorf("conflict %s has unknown entity kind %s", c.ID, c.EntityKind)
	}
}

// Per-field merge rules. Numeric measures take the larger value on the
// assumption that more complete data accumulates upward. Free text keeps both
// sides. Closed enums keep local when local holds a valid member. Everything
// else keeps local unless local is empty.
func mergePressRunFields(working, server *domain.PressRun, fields []string) {
	for _, f := range fields {
		switch f {
		case "total_weight_kg":
			// Derived field, recomputed after the loads settle.
		case "notes":
			working.Notes = mergeNotes(working.Notes, server.Notes)
		case "vendor_id":
			if working.VendorID == "" {
				working.VendorID = server.VendorID
			}
		}
	}
}

func mergeLoadFields(working, server *domain.Load, fields []string) {
	for _, f := range fields {
		switch f {
		case "weight_kg":
			working.WeightKg = maxFloat(working.WeightKg, server.WeightKg)
		case "original_weight":
			working.OriginalWeight = maxFloat(working.OriginalWeight, server.OriginalWeight)
		case "brix_measurement":
			working.BrixMeasurement = maxFloatPtr(working.BrixMeasurement, server.BrixMeasurement)
		case "ph_measurement":
			working.PHMeasurement = maxFloatPtr(working.PHMeasurement, server.PHMeasurement)
		case "defect_percentage":
			working.DefectPercentage = maxFloatPtr(working.DefectPercentage, server.DefectPercentage)
		case "condition_grade":
			if !validGrade(working.ConditionGrade) {
				working.ConditionGrade = server.ConditionGrade
			}
		case "weight_unit":
			if working.WeightUnit == "" {
				working.WeightUnit = server.WeightUnit
			}
		case "original_unit":
			if working.OriginalUnit == "" {
				working.OriginalUnit = server.OriginalUnit
			}
		case "purchase_line_id":
			if working.PurchaseLineID == "" {
				working.PurchaseLineID = server.PurchaseLineID
			}
		case "variety_id":
			if working.VarietyID == "" {
				working.VarietyID = server.VarietyID
			}
		}
	}
}

func mergeNotes(local, server string) string {
	switch {
	case local == "":
		return server
	case server == "" || local == server:
		return local
	default:
		return fmt.Sprintf("%s\n\n[Server]: %s", local, server)
	}
}

func validGrade(g *domain.ConditionGrade) bool {
	if g == nil {
		return false
	}
	switch *g {
	case domain.ConditionExcellent, domain.ConditionGood, domain.ConditionFair, domain.ConditionPoor:
		return true
	default:
		return false
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxFloatPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := maxFloat(*a, *b)
	return &m
}

// adoptServerRun translates the server press run into local draft shape:
// synced status, retry counter reset, invariants re-derived. A nil server
// (deleted there) resolves to nil: the caller drops the local draft.
func adoptServerRun(server *domain.PressRun) *domain.PressRun {
	if server == nil {
		return nil
	}
	run := server.Clone()
	run.Status = domain.PressRunStatusSynced
	run.SyncAttempts = 0
	run.Resequence()
	run.RecomputeTotal()
	return run
}

func mergedSnapshot(working *domain.PressRun, c *domain.Conflict) *domain.EntitySnapshot {
	if c.EntityKind == domain.EntityLoad {
		if load := working.FindLoad(c.EntityID); load != nil {
			return &domain.EntitySnapshot{Load: load.Clone()}
		}
		return nil
	}
	return &domain.EntitySnapshot{PressRun: working.Clone()}
}
