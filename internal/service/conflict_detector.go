package service

import (
	"math"
	"time"

	"cidermill-sync-server/internal/domain"

	"github.com/google/uuid"
)

// weightTolerance is the absolute tolerance for numeric load fields. Scale
// drift under 10 grams is measurement noise, not a conflict. The check is
// strictly greater-than: a difference of exactly 0.01 is not flagged. The
// bound is padded with toleranceSlack because the binary representation of a
// difference like 120.01 - 120 lands a hair above 0.01.
const (
	weightTolerance = 0.01
	toleranceSlack  = 1e-9
)

// ConflictDetector compares a local draft press run against the authoritative
// server copy. Detection is a pure computation: it never touches storage and
// produces conflicts in a deterministic order (press run first, then deleted
// loads in local order, then modified loads in server order).
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// Detect returns the conflicts between local and server. A nil server means
// the press run was deleted server-side; that single conflict short-circuits
// all further comparison.
func (d *ConflictDetector) Detect(local, server *domain.PressRun) []*domain.Conflict {
	now := time.Now()

	if server == nil {
		return []*domain.Conflict{{
			ID:                uuid.New().String(),
			Kind:              domain.ConflictEntityDeleted,
			EntityKind:        domain.EntityPressRun,
			EntityID:          local.ID,
			LocalValue:        &domain.EntitySnapshot{PressRun: local.Clone()},
			ConflictingFields: []string{domain.AllFields},
			DetectedAt:        now,
		}}
	}

	var conflicts []*domain.Conflict

	// Press-run fields are only compared when the server copy is strictly
	// newer. If local is newer or the stamps are equal the local draft is
	// taken as authoritative and no press-run conflict is raised, even if
	// fields differ. Clock skew can mask real divergence here; the loads
	// below are still compared either way.
	if server.LastModified.After(local.LastModified) {
		var fields []string
		if local.VendorID != server.VendorID {
			fields = append(fields, "vendor_id")
		}
		if local.Notes != server.Notes {
			fields = append(fields, "notes")
		}
		if local.Status != server.Status {
			fields = append(fields, "status")
		}
		// The total is derived from load weights, each of which already
		// tolerates 0.01. Comparing it any tighter would flag runs whose
		// loads all agree.
		if floatDiffers(local.TotalWeightKg, server.TotalWeightKg) {
			fields = append(fields, "total_weight_kg")
		}
		if len(fields) > 0 {
			conflicts = append(conflicts, &domain.Conflict{
				ID:                uuid.New().String(),
				Kind:              domain.ConflictFieldModified,
				EntityKind:        domain.EntityPressRun,
				EntityID:          local.ID,
				LocalValue:        &domain.EntitySnapshot{PressRun: local.Clone()},
				ServerValue:       &domain.EntitySnapshot{PressRun: server.Clone()},
				ConflictingFields: fields,
				DetectedAt:        now,
			})
		}
	}

	localLoads := make(map[string]*domain.Load, len(local.Loads))
	for i := range local.Loads {
		localLoads[local.Loads[i].ID] = &local.Loads[i]
	}
	serverLoads := make(map[string]*domain.Load, len(server.Loads))
	for i := range server.Loads {
		serverLoads[server.Loads[i].ID] = &server.Loads[i]
	}

	// Loads the server no longer has were deleted there.
	for i := range local.Loads {
		localLoad := &local.Loads[i]
		if _, ok := serverLoads[localLoad.ID]; ok {
			continue
		}
		conflicts = append(conflicts, &domain.Conflict{
			ID:                uuid.New().String(),
			Kind:              domain.ConflictEntityDeleted,
			EntityKind:        domain.EntityLoad,
			EntityID:          localLoad.ID,
			LocalValue:        &domain.EntitySnapshot{Load: localLoad.Clone()},
			ConflictingFields: []string{domain.AllFields},
			DetectedAt:        now,
		})
	}

	// Loads both sides know are compared field by field. Loads only the
	// server has are additions and accepted silently.
	for i := range server.Loads {
		serverLoad := &server.Loads[i]
		localLoad, ok := localLoads[serverLoad.ID]
		if !ok {
			continue
		}
		fields := compareLoads(localLoad, serverLoad)
		if len(fields) == 0 {
			continue
		}
		conflicts = append(conflicts, &domain.Conflict{
			ID:                uuid.New().String(),
			Kind:              domain.ConflictFieldModified,
			EntityKind:        domain.EntityLoad,
			EntityID:          serverLoad.ID,
			LocalValue:        &domain.EntitySnapshot{Load: localLoad.Clone()},
			ServerValue:       &domain.EntitySnapshot{Load: serverLoad.Clone()},
			ConflictingFields: fields,
			DetectedAt:        now,
		})
	}

	return conflicts
}

func compareLoads(local, server *domain.Load) []string {
	var fields []string

	if local.PurchaseLineID != server.PurchaseLineID {
		fields = append(fields, "purchase_line_id")
	}
	if local.VarietyID != server.VarietyID {
		fields = append(fields, "variety_id")
	}
	if floatDiffers(local.WeightKg, server.WeightKg) {
		fields = append(fields, "weight_kg")
	}
	if local.WeightUnit != server.WeightUnit {
		fields = append(fields, "weight_unit")
	}
	if floatDiffers(local.OriginalWeight, server.OriginalWeight) {
		fields = append(fields, "original_weight")
	}
	if local.OriginalUnit != server.OriginalUnit {
		fields = append(fields, "original_unit")
	}
	if floatPtrDiffers(local.BrixMeasurement, server.BrixMeasurement) {
		fields = append(fields, "brix_measurement")
	}
	if floatPtrDiffers(local.PHMeasurement, server.PHMeasurement) {
		fields = append(fields, "ph_measurement")
	}
	if gradeDiffers(local.ConditionGrade, server.ConditionGrade) {
		fields = append(fields, "condition_grade")
	}
	if floatPtrDiffers(local.DefectPercentage, server.DefectPercentage) {
		fields = append(fields, "defect_percentage")
	}
	if local.Status != server.Status {
		fields = append(fields, "status")
	}

	return fields
}

func floatDiffers(a, b float64) bool {
	return math.Abs(a-b) > weightTolerance+toleranceSlack
}

func floatPtrDiffers(a, b *float64) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return floatDiffers(*a, *b)
}

func gradeDiffers(a, b *domain.ConditionGrade) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return *a != *b
}
