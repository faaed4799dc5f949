package domain

import "time"

type PressRunStatus string

const (
	PressRunStatusDraft   PressRunStatus = "draft"
	PressRunStatusSyncing PressRunStatus = "syncing"
	PressRunStatusSynced  PressRunStatus = "synced"
	PressRunStatusError   PressRunStatus = "error"
)

type LoadStatus string

const (
	LoadStatusPending   LoadStatus = "pending"
	LoadStatusConfirmed LoadStatus = "confirmed"
	LoadStatusError     LoadStatus = "error"
)

type WeightUnit string

const (
	WeightUnitKg     WeightUnit = "kg"
	WeightUnitLb     WeightUnit = "lb"
	WeightUnitBushel WeightUnit = "bushel"
)

type ConditionGrade string

const (
	ConditionExcellent ConditionGrade = "excellent"
	ConditionGood      ConditionGrade = "good"
	ConditionFair      ConditionGrade = "fair"
	ConditionPoor      ConditionGrade = "poor"
)

// PressRun is the unit of offline work: an apple pressing session drafted on a
// device in the press house, synced to the server once connectivity returns.
// TotalWeightKg is derived from the loads and is never set directly.
type PressRun struct {
	ID            string         `json:"id" validate:"required"`
	VendorID      string         `json:"vendor_id" validate:"required"`
	Status        PressRunStatus `json:"status" validate:"required,oneof=draft syncing synced error"`
	StartedAt     time.Time      `json:"started_at" validate:"required"`
	LastModified  time.Time      `json:"last_modified" validate:"required"`
	Loads         []Load         `json:"loads" validate:"dive"`
	SyncAttempts  int            `json:"sync_attempts" validate:"gte=0"`
	TotalWeightKg float64        `json:"total_weight_kg" validate:"gte=0"`
	Notes         string         `json:"notes"`
}

// Load is a single line item within a press run: one lot of fruit tipped into
// the press. The original weight and unit are kept alongside the converted
// kilogram value because unit conversion is lossy and must stay auditable.
type Load struct {
	ID             string     `json:"id" validate:"required"`
	PurchaseLineID string     `json:"purchase_line_id" validate:"required"`
	VarietyID      string     `json:"variety_id" validate:"required"`
	WeightKg       float64    `json:"weight_kg" validate:"gte=0"`
	WeightUnit     WeightUnit `json:"weight_unit" validate:"required,oneof=kg lb bushel"`
	OriginalWeight float64    `json:"original_weight" validate:"gte=0"`
	OriginalUnit   WeightUnit `json:"original_unit" validate:"required,oneof=kg lb bushel"`

	BrixMeasurement  *float64        `json:"brix_measurement,omitempty" validate:"omitempty,gte=0,lte=30"`
	PHMeasurement    *float64        `json:"ph_measurement,omitempty" validate:"omitempty,gte=0,lte=14"`
	ConditionGrade   *ConditionGrade `json:"condition_grade,omitempty" validate:"omitempty,oneof=excellent good fair poor"`
	DefectPercentage *float64        `json:"defect_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`

	Status   LoadStatus `json:"status" validate:"required,oneof=pending confirmed error"`
	Sequence int        `json:"sequence" validate:"gte=1"`
}

type CreatePressRunRequest struct {
	VendorID string `json:"vendor_id" validate:"required"`
	Notes    string `json:"notes"`
}

type UpdatePressRunRequest struct {
	Status *PressRunStatus `json:"status,omitempty" validate:"omitempty,oneof=draft syncing synced error"`
	Notes  *string         `json:"notes,omitempty"`
}

type AddLoadRequest struct {
	PurchaseLineID string     `json:"purchase_line_id" validate:"required"`
	VarietyID      string     `json:"variety_id" validate:"required"`
	WeightKg       float64    `json:"weight_kg" validate:"gte=0"`
	WeightUnit     WeightUnit `json:"weight_unit" validate:"required,oneof=kg lb bushel"`
	OriginalWeight float64    `json:"original_weight" validate:"gte=0"`
	OriginalUnit   WeightUnit `json:"original_unit" validate:"required,oneof=kg lb bushel"`

	BrixMeasurement  *float64        `json:"brix_measurement,omitempty" validate:"omitempty,gte=0,lte=30"`
	PHMeasurement    *float64        `json:"ph_measurement,omitempty" validate:"omitempty,gte=0,lte=14"`
	ConditionGrade   *ConditionGrade `json:"condition_grade,omitempty" validate:"omitempty,oneof=excellent good fair poor"`
	DefectPercentage *float64        `json:"defect_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type UpdateLoadRequest struct {
	WeightKg       *float64    `json:"weight_kg,omitempty" validate:"omitempty,gte=0"`
	WeightUnit     *WeightUnit `json:"weight_unit,omitempty" validate:"omitempty,oneof=kg lb bushel"`
	OriginalWeight *float64    `json:"original_weight,omitempty" validate:"omitempty,gte=0"`
	OriginalUnit   *WeightUnit `json:"original_unit,omitempty" validate:"omitempty,oneof=kg lb bushel"`

	BrixMeasurement  *float64        `json:"brix_measurement,omitempty" validate:"omitempty,gte=0,lte=30"`
	PHMeasurement    *float64        `json:"ph_measurement,omitempty" validate:"omitempty,gte=0,lte=14"`
	ConditionGrade   *ConditionGrade `json:"condition_grade,omitempty" validate:"omitempty,oneof=excellent good fair poor"`
	DefectPercentage *float64        `json:"defect_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`

	Status *LoadStatus `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed error"`
}

// RecomputeTotal re-derives TotalWeightKg from the loads.
func (p *PressRun) RecomputeTotal() {
	var total float64
	for i := range p.Loads {
		total += p.Loads[i].WeightKg
	}
	p.TotalWeightKg = total
}

// Resequence renumbers loads contiguously from 1, preserving order.
func (p *PressRun) Resequence() {
	for i := range p.Loads {
		p.Loads[i].Sequence = i + 1
	}
}

// FindLoad returns a pointer into the Loads slice, or nil.
func (p *PressRun) FindLoad(loadID string) *Load {
	for i := range p.Loads {
		if p.Loads[i].ID == loadID {
			return &p.Loads[i]
		}
	}
	return nil
}

// Clone deep-copies the press run, including optional load measurements.
func (p *PressRun) Clone() *PressRun {
	if p == nil {
		return nil
	}
	out := *p
	out.Loads = make([]Load, len(p.Loads))
	for i := range p.Loads {
		out.Loads[i] = *p.Loads[i].Clone()
	}
	return &out
}

// Clone deep-copies one load.
func (l *Load) Clone() *Load {
	if l == nil {
		return nil
	}
	out := *l
	out.BrixMeasurement = cloneFloat(l.BrixMeasurement)
	out.PHMeasurement = cloneFloat(l.PHMeasurement)
	out.DefectPercentage = cloneFloat(l.DefectPercentage)
	if l.ConditionGrade != nil {
		g := *l.ConditionGrade
		out.ConditionGrade = &g
	}
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// CanTransition reports whether a press run status change is allowed. The
// lifecycle is forward-only except for the error -> draft retry edge.
func CanTransition(from, to PressRunStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case PressRunStatusDraft:
		return to == PressRunStatusSyncing
	case PressRunStatusSyncing:
		return to == PressRunStatusSynced || to == PressRunStatusError
	case PressRunStatusError:
		return to == PressRunStatusDraft
	default:
		return false
	}
}
