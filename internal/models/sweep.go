package models

import "time"

// RepairKind classifies a sweeper repair.
type RepairKind string

const (
	RepairDuplicateInProgress RepairKind = "duplicate_in_progress"
	RepairPositionDensity     RepairKind = "position_density"
	RepairOrderDrift          RepairKind = "order_drift"
	RepairDuplicateActive     RepairKind = "duplicate_active"
	RepairOrphanedEntries     RepairKind = "orphaned_entries"
	RepairStaleCurrentEntry   RepairKind = "stale_current_entry"
)

// SweepRepair records one repair applied by the consistency sweeper.
type SweepRepair struct {
	CompanyID string     `json:"company_id"`
	Kind      RepairKind `json:"kind"`
	EntryIDs  []string   `json:"entry_ids,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// SweepReport summarizes one sweep run. A failing repair is retried once
// and then recorded as a warning without halting the sweep.
type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Companies  int           `json:"companies"`
	Checked    int           `json:"checked"`
	Repairs    []SweepRepair `json:"repairs,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Clean reports whether the sweep found nothing to repair.
func (r *SweepReport) Clean() bool {
	return len(r.Repairs) == 0 && len(r.Warnings) == 0
}
