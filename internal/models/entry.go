// Package models defines the queue coordination domain types for Foyer.
package models

import "time"

// EntryStatus is the lifecycle state of a queue entry.
type EntryStatus string

// Entry status values. Completed, passed, and cancelled are terminal.
const (
	StatusWaiting    EntryStatus = "waiting"
	StatusInProgress EntryStatus = "in_progress"
	StatusCompleted  EntryStatus = "completed"
	StatusPassed     EntryStatus = "passed"
	StatusCancelled  EntryStatus = "cancelled"
)

// Active reports whether the status counts toward the one-active-per-
// (student, company) constraint.
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// Terminal reports whether the status is immutable.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPassed || s == StatusCancelled
}

// OpportunityKind is the kind of opportunity a student queues for.
type OpportunityKind string

const (
	KindInternshipShort OpportunityKind = "internship-short"
	KindInternshipLong  OpportunityKind = "internship-long"
	KindEmployment      OpportunityKind = "employment"
	KindObservation     OpportunityKind = "observation"
)

// Valid reports whether the kind is one of the known variants.
func (k OpportunityKind) Valid() bool {
	switch k {
	case KindInternshipShort, KindInternshipLong, KindEmployment, KindObservation:
		return true
	}
	return false
}

// StudentCategory is derived from the external user record, never stored on
// the entry. Committee members rotating as candidates are served first,
// internal students next, external students last.
type StudentCategory string

const (
	CategoryCommittee StudentCategory = "committee"
	CategoryInternal  StudentCategory = "internal"
	CategoryExternal  StudentCategory = "external"
)

// Valid reports whether the category is one of the known variants.
func (c StudentCategory) Valid() bool {
	switch c {
	case CategoryCommittee, CategoryInternal, CategoryExternal:
		return true
	}
	return false
}

// QueueEntry is one queue record, the unit of lifecycle state.
// QueuePosition is 1-based and only meaningful while Status is waiting;
// terminal entries keep their last-known value but it is semantically dead.
type QueueEntry struct {
	ID            string          `json:"id"`
	StudentID     string          `json:"student_id"`
	CompanyID     string          `json:"company_id"`
	Status        EntryStatus     `json:"status"`
	QueuePosition int             `json:"queue_position"`
	PriorityScore int             `json:"priority_score"`
	Kind          OpportunityKind `json:"opportunity_kind"`
	JoinedAt      time.Time       `json:"joined_at"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   time.Time       `json:"completed_at"`
	PassedAt      time.Time       `json:"passed_at"`
	CancelledAt   time.Time       `json:"cancelled_at"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
}

// QueueSnapshot is a read-only view of one company's queue.
// Waiting is ordered by queue position; InProgress is nil when the booth is
// free. Snapshot reads never take write transactions and may trail the
// latest commit by one interval.
type QueueSnapshot struct {
	Company    *Company      `json:"company"`
	Waiting    []*QueueEntry `json:"waiting"`
	InProgress *QueueEntry   `json:"in_progress,omitempty"`
	TakenAt    time.Time     `json:"taken_at"`
}
