package interfaces

import (
	"context"

	"github.com/forumdesk/foyer/internal/models"
)

// QueueService is the queue engine: it owns every mutation of waiting
// entries and the position invariants of each company queue.
type QueueService interface {
	// Join creates a waiting entry for the student and returns it with its
	// assigned position. Joining a paused company succeeds with the
	// paused-join penalty applied to the score.
	Join(ctx context.Context, studentID, companyID string, kind models.OpportunityKind) (*models.QueueEntry, error)

	// Leave cancels a waiting entry. The requester must be the entry's
	// student or an admin.
	Leave(ctx context.Context, entryID string, requester models.Actor) error

	// Cancel is Leave with an audit reason; operators may also cancel an
	// in-progress entry, which forfeits it.
	Cancel(ctx context.Context, entryID string, requester models.Actor, reason string) error

	// Reschedule moves a waiting entry to the tail of its category by
	// updating joined_at and recomputing the score. Returns the new
	// position. Rescheduling the head entry fails with models.ErrAtHead.
	Reschedule(ctx context.Context, entryID string, requester models.Actor) (int, error)

	// Reorder moves a waiting entry to newPosition (clamped to [1,N]),
	// admin only. Positions stop agreeing with score order until the next
	// natural recomputation.
	Reorder(ctx context.Context, companyID, entryID string, newPosition int, requester models.Actor) error

	// PriorityOverride sets the entry's score to 0 and re-derives
	// positions. Admin or operator.
	PriorityOverride(ctx context.Context, entryID string, requester models.Actor) error

	// Recompute re-sorts the company's waiting entries by
	// (score, joined_at) and writes dense positions 1..N. Idempotent.
	Recompute(ctx context.Context, companyID string) error

	// Snapshot returns a read-only view of the company queue.
	Snapshot(ctx context.Context, companyID string) (*models.QueueSnapshot, error)
}

// InterviewService drives an entry through the interview state machine.
type InterviewService interface {
	// Start moves the position-1 waiting entry to in_progress. The
	// operator's room must match the company's room.
	Start(ctx context.Context, entryID string, operator models.Actor) error

	// Complete moves an in-progress entry to completed.
	Complete(ctx context.Context, entryID string, operator models.Actor) error

	// Forfeit moves an in-progress entry to passed, freeing the booth.
	Forfeit(ctx context.Context, entryID string, operator models.Actor) error

	// Next forfeits the current interview (if any) and starts the head
	// entry (if any).
	Next(ctx context.Context, companyID string, operator models.Actor) error
}

// RoomService is the per-company operator control surface. It is the only
// writer of the company flag fields.
type RoomService interface {
	Pause(ctx context.Context, companyID string, operator models.Actor) error
	Resume(ctx context.Context, companyID string, operator models.Actor) error

	// EmergencyMode flags the booth as disrupted and forfeits the current
	// interview, if any. No replacement is auto-started.
	EmergencyMode(ctx context.Context, companyID string, operator models.Actor) error

	// EmergencyCall forfeits the current interview (if any) and starts the
	// given entry regardless of its position, zeroing its score.
	EmergencyCall(ctx context.Context, companyID, entryID string, operator models.Actor) error

	// ClearQueue cancels every waiting entry, returning the count. The
	// in-progress entry is untouched.
	ClearQueue(ctx context.Context, companyID string, operator models.Actor) (int, error)
}

// CompanyService is the admin management surface for booths.
type CompanyService interface {
	Create(ctx context.Context, company *models.Company, requester models.Actor) (*models.Company, error)
	Get(ctx context.Context, companyID string) (*models.Company, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Company, error)
	Deactivate(ctx context.Context, companyID string, requester models.Actor) error
	Reactivate(ctx context.Context, companyID string, requester models.Actor) error
}

// SweeperService detects and repairs queue drift.
type SweeperService interface {
	// Sweep validates and repairs one company, or every active company
	// when companyID is empty.
	Sweep(ctx context.Context, companyID string) (*models.SweepReport, error)

	// Start launches the background sweep loop; Stop cancels it and waits.
	Start()
	Stop()
}

// CategoryResolver resolves a student's category from the external user
// system. Implementations cache; the queue engine treats the result as
// authoritative at join time.
type CategoryResolver interface {
	Category(ctx context.Context, studentID string) (models.StudentCategory, error)
}
