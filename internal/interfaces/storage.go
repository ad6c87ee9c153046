// Package interfaces defines service and storage contracts for Foyer
package interfaces

import (
	"context"
	"time"

	"github.com/forumdesk/foyer/internal/models"
)

// StorageManager coordinates the storage backend.
//
// Conflict discipline: mutating methods return models.ErrConflict when a
// uniqueness constraint or conditional update loses a race. Callers retry
// with fresh reads; the store never retries internally. Every mutation is
// atomic — it either applies fully or leaves the store unchanged.
type StorageManager interface {
	CompanyStore() CompanyStore
	EntryStore() EntryStore

	// Lifecycle
	Close() error
}

// CompanyStore persists companies. Companies are soft-deactivated, never
// physically removed while entries reference them.
type CompanyStore interface {
	Create(ctx context.Context, company *models.Company) error
	Get(ctx context.Context, id string) (*models.Company, error)
	Save(ctx context.Context, company *models.Company) error
	List(ctx context.Context, activeOnly bool) ([]*models.Company, error)

	// ClaimCurrentEntry sets current_entry_id to entryID only when the
	// booth is free. Returns models.ErrConflict when another entry holds
	// the booth (U2).
	ClaimCurrentEntry(ctx context.Context, companyID, entryID string) error

	// ClearCurrentEntry clears current_entry_id only while it points at
	// entryID. Clearing a reference another entry now holds is a conflict.
	ClearCurrentEntry(ctx context.Context, companyID, entryID string) error
}

// EntryStore persists queue entries and enforces the active-pair constraint.
type EntryStore interface {
	// Create inserts a new waiting entry. Returns models.ErrConflict when
	// the student already holds an active entry for the company (U1).
	Create(ctx context.Context, entry *models.QueueEntry) error

	Get(ctx context.Context, id string) (*models.QueueEntry, error)

	// ListWaiting returns the company's waiting entries ordered by
	// (priority_score asc, joined_at asc, id asc).
	ListWaiting(ctx context.Context, companyID string) ([]*models.QueueEntry, error)

	// ListInProgress returns the company's in-progress entries. More than
	// one element is drift for the sweeper to repair.
	ListInProgress(ctx context.Context, companyID string) ([]*models.QueueEntry, error)

	// ListActiveByStudent returns the student's waiting/in-progress
	// entries, optionally filtered to one company (companyID empty = all).
	ListActiveByStudent(ctx context.Context, studentID, companyID string) ([]*models.QueueEntry, error)

	// ListActive returns every waiting/in-progress entry across all
	// companies. Sweeper scans only.
	ListActive(ctx context.Context) ([]*models.QueueEntry, error)

	// ClaimInProgress transitions waiting → in_progress, setting
	// started_at. Returns models.ErrConflict when the entry is no longer
	// waiting.
	ClaimInProgress(ctx context.Context, entryID string, now time.Time) error

	// FinishInProgress transitions in_progress → completed or passed,
	// setting the matching timestamp. Returns models.ErrConflict when the
	// entry is not in progress.
	FinishInProgress(ctx context.Context, entryID string, to models.EntryStatus, now time.Time) error

	// CancelWaiting transitions waiting → cancelled with cancelled_at and
	// an optional audit reason. Returns models.ErrConflict when the entry
	// is not waiting.
	CancelWaiting(ctx context.Context, entryID, reason string, now time.Time) error

	// UpdateWaiting rewrites score and joined_at on a still-waiting entry.
	// Returns models.ErrConflict when the entry left the waiting state.
	UpdateWaiting(ctx context.Context, entryID string, score int, joinedAt time.Time) error

	// WritePositions applies a batch of position assignments atomically.
	WritePositions(ctx context.Context, companyID string, positions map[string]int) error

	// CancelEntry force-cancels an entry regardless of state. Sweeper
	// repairs only; never part of the happy path.
	CancelEntry(ctx context.Context, entryID, reason string, now time.Time) error
}
