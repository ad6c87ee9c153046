package memory

import (
	"context"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/google/uuid"
)

// EntryStore implements interfaces.EntryStore over the shared tables.
type EntryStore struct {
	t      *tables
	logger *common.Logger
}

// NewEntryStore creates an entry store bound to the shared tables.
func NewEntryStore(t *tables, logger *common.Logger) *EntryStore {
	return &EntryStore{t: t, logger: logger}
}

func (s *EntryStore) Create(_ context.Context, entry *models.QueueEntry) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	// U1: one active entry per (student, company).
	for _, e := range s.t.entries {
		if e.StudentID == entry.StudentID && e.CompanyID == entry.CompanyID && e.Status.Active() {
			return models.ErrConflict
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()[:8]
	}
	if entry.Status == "" {
		entry.Status = models.StatusWaiting
	}
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now()
	}
	if _, exists := s.t.entries[entry.ID]; exists {
		return models.ErrConflict
	}
	s.t.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *EntryStore) Get(_ context.Context, id string) (*models.QueueEntry, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	e, ok := s.t.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *EntryStore) ListWaiting(_ context.Context, companyID string) ([]*models.QueueEntry, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	var out []*models.QueueEntry
	for _, e := range s.t.entries {
		if e.CompanyID == companyID && e.Status == models.StatusWaiting {
			out = append(out, copyEntry(e))
		}
	}
	sortWaiting(out)
	return out, nil
}

func (s *EntryStore) ListInProgress(_ context.Context, companyID string) ([]*models.QueueEntry, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	var out []*models.QueueEntry
	for _, e := range s.t.entries {
		if e.CompanyID == companyID && e.Status == models.StatusInProgress {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (s *EntryStore) ListActiveByStudent(_ context.Context, studentID, companyID string) ([]*models.QueueEntry, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	var out []*models.QueueEntry
	for _, e := range s.t.entries {
		if e.StudentID != studentID || !e.Status.Active() {
			continue
		}
		if companyID != "" && e.CompanyID != companyID {
			continue
		}
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (s *EntryStore) ListActive(_ context.Context) ([]*models.QueueEntry, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	var out []*models.QueueEntry
	for _, e := range s.t.entries {
		if e.Status.Active() {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (s *EntryStore) ClaimInProgress(_ context.Context, entryID string, now time.Time) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	e, ok := s.t.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status != models.StatusWaiting {
		return models.ErrConflict
	}
	e.Status = models.StatusInProgress
	e.StartedAt = now
	return nil
}

func (s *EntryStore) FinishInProgress(_ context.Context, entryID string, to models.EntryStatus, now time.Time) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	e, ok := s.t.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status != models.StatusInProgress {
		return models.ErrConflict
	}
	if err := stampTerminal(e, to, now); err != nil {
		return err
	}
	e.Status = to
	return nil
}

func (s *EntryStore) CancelWaiting(_ context.Context, entryID, reason string, now time.Time) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	e, ok := s.t.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status != models.StatusWaiting {
		return models.ErrConflict
	}
	e.Status = models.StatusCancelled
	e.CancelledAt = now
	e.CancelReason = reason
	return nil
}

func (s *EntryStore) UpdateWaiting(_ context.Context, entryID string, score int, joinedAt time.Time) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	e, ok := s.t.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status != models.StatusWaiting {
		return models.ErrConflict
	}
	e.PriorityScore = score
	e.JoinedAt = joinedAt
	return nil
}

func (s *EntryStore) WritePositions(_ context.Context, companyID string, positions map[string]int) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	// Validate the whole batch before touching anything so a bad id leaves
	// the store unchanged.
	for id := range positions {
		e, ok := s.t.entries[id]
		if !ok {
			return models.ErrNotFound
		}
		if e.CompanyID != companyID || e.Status != models.StatusWaiting {
			return models.ErrConflict
		}
	}
	for id, pos := range positions {
		s.t.entries[id].QueuePosition = pos
	}
	return nil
}

func (s *EntryStore) CancelEntry(_ context.Context, entryID, reason string, now time.Time) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	e, ok := s.t.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	if e.Status.Terminal() {
		return models.ErrConflict
	}
	e.Status = models.StatusCancelled
	e.CancelledAt = now
	e.CancelReason = reason
	return nil
}

// Compile-time check
var _ interfaces.EntryStore = (*EntryStore)(nil)
