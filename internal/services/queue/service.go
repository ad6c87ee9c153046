// Package queue implements the queue engine: it owns every mutation of
// waiting entries and the position invariants of each company queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
)

// Compile-time interface check
var _ interfaces.QueueService = (*Service)(nil)

// Service implements QueueService. All mutations of one company run under
// that company's keyed lock, so committed operations per company are
// totally ordered; the store's conflict discipline is the backstop for
// anything that slips past the lock.
type Service struct {
	storage  interfaces.StorageManager
	resolver interfaces.CategoryResolver
	locks    *common.KeyedMutex
	logger   *common.Logger

	attempts  uint
	baseDelay time.Duration
	now       func() time.Time
}

// NewService creates a new queue engine.
func NewService(
	storage interfaces.StorageManager,
	resolver interfaces.CategoryResolver,
	locks *common.KeyedMutex,
	logger *common.Logger,
	config common.QueueConfig,
) *Service {
	return &Service{
		storage:   storage,
		resolver:  resolver,
		locks:     locks,
		logger:    logger,
		attempts:  uint(config.ConflictRetries) + 1,
		baseDelay: config.GetRetryBaseDelay(),
		now:       time.Now,
	}
}

// withCompany runs fn under the company lock with conflict retries.
func (s *Service) withCompany(ctx context.Context, companyID string, fn func() error) error {
	if err := s.locks.Lock(ctx, companyID); err != nil {
		return models.ErrTimeout
	}
	defer s.locks.Unlock(companyID)
	return common.WithConflictRetry(ctx, s.attempts, s.baseDelay, fn)
}

func (s *Service) Join(ctx context.Context, studentID, companyID string, kind models.OpportunityKind) (*models.QueueEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown opportunity kind %q", kind)
	}

	category, err := s.resolver.Category(ctx, studentID)
	if err != nil {
		return nil, err
	}
	// An unknown category would silently score as external; refuse it so a
	// misconfigured category source is caught, not mispriced.
	if !category.Valid() {
		return nil, fmt.Errorf("unknown student category %q for student %s", category, studentID)
	}

	var entry *models.QueueEntry
	err = s.withCompany(ctx, companyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		if !company.Active {
			return models.ErrCompanyInactive
		}

		active, err := s.storage.EntryStore().ListActiveByStudent(ctx, studentID, companyID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return models.ErrDuplicateActive
		}

		e := &models.QueueEntry{
			StudentID:     studentID,
			CompanyID:     companyID,
			Status:        models.StatusWaiting,
			Kind:          kind,
			PriorityScore: Score(category, kind, company.QueuePaused),
			JoinedAt:      s.now(),
		}
		if err := s.storage.EntryStore().Create(ctx, e); err != nil {
			// A create racing the pre-check means the student already
			// holds the pair.
			if errors.Is(err, models.ErrConflict) {
				return models.ErrDuplicateActive
			}
			return err
		}

		if err := s.recomputeLocked(ctx, company); err != nil {
			return err
		}
		placed, err := s.storage.EntryStore().Get(ctx, e.ID)
		if err != nil {
			return err
		}
		entry = placed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entry.ID).
		Str("student_id", studentID).
		Str("company_id", companyID).
		Str("kind", string(kind)).
		Int("score", entry.PriorityScore).
		Int("position", entry.QueuePosition).
		Msg("Student joined queue")

	return entry, nil
}

func (s *Service) Leave(ctx context.Context, entryID string, requester models.Actor) error {
	return s.Cancel(ctx, entryID, requester, "")
}

func (s *Service) Cancel(ctx context.Context, entryID string, requester models.Actor, reason string) error {
	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return err
	}

	return s.withCompany(ctx, entry.CompanyID, func() error {
		current, err := s.storage.EntryStore().Get(ctx, entryID)
		if err != nil {
			return err
		}

		switch current.Status {
		case models.StatusWaiting:
			if current.StudentID != requester.ID && !requester.IsAdmin() {
				return models.ErrUnauthorized
			}
			if err := s.storage.EntryStore().CancelWaiting(ctx, entryID, reason, s.now()); err != nil {
				return err
			}
			company, err := s.storage.CompanyStore().Get(ctx, current.CompanyID)
			if err != nil {
				return err
			}
			s.logger.Info().
				Str("entry_id", entryID).
				Str("company_id", current.CompanyID).
				Str("requester", requester.ID).
				Msg("Queue entry cancelled")
			return s.recomputeLocked(ctx, company)

		case models.StatusInProgress:
			// Operators may cancel a running interview; it forfeits.
			company, err := s.storage.CompanyStore().Get(ctx, current.CompanyID)
			if err != nil {
				return err
			}
			if !requester.CanOperate(company.Room) {
				return models.ErrUnauthorized
			}
			if err := s.storage.EntryStore().FinishInProgress(ctx, entryID, models.StatusPassed, s.now()); err != nil {
				return err
			}
			if err := s.storage.CompanyStore().ClearCurrentEntry(ctx, company.ID, entryID); err != nil && !errors.Is(err, models.ErrConflict) {
				return err
			}
			s.logger.Info().
				Str("entry_id", entryID).
				Str("company_id", company.ID).
				Str("requester", requester.ID).
				Msg("In-progress interview cancelled (forfeited)")
			return nil

		default:
			return models.NewIllegalTransition(entryID, current.Status, "cancel")
		}
	})
}

func (s *Service) Reschedule(ctx context.Context, entryID string, requester models.Actor) (int, error) {
	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return 0, err
	}
	if entry.StudentID != requester.ID && !requester.IsAdmin() {
		return 0, models.ErrUnauthorized
	}

	category, err := s.resolver.Category(ctx, entry.StudentID)
	if err != nil {
		return 0, err
	}
	if !category.Valid() {
		return 0, fmt.Errorf("unknown student category %q for student %s", category, entry.StudentID)
	}

	newPosition := 0
	err = s.withCompany(ctx, entry.CompanyID, func() error {
		current, err := s.storage.EntryStore().Get(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusWaiting {
			return models.NewIllegalTransition(entryID, current.Status, "reschedule")
		}
		// Rescheduling the student who is next creates unfair churn for
		// the operator; they cancel instead.
		if current.QueuePosition == 1 {
			return models.ErrAtHead
		}

		company, err := s.storage.CompanyStore().Get(ctx, current.CompanyID)
		if err != nil {
			return err
		}

		score := Score(category, current.Kind, company.QueuePaused)
		if err := s.storage.EntryStore().UpdateWaiting(ctx, entryID, score, s.now()); err != nil {
			return err
		}
		if err := s.recomputeLocked(ctx, company); err != nil {
			return err
		}

		moved, err := s.storage.EntryStore().Get(ctx, entryID)
		if err != nil {
			return err
		}
		newPosition = moved.QueuePosition
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Int("position", newPosition).
		Msg("Queue entry rescheduled to tail")
	return newPosition, nil
}

func (s *Service) Reorder(ctx context.Context, companyID, entryID string, newPosition int, requester models.Actor) error {
	if !requester.IsAdmin() {
		return models.ErrUnauthorized
	}

	err := s.withCompany(ctx, companyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}

		waiting, err := s.storage.EntryStore().ListWaiting(ctx, companyID)
		if err != nil {
			return err
		}
		// Reorder operates on the displayed order, which after a previous
		// reorder is position order, not score order.
		sort.SliceStable(waiting, func(i, j int) bool {
			return waiting[i].QueuePosition < waiting[j].QueuePosition
		})

		idx := -1
		for i, e := range waiting {
			if e.ID == entryID {
				idx = i
				break
			}
		}
		if idx == -1 {
			if _, err := s.storage.EntryStore().Get(ctx, entryID); err != nil {
				return err
			}
			return models.NewIllegalTransition(entryID, models.StatusWaiting, "reorder")
		}

		target := newPosition
		if target < 1 {
			target = 1
		}
		if target > len(waiting) {
			target = len(waiting)
		}

		moved := waiting[idx]
		rest := append(append([]*models.QueueEntry{}, waiting[:idx]...), waiting[idx+1:]...)
		reordered := append(append(append([]*models.QueueEntry{}, rest[:target-1]...), moved), rest[target-1:]...)

		positions := make(map[string]int)
		for i, e := range reordered {
			if e.QueuePosition != i+1 {
				positions[e.ID] = i + 1
			}
		}
		if len(positions) > 0 {
			if err := s.storage.EntryStore().WritePositions(ctx, companyID, positions); err != nil {
				return err
			}
		}

		// Mark the manual order so the sweeper leaves the drift from
		// score ordering alone until the next natural recomputation.
		if !company.ManualOrder {
			company.ManualOrder = true
			if err := s.storage.CompanyStore().Save(ctx, company); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Str("company_id", companyID).
		Int("position", newPosition).
		Msg("Queue entry reordered by admin")
	return nil
}

func (s *Service) PriorityOverride(ctx context.Context, entryID string, requester models.Actor) error {
	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return err
	}

	err = s.withCompany(ctx, entry.CompanyID, func() error {
		current, err := s.storage.EntryStore().Get(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusWaiting {
			return models.NewIllegalTransition(entryID, current.Status, "priority override")
		}

		company, err := s.storage.CompanyStore().Get(ctx, current.CompanyID)
		if err != nil {
			return err
		}
		if !requester.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		if err := s.storage.EntryStore().UpdateWaiting(ctx, entryID, 0, current.JoinedAt); err != nil {
			return err
		}
		return s.recomputeLocked(ctx, company)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Str("requester", requester.ID).
		Msg("Priority override applied")
	return nil
}

func (s *Service) Recompute(ctx context.Context, companyID string) error {
	return s.withCompany(ctx, companyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		return s.recomputeLocked(ctx, company)
	})
}

// recomputeLocked re-derives dense positions 1..N in (score, joined_at, id)
// order, writing only entries whose position changed. Must run under the
// company lock. A natural recomputation supersedes any admin reorder, so
// the manual-order marker is cleared.
func (s *Service) recomputeLocked(ctx context.Context, company *models.Company) error {
	waiting, err := s.storage.EntryStore().ListWaiting(ctx, company.ID)
	if err != nil {
		return err
	}

	positions := make(map[string]int)
	for i, e := range waiting {
		if e.QueuePosition != i+1 {
			positions[e.ID] = i + 1
		}
	}
	if len(positions) > 0 {
		if err := s.storage.EntryStore().WritePositions(ctx, company.ID, positions); err != nil {
			return err
		}
	}

	if company.ManualOrder {
		company.ManualOrder = false
		if err := s.storage.CompanyStore().Save(ctx, company); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Snapshot(ctx context.Context, companyID string) (*models.QueueSnapshot, error) {
	company, err := s.storage.CompanyStore().Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	waiting, err := s.storage.EntryStore().ListWaiting(ctx, companyID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		return waiting[i].QueuePosition < waiting[j].QueuePosition
	})

	snapshot := &models.QueueSnapshot{
		Company: company,
		Waiting: waiting,
		TakenAt: s.now(),
	}

	inProgress, err := s.storage.EntryStore().ListInProgress(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(inProgress) > 0 {
		snapshot.InProgress = inProgress[0]
	}
	return snapshot, nil
}
