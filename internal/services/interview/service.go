// Package interview drives a queue entry through the interview state
// machine: waiting → in_progress → completed/passed.
package interview

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
var _ interfaces.InterviewService = (*Service)(nil)

// errBoothBusy marks a conflict raised by the booth claim specifically,
// so exhausted retries on it can surface as ErrAlreadyInProgress while
// conflicts from other mutations keep reporting ErrTransientStore.
var errBoothBusy = fmt.Errorf("booth already claimed: %w", models.ErrConflict)

// Service implements InterviewService. It shares the queue engine's keyed
// mutex so lifecycle transitions and queue mutations of one company never
// interleave.
type Service struct {
	storage interfaces.StorageManager
	locks   *common.KeyedMutex
	logger  *common.Logger

	attempts  uint
	baseDelay time.Duration
	now       func() time.Time
}

// NewService creates a new interview lifecycle service.
func NewService(
	storage interfaces.StorageManager,
	locks *common.KeyedMutex,
	logger *common.Logger,
	config common.QueueConfig,
) *Service {
	return &Service{
		storage:   storage,
		locks:     locks,
		logger:    logger,
		attempts:  uint(config.ConflictRetries) + 1,
		baseDelay: config.GetRetryBaseDelay(),
		now:       time.Now,
	}
}

func (s *Service) withCompany(ctx context.Context, companyID string, fn func() error) error {
	if err := s.locks.Lock(ctx, companyID); err != nil {
		return models.ErrTimeout
	}
	defer s.locks.Unlock(companyID)
	return common.WithConflictRetry(ctx, s.attempts, s.baseDelay, fn)
}

// Start moves the head waiting entry to in_progress and claims the booth.
// A booth conflict that survives every retry means another interview is
// running, which surfaces as models.ErrAlreadyInProgress.
func (s *Service) Start(ctx context.Context, entryID string, operator models.Actor) error {
	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return err
	}

	err = s.withCompany(ctx, entry.CompanyID, func() error {
		return s.startLocked(ctx, entryID, entry.CompanyID, operator, false)
	})
	if errors.Is(err, errBoothBusy) {
		return models.ErrAlreadyInProgress
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Str("company_id", entry.CompanyID).
		Str("operator", operator.ID).
		Msg("Interview started")
	return nil
}

// startLocked performs the start transition. Must run under the company
// lock. bypassHead skips the position-1 precondition for emergency calls.
func (s *Service) startLocked(ctx context.Context, entryID, companyID string, operator models.Actor, bypassHead bool) error {
	company, err := s.storage.CompanyStore().Get(ctx, companyID)
	if err != nil {
		return err
	}
	if !operator.CanOperate(company.Room) {
		return models.ErrUnauthorized
	}

	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != models.StatusWaiting {
		return models.NewIllegalTransition(entryID, entry.Status, "start")
	}
	if !bypassHead && entry.QueuePosition != 1 {
		return models.ErrNotHead
	}

	// U2: the booth claim is the serialization point between racing starts.
	if err := s.storage.CompanyStore().ClaimCurrentEntry(ctx, companyID, entryID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return errBoothBusy
		}
		return err
	}
	if err := s.storage.EntryStore().ClaimInProgress(ctx, entryID, s.now()); err != nil {
		// Release the booth; the entry slipped out of waiting underneath us.
		if clearErr := s.storage.CompanyStore().ClearCurrentEntry(ctx, companyID, entryID); clearErr != nil {
			s.logger.Warn().Err(clearErr).Str("company_id", companyID).Msg("Failed to release booth after aborted start")
		}
		return err
	}

	return s.recomputeLocked(ctx, companyID)
}

// recomputeLocked re-derives dense positions after the head left the
// waiting set. Must run under the company lock. Mirrors the queue engine's
// natural recomputation, including clearing a pending admin-reorder marker.
// The company is re-read so the save cannot clobber the freshly claimed
// booth reference.
func (s *Service) recomputeLocked(ctx context.Context, companyID string) error {
	waiting, err := s.storage.EntryStore().ListWaiting(ctx, companyID)
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
		if err := s.storage.EntryStore().WritePositions(ctx, companyID, positions); err != nil {
			return err
		}
	}

	company, err := s.storage.CompanyStore().Get(ctx, companyID)
	if err != nil {
		return err
	}
	if company.ManualOrder {
		company.ManualOrder = false
		if err := s.storage.CompanyStore().Save(ctx, company); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Complete(ctx context.Context, entryID string, operator models.Actor) error {
	return s.finish(ctx, entryID, operator, models.StatusCompleted, "complete")
}

func (s *Service) Forfeit(ctx context.Context, entryID string, operator models.Actor) error {
	return s.finish(ctx, entryID, operator, models.StatusPassed, "forfeit")
}

func (s *Service) finish(ctx context.Context, entryID string, operator models.Actor, to models.EntryStatus, op string) error {
	entry, err := s.storage.EntryStore().Get(ctx, entryID)
	if err != nil {
		return err
	}

	err = s.withCompany(ctx, entry.CompanyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, entry.CompanyID)
		if err != nil {
			return err
		}
		if !operator.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		current, err := s.storage.EntryStore().Get(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusInProgress {
			return models.NewIllegalTransition(entryID, current.Status, op)
		}

		if err := s.storage.EntryStore().FinishInProgress(ctx, entryID, to, s.now()); err != nil {
			return err
		}
		if err := s.storage.CompanyStore().ClearCurrentEntry(ctx, company.ID, entryID); err != nil && !errors.Is(err, models.ErrConflict) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Str("company_id", entry.CompanyID).
		Str("operator", operator.ID).
		Str("status", string(to)).
		Msg("Interview finished")
	return nil
}

// Next forfeits the current interview, if any, and starts the head waiting
// entry, if any. Both transitions run in one serialized section.
func (s *Service) Next(ctx context.Context, companyID string, operator models.Actor) error {
	var started, forfeited string
	err := s.withCompany(ctx, companyID, func() error {
		started, forfeited = "", ""

		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		if !operator.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		if company.CurrentEntryID != "" {
			if err := s.storage.EntryStore().FinishInProgress(ctx, company.CurrentEntryID, models.StatusPassed, s.now()); err != nil && !errors.Is(err, models.ErrConflict) {
				return err
			}
			if err := s.storage.CompanyStore().ClearCurrentEntry(ctx, companyID, company.CurrentEntryID); err != nil && !errors.Is(err, models.ErrConflict) {
				return err
			}
			forfeited = company.CurrentEntryID
		}

		waiting, err := s.storage.EntryStore().ListWaiting(ctx, companyID)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return nil
		}

		// Position 1 is the head, not the lowest score: an admin reorder
		// makes the two diverge until the next natural recomputation.
		sort.SliceStable(waiting, func(i, j int) bool {
			return waiting[i].QueuePosition < waiting[j].QueuePosition
		})
		head := waiting[0]
		if err := s.storage.CompanyStore().ClaimCurrentEntry(ctx, companyID, head.ID); err != nil {
			return err
		}
		if err := s.storage.EntryStore().ClaimInProgress(ctx, head.ID, s.now()); err != nil {
			if clearErr := s.storage.CompanyStore().ClearCurrentEntry(ctx, companyID, head.ID); clearErr != nil {
				s.logger.Warn().Err(clearErr).Str("company_id", companyID).Msg("Failed to release booth after aborted start")
			}
			return err
		}
		started = head.ID
		return s.recomputeLocked(ctx, companyID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("company_id", companyID).
		Str("operator", operator.ID).
		Str("forfeited", forfeited).
		Str("started", started).
		Msg("Advanced to next interview")
	return nil
}
