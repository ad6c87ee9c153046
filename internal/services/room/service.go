// Package room is the per-company operator control surface: pause/resume,
// emergency handling, and queue clearing. It is the only writer of the
// company flag fields.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
)

// Compile-time interface check
var _ interfaces.RoomService = (*Service)(nil)

// Service implements RoomService. It shares the engine's keyed mutex so
// flag writes and queue mutations of one company never interleave.
type Service struct {
	storage interfaces.StorageManager
	locks   *common.KeyedMutex
	logger  *common.Logger

	attempts  uint
	baseDelay time.Duration
	now       func() time.Time
}

// NewService creates a new room controller.
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

// Pause marks the queue paused. Joins still succeed but carry the
// paused-join penalty; the flag is advisory, not exclusionary.
func (s *Service) Pause(ctx context.Context, companyID string, operator models.Actor) error {
	return s.setPaused(ctx, companyID, operator, true)
}

// Resume clears the paused flag. It also clears emergency mode: resuming
// restores normal booth operation.
func (s *Service) Resume(ctx context.Context, companyID string, operator models.Actor) error {
	return s.setPaused(ctx, companyID, operator, false)
}

func (s *Service) setPaused(ctx context.Context, companyID string, operator models.Actor, paused bool) error {
	err := s.withCompany(ctx, companyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		if !operator.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		company.QueuePaused = paused
		if !paused {
			company.EmergencyMode = false
		}
		return s.storage.CompanyStore().Save(ctx, company)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("company_id", companyID).
		Str("operator", operator.ID).
		Bool("paused", paused).
		Msg("Queue pause flag updated")
	return nil
}

// EmergencyMode flags the booth as disrupted and forfeits the current
// interview so the room can be freed instantly. No replacement is started.
func (s *Service) EmergencyMode(ctx context.Context, companyID string, operator models.Actor) error {
	err := s.withCompany(ctx, companyID, func() error {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		if !operator.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		if err := s.forfeitCurrent(ctx, company); err != nil {
			return err
		}

		company.EmergencyMode = true
		company.CurrentEntryID = ""
		return s.storage.CompanyStore().Save(ctx, company)
	})
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("company_id", companyID).
		Str("operator", operator.ID).
		Msg("Emergency mode engaged")
	return nil
}

// EmergencyCall forfeits the current interview, if any, and starts the
// given entry regardless of its position. The entry's score is zeroed so a
// later recompute keeps it sensible if it ever returns to waiting.
func (s *Service) EmergencyCall(ctx context.Context, companyID, entryID string, operator models.Actor) error {
	err := s.withCompany(ctx, companyID, func() error {
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
		if entry.CompanyID != companyID {
			return models.ErrNotFound
		}
		if entry.Status != models.StatusWaiting {
			return models.NewIllegalTransition(entryID, entry.Status, "emergency call")
		}

		if err := s.forfeitCurrent(ctx, company); err != nil {
			return err
		}

		if err := s.storage.EntryStore().UpdateWaiting(ctx, entryID, 0, entry.JoinedAt); err != nil {
			return err
		}
		if err := s.storage.CompanyStore().ClaimCurrentEntry(ctx, companyID, entryID); err != nil {
			return err
		}
		if err := s.storage.EntryStore().ClaimInProgress(ctx, entryID, s.now()); err != nil {
			if clearErr := s.storage.CompanyStore().ClearCurrentEntry(ctx, companyID, entryID); clearErr != nil {
				s.logger.Warn().Err(clearErr).Str("company_id", companyID).Msg("Failed to release booth after aborted emergency call")
			}
			return err
		}
		return s.recomputeLocked(ctx, companyID)
	})
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("company_id", companyID).
		Str("entry_id", entryID).
		Str("operator", operator.ID).
		Msg("Emergency call started interview out of order")
	return nil
}

// ClearQueue cancels every waiting entry, returning the count. The
// in-progress entry, if any, is untouched.
func (s *Service) ClearQueue(ctx context.Context, companyID string, operator models.Actor) (int, error) {
	cleared := 0
	err := s.withCompany(ctx, companyID, func() error {
		cleared = 0

		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return err
		}
		if !operator.CanOperate(company.Room) {
			return models.ErrUnauthorized
		}

		waiting, err := s.storage.EntryStore().ListWaiting(ctx, companyID)
		if err != nil {
			return err
		}
		for _, e := range waiting {
			if err := s.storage.EntryStore().CancelWaiting(ctx, e.ID, "queue cleared by operator", s.now()); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("company_id", companyID).
		Str("operator", operator.ID).
		Int("cleared", cleared).
		Msg("Queue cleared")
	return cleared, nil
}

// forfeitCurrent finishes the booth's in-progress entry as passed and
// releases the booth. A no-op when the booth is idle.
func (s *Service) forfeitCurrent(ctx context.Context, company *models.Company) error {
	if company.CurrentEntryID == "" {
		return nil
	}
	if err := s.storage.EntryStore().FinishInProgress(ctx, company.CurrentEntryID, models.StatusPassed, s.now()); err != nil && !errors.Is(err, models.ErrConflict) {
		return err
	}
	if err := s.storage.CompanyStore().ClearCurrentEntry(ctx, company.ID, company.CurrentEntryID); err != nil && !errors.Is(err, models.ErrConflict) {
		return err
	}
	company.CurrentEntryID = ""
	return nil
}

// recomputeLocked re-derives dense positions after an entry left the
// waiting set. Must run under the company lock.
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
	if len(positions) == 0 {
		return nil
	}
	return s.storage.EntryStore().WritePositions(ctx, companyID, positions)
}
