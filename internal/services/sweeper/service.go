// Package sweeper detects and repairs queue drift: U1/U2 violations,
// broken position density, score/position disagreement, and orphaned
// entries. It is a safety net — every invariant it checks is already
// enforced per committed operation by the engine.
package sweeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
)

// Compile-time interface check
var _ interfaces.SweeperService = (*Service)(nil)

// Service implements SweeperService. Repairs run under the same keyed
// mutex as the engine and are paced by a rate limiter so a sweep cannot
// monopolize the store.
type Service struct {
	storage interfaces.StorageManager
	locks   *common.KeyedMutex
	logger  *common.Logger

	interval time.Duration
	limiter  *rate.Limiter
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new consistency sweeper.
func NewService(
	storage interfaces.StorageManager,
	locks *common.KeyedMutex,
	logger *common.Logger,
	config common.SweeperConfig,
) *Service {
	rps := config.RepairsPerSec
	if rps <= 0 {
		rps = 20
	}
	return &Service{
		storage:  storage,
		locks:    locks,
		logger:   logger,
		interval: config.GetInterval(),
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		now:      time.Now,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start() {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("Sweep loop panicked")
			}
		}()
		s.run(ctx)
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("Consistency sweeper started")
}

// Stop cancels the sweep loop and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info().Msg("Consistency sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx, "")
			if err != nil {
				s.logger.Warn().Err(err).Msg("Sweep failed")
				continue
			}
			if !report.Clean() {
				s.logger.Info().
					Int("repairs", len(report.Repairs)).
					Int("warnings", len(report.Warnings)).
					Msg("Sweep repaired drift")
			}
		}
	}
}

// Sweep validates and repairs one company, or every known company when
// companyID is empty. Orphaned entries (whose company no longer exists)
// are only detectable in the full sweep.
func (s *Service) Sweep(ctx context.Context, companyID string) (*models.SweepReport, error) {
	report := &models.SweepReport{StartedAt: s.now()}

	var companies []*models.Company
	if companyID != "" {
		company, err := s.storage.CompanyStore().Get(ctx, companyID)
		if err != nil {
			return nil, err
		}
		companies = []*models.Company{company}
	} else {
		all, err := s.storage.CompanyStore().List(ctx, false)
		if err != nil {
			return nil, err
		}
		companies = all
	}
	report.Companies = len(companies)

	active, err := s.storage.EntryStore().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byCompany := lo.GroupBy(active, func(e *models.QueueEntry) string { return e.CompanyID })

	for _, company := range companies {
		entries := byCompany[company.ID]
		report.Checked += len(entries)
		if err := s.sweepCompany(ctx, report, company, entries); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Warnings = append(report.Warnings, fmt.Sprintf("company %s: %v", company.ID, err))
		}
	}

	if companyID == "" {
		s.sweepOrphans(ctx, report, companies, byCompany)
	}

	report.FinishedAt = s.now()
	return report, nil
}

func (s *Service) sweepCompany(ctx context.Context, report *models.SweepReport, company *models.Company, entries []*models.QueueEntry) error {
	if err := s.locks.Lock(ctx, company.ID); err != nil {
		return models.ErrTimeout
	}
	defer s.locks.Unlock(company.ID)

	inProgress := lo.Filter(entries, func(e *models.QueueEntry, _ int) bool {
		return e.Status == models.StatusInProgress
	})

	// U2: at most one interview in progress. Keep the earliest start.
	if len(inProgress) > 1 {
		sort.Slice(inProgress, func(i, j int) bool {
			return startedAt(inProgress[i]).Before(startedAt(inProgress[j]))
		})
		extras := inProgress[1:]
		s.repair(ctx, report, models.SweepRepair{
			CompanyID: company.ID,
			Kind:      models.RepairDuplicateInProgress,
			EntryIDs:  lo.Map(extras, func(e *models.QueueEntry, _ int) string { return e.ID }),
			Detail:    fmt.Sprintf("kept %s", inProgress[0].ID),
		}, func() error {
			for _, e := range extras {
				if err := s.storage.EntryStore().FinishInProgress(ctx, e.ID, models.StatusPassed, s.now()); err != nil {
					return err
				}
			}
			return nil
		})
		inProgress = inProgress[:1]
	}

	// The booth reference must point at the surviving in-progress entry.
	s.checkCurrentEntry(ctx, report, company, inProgress)

	// U1: one active entry per (student, company). Keep the earliest join.
	byStudent := lo.GroupBy(entries, func(e *models.QueueEntry) string { return e.StudentID })
	for _, group := range byStudent {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].JoinedAt.Before(group[j].JoinedAt) })
		extras := group[1:]
		s.repair(ctx, report, models.SweepRepair{
			CompanyID: company.ID,
			Kind:      models.RepairDuplicateActive,
			EntryIDs:  lo.Map(extras, func(e *models.QueueEntry, _ int) string { return e.ID }),
			Detail:    fmt.Sprintf("student %s, kept %s", group[0].StudentID, group[0].ID),
		}, func() error {
			for _, e := range extras {
				if err := s.storage.EntryStore().CancelEntry(ctx, e.ID, "duplicate active entry", s.now()); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return s.checkPositions(ctx, report, company)
}

// checkCurrentEntry repairs a booth reference that disagrees with the
// in-progress set: stale (pointing at a finished or missing entry) or
// dropped (empty while an interview runs).
func (s *Service) checkCurrentEntry(ctx context.Context, report *models.SweepReport, company *models.Company, inProgress []*models.QueueEntry) {
	want := ""
	if len(inProgress) == 1 {
		want = inProgress[0].ID
	}
	if company.CurrentEntryID == want {
		return
	}

	stale := company.CurrentEntryID
	s.repair(ctx, report, models.SweepRepair{
		CompanyID: company.ID,
		Kind:      models.RepairStaleCurrentEntry,
		Detail:    fmt.Sprintf("current %q, want %q", stale, want),
	}, func() error {
		fresh, err := s.storage.CompanyStore().Get(ctx, company.ID)
		if err != nil {
			return err
		}
		fresh.CurrentEntryID = want
		if err := s.storage.CompanyStore().Save(ctx, fresh); err != nil {
			return err
		}
		company.CurrentEntryID = want
		return nil
	})
}

// checkPositions verifies density (I3) and, unless an admin reorder is
// pending, score/position agreement (I5). Repairs rewrite positions.
func (s *Service) checkPositions(ctx context.Context, report *models.SweepReport, company *models.Company) error {
	waiting, err := s.storage.EntryStore().ListWaiting(ctx, company.ID)
	if err != nil {
		return err
	}
	if len(waiting) == 0 {
		return nil
	}

	ordered := waiting
	kind := models.RepairOrderDrift
	if company.ManualOrder {
		// An admin reorder is intentional drift; only repair density, and
		// preserve the displayed order while doing so.
		ordered = append([]*models.QueueEntry{}, waiting...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].QueuePosition < ordered[j].QueuePosition
		})
		kind = models.RepairPositionDensity
	}

	positions := make(map[string]int)
	for i, e := range ordered {
		if e.QueuePosition != i+1 {
			positions[e.ID] = i + 1
		}
	}
	if len(positions) == 0 {
		return nil
	}

	s.repair(ctx, report, models.SweepRepair{
		CompanyID: company.ID,
		Kind:      kind,
		EntryIDs:  lo.Keys(positions),
		Detail:    fmt.Sprintf("%d of %d positions rewritten", len(positions), len(ordered)),
	}, func() error {
		return s.storage.EntryStore().WritePositions(ctx, company.ID, positions)
	})
	return nil
}

// sweepOrphans cancels active entries whose company no longer exists.
func (s *Service) sweepOrphans(ctx context.Context, report *models.SweepReport, companies []*models.Company, byCompany map[string][]*models.QueueEntry) {
	known := lo.SliceToMap(companies, func(c *models.Company) (string, struct{}) { return c.ID, struct{}{} })

	for companyID, entries := range byCompany {
		if _, ok := known[companyID]; ok {
			continue
		}
		s.repair(ctx, report, models.SweepRepair{
			CompanyID: companyID,
			Kind:      models.RepairOrphanedEntries,
			EntryIDs:  lo.Map(entries, func(e *models.QueueEntry, _ int) string { return e.ID }),
		}, func() error {
			for _, e := range entries {
				if err := s.storage.EntryStore().CancelEntry(ctx, e.ID, "company no longer exists", s.now()); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// repair applies one rate-limited mutation set, retrying once. A repair
// that fails twice becomes a warning; the sweep continues.
func (s *Service) repair(ctx context.Context, report *models.SweepReport, record models.SweepRepair, fn func() error) {
	if err := s.limiter.Wait(ctx); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s/%s: %v", record.CompanyID, record.Kind, err))
		return
	}

	err := fn()
	if err != nil {
		err = fn()
	}
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s/%s: %v", record.CompanyID, record.Kind, err))
		s.logger.Warn().
			Err(err).
			Str("company_id", record.CompanyID).
			Str("kind", string(record.Kind)).
			Msg("Sweep repair failed")
		return
	}

	report.Repairs = append(report.Repairs, record)
	s.logger.Info().
		Str("company_id", record.CompanyID).
		Str("kind", string(record.Kind)).
		Strs("entry_ids", record.EntryIDs).
		Msg("Sweep repair applied")
}

func startedAt(e *models.QueueEntry) time.Time {
	if !e.StartedAt.IsZero() {
		return e.StartedAt
	}
	return e.JoinedAt
}
