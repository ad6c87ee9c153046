package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/forumdesk/foyer/internal/services/queue"
	"github.com/forumdesk/foyer/internal/storage/memory"
)

type fixture struct {
	svc      *Service
	queueSvc *queue.Service
	store    *memory.Manager
	operator models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewManager(common.NewSilentLogger())
	locks := common.NewKeyedMutex()
	logger := common.NewSilentLogger()
	cfg := common.QueueConfig{ConflictRetries: 3, RetryBaseDelay: "1ms"}

	resolver := queue.CategoryFunc(func(_ context.Context, _ string) (models.StudentCategory, error) {
		return models.CategoryExternal, nil
	})

	return &fixture{
		svc:      NewService(store, locks, logger, cfg),
		queueSvc: queue.NewService(store, resolver, locks, logger, cfg),
		store:    store,
		operator: models.Actor{ID: "op-1", Role: models.RoleOperator, Room: "room-acme"},
	}
}

func (f *fixture) addCompany(t *testing.T, id string) *models.Company {
	t.Helper()
	company := &models.Company{
		ID:             id,
		Name:           "Company " + id,
		Room:           "room-" + id,
		EstDurationMin: 15,
		Active:         true,
	}
	require.NoError(t, f.store.CompanyStore().Create(context.Background(), company))
	return company
}

func (f *fixture) join(t *testing.T, studentID, companyID string) *models.QueueEntry {
	t.Helper()
	entry, err := f.queueSvc.Join(context.Background(), studentID, companyID, models.KindInternshipShort)
	require.NoError(t, err)
	return entry
}

func TestStart_HeadEntry(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	head := f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")

	require.NoError(t, f.svc.Start(ctx, head.ID, f.operator))

	started, err := f.store.EntryStore().Get(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.False(t, started.StartedAt.IsZero())

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, head.ID, company.CurrentEntryID)

	// The remaining waiting entry moved up to position 1.
	remaining, err := f.store.EntryStore().Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining.QueuePosition)
}

func TestStart_NonHeadRefused(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")

	err := f.svc.Start(ctx, second.ID, f.operator)
	assert.ErrorIs(t, err, models.ErrNotHead)
}

func TestStart_Authorization(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	head := f.join(t, "student-1", "acme")

	err := f.svc.Start(ctx, head.ID, models.Actor{ID: "op-2", Role: models.RoleOperator, Room: "room-globex"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	err = f.svc.Start(ctx, head.ID, models.Actor{ID: "student-1", Role: models.RoleStudent})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// Admins operate in any room.
	err = f.svc.Start(ctx, head.ID, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestStart_BoothBusy(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	first := f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")

	require.NoError(t, f.svc.Start(ctx, first.ID, f.operator))

	err := f.svc.Start(ctx, second.ID, f.operator)
	assert.ErrorIs(t, err, models.ErrAlreadyInProgress)
}

func TestStart_WrongState(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	entry := f.join(t, "student-1", "acme")
	require.NoError(t, f.svc.Start(ctx, entry.ID, f.operator))

	err := f.svc.Start(ctx, entry.ID, f.operator)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	err = f.svc.Start(ctx, "missing", f.operator)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	entry := f.join(t, "student-1", "acme")
	require.NoError(t, f.svc.Start(ctx, entry.ID, f.operator))
	require.NoError(t, f.svc.Complete(ctx, entry.ID, f.operator))

	done, err := f.store.EntryStore().Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.False(t, done.CompletedAt.IsZero())

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, company.CurrentEntryID)
}

func TestComplete_RequiresInProgress(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	entry := f.join(t, "student-1", "acme")

	err := f.svc.Complete(ctx, entry.ID, f.operator)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestForfeit(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	entry := f.join(t, "student-1", "acme")
	require.NoError(t, f.svc.Start(ctx, entry.ID, f.operator))
	require.NoError(t, f.svc.Forfeit(ctx, entry.ID, f.operator))

	passed, err := f.store.EntryStore().Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, passed.Status)
	assert.False(t, passed.PassedAt.IsZero())

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, company.CurrentEntryID)
}

func TestForfeit_FreesBoothForNextStart(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	first := f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")

	require.NoError(t, f.svc.Start(ctx, first.ID, f.operator))
	require.NoError(t, f.svc.Forfeit(ctx, first.ID, f.operator))
	require.NoError(t, f.svc.Start(ctx, second.ID, f.operator))

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, second.ID, company.CurrentEntryID)
}

func TestNext_ForfeitsCurrentAndStartsHead(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	first := f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")
	require.NoError(t, f.svc.Start(ctx, first.ID, f.operator))

	require.NoError(t, f.svc.Next(ctx, "acme", f.operator))

	forfeited, err := f.store.EntryStore().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, forfeited.Status)

	started, err := f.store.EntryStore().Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, second.ID, company.CurrentEntryID)
}

// An admin reorder makes position order diverge from score order; next
// must start the entry holding position 1, not the lowest score.
func TestNext_AfterAdminReorder(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	first := f.join(t, "student-1", "acme")
	second := f.join(t, "student-2", "acme")

	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	require.NoError(t, f.queueSvc.Reorder(ctx, "acme", second.ID, 1, admin))

	require.NoError(t, f.svc.Next(ctx, "acme", f.operator))

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, second.ID, company.CurrentEntryID)

	started, err := f.store.EntryStore().Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)

	bystander, err := f.store.EntryStore().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, bystander.Status)
	assert.Equal(t, 1, bystander.QueuePosition)
}

func TestNext_EmptyQueue(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	entry := f.join(t, "student-1", "acme")
	require.NoError(t, f.svc.Start(ctx, entry.ID, f.operator))

	// Forfeits the current interview even with nobody waiting.
	require.NoError(t, f.svc.Next(ctx, "acme", f.operator))

	company, err := f.store.CompanyStore().Get(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, company.CurrentEntryID)

	// Fully idle booth: next is a no-op.
	require.NoError(t, f.svc.Next(ctx, "acme", f.operator))
}

func TestNext_Authorization(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")

	err := f.svc.Next(context.Background(), "acme", models.Actor{ID: "op-2", Role: models.RoleOperator, Room: "room-globex"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

// Drains a three-deep queue through start/complete and verifies service
// order follows queue order.
func TestLifecycle_DrainQueue(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f.join(t, fmt.Sprintf("student-%d", i), "acme")
	}

	var served []string
	for i := 0; i < 3; i++ {
		snapshot, err := f.queueSvc.Snapshot(ctx, "acme")
		require.NoError(t, err)
		require.NotEmpty(t, snapshot.Waiting)

		head := snapshot.Waiting[0]
		require.NoError(t, f.svc.Start(ctx, head.ID, f.operator))
		require.NoError(t, f.svc.Complete(ctx, head.ID, f.operator))
		served = append(served, head.StudentID)
	}

	assert.Equal(t, []string{"student-1", "student-2", "student-3"}, served)

	snapshot, err := f.queueSvc.Snapshot(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, snapshot.Waiting)
	assert.Nil(t, snapshot.InProgress)
}

// stuckEntryStore fails every entry claim with a conflict, simulating a
// store that keeps losing the conditional update.
type stuckEntryStore struct {
	interfaces.EntryStore
}

func (s stuckEntryStore) ClaimInProgress(_ context.Context, _ string, _ time.Time) error {
	return models.ErrConflict
}

type stuckStore struct {
	interfaces.StorageManager
}

func (s stuckStore) EntryStore() interfaces.EntryStore {
	return stuckEntryStore{s.StorageManager.EntryStore()}
}

// A conflict exhausted on the entry flip is a store problem, not booth
// contention; it must not be reported as AlreadyInProgress.
func TestStart_ExhaustedEntryConflictStaysTransient(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	head := f.join(t, "student-1", "acme")

	svc := NewService(stuckStore{f.store}, common.NewKeyedMutex(), common.NewSilentLogger(), common.QueueConfig{
		ConflictRetries: 2,
		RetryBaseDelay:  "1ms",
	})
	err := svc.Start(ctx, head.ID, f.operator)
	assert.ErrorIs(t, err, models.ErrTransientStore)
	assert.NotErrorIs(t, err, models.ErrAlreadyInProgress)
}

// Two operators race to start the same head entry; exactly one wins.
func TestConcurrentStart_OneWinner(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "acme")
	ctx := context.Background()

	head := f.join(t, "student-1", "acme")
	f.join(t, "student-2", "acme")

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Start(ctx, head.ID, f.operator)
		}()
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		if !errors.Is(err, models.ErrIllegalTransition) && !errors.Is(err, models.ErrAlreadyInProgress) {
			t.Errorf("unexpected error from losing start: %v", err)
		}
	}
	assert.Equal(t, 1, won)

	inProgress, err := f.store.EntryStore().ListInProgress(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, inProgress, 1)
}
