package surrealdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forumdesk/foyer/internal/models"
	surreal "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// guardExists reports whether the active-pair guard record is present.
func guardExists(t *testing.T, db *surreal.DB, studentID, companyID string) bool {
	t.Helper()
	results, err := surreal.Query[[]map[string]any](context.Background(), db,
		"SELECT * FROM $grid",
		map[string]any{"grid": surrealmodels.NewRecordID("active_guards", guardID(studentID, companyID))})
	if err != nil {
		t.Fatalf("query guard: %v", err)
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0
}

func seedCompany(t *testing.T, store *CompanyStore) *models.Company {
	t.Helper()
	c := &models.Company{Name: "Acme", Room: "R1", EstDurationMin: 15, Active: true}
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("create company: %v", err)
	}
	return c
}

func TestEntryStore_CreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)

	entry := &models.QueueEntry{
		StudentID:     "s1",
		CompanyID:     c.ID,
		Kind:          models.KindInternshipLong,
		PriorityScore: 100,
	}
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected entry ID to be set after create")
	}
	if entry.Status != models.StatusWaiting {
		t.Errorf("expected status waiting, got %s", entry.Status)
	}

	got, err := store.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.StudentID != "s1" || got.CompanyID != c.ID {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestEntryStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestEntryStore_Create_ActiveGuardConflict(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)

	first := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict for duplicate active pair, got %v", err)
	}

	// Terminal transition releases the guard.
	if err := store.CancelWaiting(ctx, first.ID, "changed my mind", time.Now()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	retry := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, retry); err != nil {
		t.Errorf("expected create after cancel to succeed, got %v", err)
	}
}

func TestEntryStore_ListWaiting_Ordering(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	base := time.Now().UTC().Truncate(time.Millisecond)

	store.Create(ctx, &models.QueueEntry{StudentID: "ext", CompanyID: c.ID, Kind: models.KindInternshipLong, PriorityScore: 200, JoinedAt: base})
	store.Create(ctx, &models.QueueEntry{StudentID: "int-late", CompanyID: c.ID, Kind: models.KindInternshipLong, PriorityScore: 100, JoinedAt: base.Add(time.Second)})
	store.Create(ctx, &models.QueueEntry{StudentID: "int-early", CompanyID: c.ID, Kind: models.KindInternshipLong, PriorityScore: 100, JoinedAt: base})

	got, err := store.ListWaiting(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 waiting entries, got %d", len(got))
	}
	if got[0].StudentID != "int-early" || got[1].StudentID != "int-late" || got[2].StudentID != "ext" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].StudentID, got[1].StudentID, got[2].StudentID)
	}
}

func TestEntryStore_ClaimInProgress_Conditional(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	entry := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindObservation}
	store.Create(ctx, entry)

	if err := store.ClaimInProgress(ctx, entry.ID, time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, _ := store.Get(ctx, entry.ID)
	if got.Status != models.StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}
	if got.StartedAt.IsZero() {
		t.Error("expected started_at to be stamped")
	}

	// The entry left waiting, so a second claim conflicts.
	if err := store.ClaimInProgress(ctx, entry.ID, time.Now()); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict on second claim, got %v", err)
	}
}

func TestEntryStore_FinishInProgress(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	entry := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	store.Create(ctx, entry)
	store.ClaimInProgress(ctx, entry.ID, time.Now())

	if err := store.FinishInProgress(ctx, entry.ID, models.StatusPassed, time.Now()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, _ := store.Get(ctx, entry.ID)
	if got.Status != models.StatusPassed {
		t.Errorf("expected passed, got %s", got.Status)
	}
	if got.PassedAt.IsZero() {
		t.Error("expected passed_at to be stamped")
	}

	// Guard released: the student can join this company again.
	again := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, again); err != nil {
		t.Errorf("expected rejoin after passed to succeed, got %v", err)
	}
}

func TestEntryStore_CancelEntry_InProgressReleasesGuard(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	entry := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	store.Create(ctx, entry)
	store.ClaimInProgress(ctx, entry.ID, time.Now())

	if err := store.CancelEntry(ctx, entry.ID, "left the forum", time.Now()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if guardExists(t, db, "s1", c.ID) {
		t.Error("expected guard to be dropped with the cancel")
	}

	again := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, again); err != nil {
		t.Errorf("expected rejoin after cancel to succeed, got %v", err)
	}
}

func TestEntryStore_RefusedTransitionKeepsGuard(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	entry := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	store.Create(ctx, entry)
	store.ClaimInProgress(ctx, entry.ID, time.Now())

	// The entry is no longer waiting, so the transition is refused and
	// the guard must stay with it.
	if err := store.CancelWaiting(ctx, entry.ID, "too late", time.Now()); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !guardExists(t, db, "s1", c.ID) {
		t.Error("expected guard to survive a refused transition")
	}

	dup := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment}
	if err := store.Create(ctx, dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected duplicate pair to stay blocked, got %v", err)
	}
}

func TestEntryStore_WritePositions(t *testing.T) {
	db := testDB(t)
	store := NewEntryStore(db, testLogger())
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	e1 := &models.QueueEntry{StudentID: "s1", CompanyID: c.ID, Kind: models.KindEmployment, PriorityScore: 100}
	e2 := &models.QueueEntry{StudentID: "s2", CompanyID: c.ID, Kind: models.KindEmployment, PriorityScore: 200}
	store.Create(ctx, e1)
	store.Create(ctx, e2)

	if err := store.WritePositions(ctx, c.ID, map[string]int{e1.ID: 1, e2.ID: 2}); err != nil {
		t.Fatalf("WritePositions: %v", err)
	}

	got, _ := store.Get(ctx, e2.ID)
	if got.QueuePosition != 2 {
		t.Errorf("expected position 2, got %d", got.QueuePosition)
	}
}

func TestCompanyStore_ClaimCurrentEntry(t *testing.T) {
	db := testDB(t)
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)

	if err := companies.ClaimCurrentEntry(ctx, c.ID, "e1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := companies.ClaimCurrentEntry(ctx, c.ID, "e2"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict while booth is held, got %v", err)
	}
	if err := companies.ClearCurrentEntry(ctx, c.ID, "e1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := companies.ClaimCurrentEntry(ctx, c.ID, "e2"); err != nil {
		t.Errorf("claim after clear should succeed, got %v", err)
	}
}

func TestCompanyStore_SaveAndList(t *testing.T) {
	db := testDB(t)
	companies := NewCompanyStore(db, testLogger())
	ctx := context.Background()

	c := seedCompany(t, companies)
	c.QueuePaused = true
	if err := companies.Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := companies.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.QueuePaused {
		t.Error("expected queue_paused after save")
	}

	inactive := &models.Company{Name: "Bygone", Room: "R2", EstDurationMin: 20, Active: false}
	if err := companies.Create(ctx, inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	all, _ := companies.List(ctx, false)
	if len(all) != 2 {
		t.Errorf("expected 2 companies, got %d", len(all))
	}
	active, _ := companies.List(ctx, true)
	if len(active) != 1 || active[0].ID != c.ID {
		t.Errorf("expected only the active company, got %d", len(active))
	}
}
