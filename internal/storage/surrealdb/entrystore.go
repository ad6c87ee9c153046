package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// entrySelectFields aliases entry_id to id for struct mapping.
const entrySelectFields = "entry_id as id, student_id, company_id, status, queue_position, priority_score, opportunity_kind, joined_at, started_at, completed_at, passed_at, cancelled_at, cancel_reason"

// EntryStore implements interfaces.EntryStore using SurrealDB.
type EntryStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(db *surrealdb.DB, logger *common.Logger) *EntryStore {
	return &EntryStore{db: db, logger: logger}
}

// guardID is the deterministic active-pair guard record id.
func guardID(studentID, companyID string) string {
	return studentID + "_" + companyID
}

// asStoreError maps SurrealDB uniqueness failures onto models.ErrConflict.
func asStoreError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "already exists") || strings.Contains(msg, "already contains") {
		return models.ErrConflict
	}
	return err
}

func (s *EntryStore) Create(ctx context.Context, entry *models.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()[:8]
	}
	if entry.Status == "" {
		entry.Status = models.StatusWaiting
	}
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now()
	}

	// U1 guard and entry commit together. The guard CREATE on the
	// deterministic id fails while the student holds an active entry for
	// this company, which cancels the whole transaction, so a guard can
	// never exist without its entry or the other way around.
	sql := `BEGIN TRANSACTION;
		CREATE $grid SET student_id = $student_id, company_id = $company_id, entry_id = $entry_id;
		CREATE $rid SET
			entry_id = $entry_id, student_id = $student_id, company_id = $company_id,
			status = $status, queue_position = $queue_position, priority_score = $priority_score,
			opportunity_kind = $opportunity_kind, joined_at = $joined_at, started_at = $started_at,
			completed_at = $completed_at, passed_at = $passed_at, cancelled_at = $cancelled_at,
			cancel_reason = $cancel_reason;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"grid":             surrealmodels.NewRecordID("active_guards", guardID(entry.StudentID, entry.CompanyID)),
		"rid":              surrealmodels.NewRecordID("queue_entries", entry.ID),
		"entry_id":         entry.ID,
		"student_id":       entry.StudentID,
		"company_id":       entry.CompanyID,
		"status":           entry.Status,
		"queue_position":   entry.QueuePosition,
		"priority_score":   entry.PriorityScore,
		"opportunity_kind": entry.Kind,
		"joined_at":        entry.JoinedAt,
		"started_at":       entry.StartedAt,
		"completed_at":     entry.CompletedAt,
		"passed_at":        entry.PassedAt,
		"cancelled_at":     entry.CancelledAt,
		"cancel_reason":    entry.CancelReason,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create entry: %w", asStoreError(err))
	}
	return nil
}

func (s *EntryStore) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("queue_entries", id)}

	results, err := surrealdb.Query[[]models.QueueEntry](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select entry: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, models.ErrNotFound
	}
	entry := (*results)[0].Result[0]
	return &entry, nil
}

func (s *EntryStore) ListWaiting(ctx context.Context, companyID string) ([]*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + ` FROM queue_entries
		WHERE company_id = $company_id AND status = $waiting
		ORDER BY priority_score ASC, joined_at ASC, entry_id ASC`
	vars := map[string]any{"company_id": companyID, "waiting": models.StatusWaiting}
	return s.queryEntries(ctx, sql, vars)
}

func (s *EntryStore) ListInProgress(ctx context.Context, companyID string) ([]*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + ` FROM queue_entries
		WHERE company_id = $company_id AND status = $in_progress ORDER BY started_at ASC`
	vars := map[string]any{"company_id": companyID, "in_progress": models.StatusInProgress}
	return s.queryEntries(ctx, sql, vars)
}

func (s *EntryStore) ListActiveByStudent(ctx context.Context, studentID, companyID string) ([]*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + ` FROM queue_entries
		WHERE student_id = $student_id AND status IN [$waiting, $in_progress]`
	vars := map[string]any{
		"student_id":  studentID,
		"waiting":     models.StatusWaiting,
		"in_progress": models.StatusInProgress,
	}
	if companyID != "" {
		sql += " AND company_id = $company_id"
		vars["company_id"] = companyID
	}
	return s.queryEntries(ctx, sql, vars)
}

func (s *EntryStore) ListActive(ctx context.Context) ([]*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + ` FROM queue_entries
		WHERE status IN [$waiting, $in_progress]`
	vars := map[string]any{
		"waiting":     models.StatusWaiting,
		"in_progress": models.StatusInProgress,
	}
	return s.queryEntries(ctx, sql, vars)
}

func (s *EntryStore) ClaimInProgress(ctx context.Context, entryID string, now time.Time) error {
	sql := `UPDATE $rid SET status = $in_progress, started_at = $now
		WHERE status = $waiting RETURN AFTER`
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("queue_entries", entryID),
		"in_progress": models.StatusInProgress,
		"waiting":     models.StatusWaiting,
		"now":         now,
	}
	return s.conditionalUpdate(ctx, entryID, sql, vars)
}

func (s *EntryStore) FinishInProgress(ctx context.Context, entryID string, to models.EntryStatus, now time.Time) error {
	var stamp string
	switch to {
	case models.StatusCompleted:
		stamp = "completed_at"
	case models.StatusPassed:
		stamp = "passed_at"
	default:
		return fmt.Errorf("status %s is not a finish state", to)
	}

	sql := fmt.Sprintf(terminalUpdateSQL, fmt.Sprintf("status = $to, %s = $now", stamp), "status = $in_progress")
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("queue_entries", entryID),
		"entry_id":    entryID,
		"to":          to,
		"in_progress": models.StatusInProgress,
		"now":         now,
	}
	return s.conditionalUpdate(ctx, entryID, sql, vars)
}

// terminalUpdateSQL flips an entry into a terminal status and drops its
// active-pair guard in the same transaction, so the guard is released
// exactly when the transition commits. The trailing RETURN makes the
// transaction yield only the updated rows.
const terminalUpdateSQL = `BEGIN TRANSACTION;
	LET $updated = (UPDATE $rid SET %s WHERE %s RETURN AFTER);
	DELETE active_guards WHERE entry_id = $entry_id AND array::len($updated) > 0;
	RETURN $updated;
	COMMIT TRANSACTION;`

func (s *EntryStore) CancelWaiting(ctx context.Context, entryID, reason string, now time.Time) error {
	sql := fmt.Sprintf(terminalUpdateSQL,
		"status = $cancelled, cancelled_at = $now, cancel_reason = $reason",
		"status = $waiting")
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID("queue_entries", entryID),
		"entry_id":  entryID,
		"cancelled": models.StatusCancelled,
		"waiting":   models.StatusWaiting,
		"now":       now,
		"reason":    reason,
	}
	return s.conditionalUpdate(ctx, entryID, sql, vars)
}

func (s *EntryStore) UpdateWaiting(ctx context.Context, entryID string, score int, joinedAt time.Time) error {
	sql := `UPDATE $rid SET priority_score = $score, joined_at = $joined_at
		WHERE status = $waiting RETURN AFTER`
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID("queue_entries", entryID),
		"score":     score,
		"joined_at": joinedAt,
		"waiting":   models.StatusWaiting,
	}
	return s.conditionalUpdate(ctx, entryID, sql, vars)
}

func (s *EntryStore) WritePositions(ctx context.Context, companyID string, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}

	// One multi-statement transaction so the batch applies atomically.
	var b strings.Builder
	b.WriteString("BEGIN TRANSACTION;\n")
	vars := map[string]any{
		"company_id": companyID,
		"waiting":    models.StatusWaiting,
	}
	i := 0
	for id, pos := range positions {
		ridKey := fmt.Sprintf("rid_%d", i)
		posKey := fmt.Sprintf("pos_%d", i)
		fmt.Fprintf(&b, "UPDATE $%s SET queue_position = $%s WHERE company_id = $company_id AND status = $waiting;\n", ridKey, posKey)
		vars[ridKey] = surrealmodels.NewRecordID("queue_entries", id)
		vars[posKey] = pos
		i++
	}
	b.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, s.db, b.String(), vars); err != nil {
		return fmt.Errorf("failed to write positions: %w", asStoreError(err))
	}
	return nil
}

func (s *EntryStore) CancelEntry(ctx context.Context, entryID, reason string, now time.Time) error {
	sql := fmt.Sprintf(terminalUpdateSQL,
		"status = $cancelled, cancelled_at = $now, cancel_reason = $reason",
		"status IN [$waiting, $in_progress]")
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("queue_entries", entryID),
		"entry_id":    entryID,
		"cancelled":   models.StatusCancelled,
		"waiting":     models.StatusWaiting,
		"in_progress": models.StatusInProgress,
		"now":         now,
		"reason":      reason,
	}
	return s.conditionalUpdate(ctx, entryID, sql, vars)
}

// conditionalUpdate runs a guarded UPDATE and maps an empty result onto
// NotFound (no such entry) or Conflict (entry exists, guard failed).
func (s *EntryStore) conditionalUpdate(ctx context.Context, entryID, sql string, vars map[string]any) error {
	results, err := surrealdb.Query[[]models.QueueEntry](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", asStoreError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if _, gerr := s.Get(ctx, entryID); gerr != nil {
			return gerr
		}
		return models.ErrConflict
	}
	return nil
}

// queryEntries runs a query and returns a slice of entry pointers.
func (s *EntryStore) queryEntries(ctx context.Context, sql string, vars map[string]any) ([]*models.QueueEntry, error) {
	results, err := surrealdb.Query[[]models.QueueEntry](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}

	var entries []*models.QueueEntry
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			entries = append(entries, &(*results)[0].Result[i])
		}
	}
	return entries, nil
}

// Compile-time check
var _ interfaces.EntryStore = (*EntryStore)(nil)
