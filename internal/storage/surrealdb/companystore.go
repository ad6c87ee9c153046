package surrealdb

import (
	"context"
	"fmt"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// companySelectFields aliases company_id to id for struct mapping.
const companySelectFields = "company_id as id, name, room, est_duration_min, active, queue_paused, emergency_mode, manual_order, current_entry_id"

// CompanyStore implements interfaces.CompanyStore using SurrealDB.
type CompanyStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewCompanyStore creates a new CompanyStore.
func NewCompanyStore(db *surrealdb.DB, logger *common.Logger) *CompanyStore {
	return &CompanyStore{db: db, logger: logger}
}

func companyVars(c *models.Company) map[string]any {
	return map[string]any{
		"rid":              surrealmodels.NewRecordID("companies", c.ID),
		"company_id":       c.ID,
		"name":             c.Name,
		"room":             c.Room,
		"est_duration_min": c.EstDurationMin,
		"active":           c.Active,
		"queue_paused":     c.QueuePaused,
		"emergency_mode":   c.EmergencyMode,
		"manual_order":     c.ManualOrder,
		"current_entry_id": c.CurrentEntryID,
	}
}

const companySetClause = `company_id = $company_id, name = $name, room = $room,
	est_duration_min = $est_duration_min, active = $active, queue_paused = $queue_paused,
	emergency_mode = $emergency_mode, manual_order = $manual_order, current_entry_id = $current_entry_id`

func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		company.ID = uuid.New().String()[:8]
	}

	sql := "CREATE $rid SET " + companySetClause
	if _, err := surrealdb.Query[any](ctx, s.db, sql, companyVars(company)); err != nil {
		return fmt.Errorf("failed to create company: %w", asStoreError(err))
	}
	return nil
}

func (s *CompanyStore) Get(ctx context.Context, id string) (*models.Company, error) {
	sql := "SELECT " + companySelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("companies", id)}

	results, err := surrealdb.Query[[]models.Company](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select company: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, models.ErrNotFound
	}
	company := (*results)[0].Result[0]
	return &company, nil
}

func (s *CompanyStore) Save(ctx context.Context, company *models.Company) error {
	sql := "UPDATE $rid SET " + companySetClause + " RETURN AFTER"
	results, err := surrealdb.Query[[]models.Company](ctx, s.db, sql, companyVars(company))
	if err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *CompanyStore) List(ctx context.Context, activeOnly bool) ([]*models.Company, error) {
	sql := "SELECT " + companySelectFields + " FROM companies ORDER BY name ASC"
	if activeOnly {
		sql = "SELECT " + companySelectFields + " FROM companies WHERE active = true ORDER BY name ASC"
	}

	results, err := surrealdb.Query[[]models.Company](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	var companies []*models.Company
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			companies = append(companies, &(*results)[0].Result[i])
		}
	}
	return companies, nil
}

func (s *CompanyStore) ClaimCurrentEntry(ctx context.Context, companyID, entryID string) error {
	// Conditional update: only a free booth (or the same holder) accepts
	// the claim. Zero rows back means another entry holds it.
	sql := `UPDATE $rid SET current_entry_id = $entry_id
		WHERE current_entry_id = '' OR current_entry_id = $entry_id RETURN AFTER`
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("companies", companyID),
		"entry_id": entryID,
	}

	results, err := surrealdb.Query[[]models.Company](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to claim booth: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if _, gerr := s.Get(ctx, companyID); gerr != nil {
			return gerr
		}
		return models.ErrConflict
	}
	return nil
}

func (s *CompanyStore) ClearCurrentEntry(ctx context.Context, companyID, entryID string) error {
	sql := `UPDATE $rid SET current_entry_id = ''
		WHERE current_entry_id = $entry_id RETURN AFTER`
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("companies", companyID),
		"entry_id": entryID,
	}

	results, err := surrealdb.Query[[]models.Company](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to clear booth: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if _, gerr := s.Get(ctx, companyID); gerr != nil {
			return gerr
		}
		return models.ErrConflict
	}
	return nil
}

// Compile-time check
var _ interfaces.CompanyStore = (*CompanyStore)(nil)
