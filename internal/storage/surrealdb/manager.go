// Package surrealdb provides the SurrealDB storage backend for Foyer.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB.
//
// Uniqueness discipline: the active (student, company) pair (U1) is held by
// a deterministic guard record in active_guards — CREATE on an existing
// record id fails, which surfaces as models.ErrConflict. The one-booth
// constraint (U2) is held by a conditional update on
// companies.current_entry_id.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	companyStore *CompanyStore
	entryStore   *EntryStore
}

// schemaStatements defines tables and the indexes backing queue reads and
// recomputation scans.
var schemaStatements = []string{
	"DEFINE TABLE IF NOT EXISTS companies SCHEMALESS",
	"DEFINE TABLE IF NOT EXISTS queue_entries SCHEMALESS",
	"DEFINE TABLE IF NOT EXISTS active_guards SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS idx_entries_queue ON queue_entries FIELDS company_id, status, queue_position",
	"DEFINE INDEX IF NOT EXISTS idx_entries_recompute ON queue_entries FIELDS company_id, status, priority_score, joined_at",
	"DEFINE INDEX IF NOT EXISTS idx_entries_student ON queue_entries FIELDS student_id, status",
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineSchema(ctx, db); err != nil {
		return nil, err
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.companyStore = NewCompanyStore(db, logger)
	m.entryStore = NewEntryStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// defineSchema ensures tables and indexes exist (SurrealDB v3 errors on
// querying non-existent tables).
func defineSchema(ctx context.Context, db *surrealdb.DB) error {
	for _, sql := range schemaStatements {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", sql, err)
		}
	}
	return nil
}

func (m *Manager) CompanyStore() interfaces.CompanyStore {
	return m.companyStore
}

func (m *Manager) EntryStore() interfaces.EntryStore {
	return m.entryStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
