// Package memory provides an in-memory storage backend for Foyer.
// It carries the same conflict semantics as the SurrealDB backend and is
// the substrate for unit tests and zero-infrastructure deployments.
// State does not survive a restart.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
)

// Manager implements interfaces.StorageManager over process memory.
type Manager struct {
	tables       *tables
	companyStore *CompanyStore
	entryStore   *EntryStore
}

// tables is the shared mutable state. One lock covers both maps so every
// store mutation is atomic with respect to readers.
type tables struct {
	mu        sync.RWMutex
	companies map[string]*models.Company
	entries   map[string]*models.QueueEntry
}

// NewManager creates an empty in-memory storage manager.
func NewManager(logger *common.Logger) *Manager {
	t := &tables{
		companies: make(map[string]*models.Company),
		entries:   make(map[string]*models.QueueEntry),
	}
	m := &Manager{tables: t}
	m.companyStore = NewCompanyStore(t, logger)
	m.entryStore = NewEntryStore(t, logger)
	logger.Info().Msg("In-memory storage manager initialized")
	return m
}

func (m *Manager) CompanyStore() interfaces.CompanyStore {
	return m.companyStore
}

func (m *Manager) EntryStore() interfaces.EntryStore {
	return m.entryStore
}

func (m *Manager) Close() error {
	return nil
}

// SeedEntries inserts entries directly, bypassing the constraint checks.
// It exists so drift-repair tests can construct states the conditional API
// refuses to produce.
func (m *Manager) SeedEntries(entries ...*models.QueueEntry) {
	m.tables.mu.Lock()
	defer m.tables.mu.Unlock()
	for _, e := range entries {
		m.tables.entries[e.ID] = copyEntry(e)
	}
}

// sortWaiting orders entries by (priority_score, joined_at, id) ascending.
// The id tiebreak is deterministic and cosmetic — it prevents cyclic
// rewrites when two entries share score and timestamp.
func sortWaiting(entries []*models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore < b.PriorityScore
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
}

func copyEntry(e *models.QueueEntry) *models.QueueEntry {
	c := *e
	return &c
}

func copyCompany(c *models.Company) *models.Company {
	cp := *c
	return &cp
}

// stampTerminal sets the terminal timestamp matching the target status.
func stampTerminal(e *models.QueueEntry, to models.EntryStatus, now time.Time) error {
	switch to {
	case models.StatusCompleted:
		e.CompletedAt = now
	case models.StatusPassed:
		e.PassedAt = now
	case models.StatusCancelled:
		e.CancelledAt = now
	default:
		return fmt.Errorf("status %s is not terminal", to)
	}
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
