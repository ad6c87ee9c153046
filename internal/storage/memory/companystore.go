package memory

import (
	"context"
	"sort"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/google/uuid"
)

// CompanyStore implements interfaces.CompanyStore over the shared tables.
type CompanyStore struct {
	t      *tables
	logger *common.Logger
}

// NewCompanyStore creates a company store bound to the shared tables.
func NewCompanyStore(t *tables, logger *common.Logger) *CompanyStore {
	return &CompanyStore{t: t, logger: logger}
}

func (s *CompanyStore) Create(_ context.Context, company *models.Company) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if company.ID == "" {
		company.ID = uuid.New().String()[:8]
	}
	if _, exists := s.t.companies[company.ID]; exists {
		return models.ErrConflict
	}
	s.t.companies[company.ID] = copyCompany(company)
	return nil
}

func (s *CompanyStore) Get(_ context.Context, id string) (*models.Company, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	c, ok := s.t.companies[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyCompany(c), nil
}

func (s *CompanyStore) Save(_ context.Context, company *models.Company) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if _, ok := s.t.companies[company.ID]; !ok {
		return models.ErrNotFound
	}
	s.t.companies[company.ID] = copyCompany(company)
	return nil
}

func (s *CompanyStore) List(_ context.Context, activeOnly bool) ([]*models.Company, error) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()

	var out []*models.Company
	for _, c := range s.t.companies {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, copyCompany(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *CompanyStore) ClaimCurrentEntry(_ context.Context, companyID, entryID string) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	c, ok := s.t.companies[companyID]
	if !ok {
		return models.ErrNotFound
	}
	if c.CurrentEntryID != "" && c.CurrentEntryID != entryID {
		return models.ErrConflict
	}
	c.CurrentEntryID = entryID
	return nil
}

func (s *CompanyStore) ClearCurrentEntry(_ context.Context, companyID, entryID string) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	c, ok := s.t.companies[companyID]
	if !ok {
		return models.ErrNotFound
	}
	if c.CurrentEntryID != entryID {
		return models.ErrConflict
	}
	c.CurrentEntryID = ""
	return nil
}

// Compile-time check
var _ interfaces.CompanyStore = (*CompanyStore)(nil)
