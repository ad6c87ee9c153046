// Package company is the admin management surface for booths.
package company

import (
	"context"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
)

// Compile-time interface check
var _ interfaces.CompanyService = (*Service)(nil)

// Service implements CompanyService.
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewService creates a new company management service.
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

func (s *Service) Create(ctx context.Context, company *models.Company, requester models.Actor) (*models.Company, error) {
	if !requester.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	if err := company.Validate(); err != nil {
		return nil, err
	}

	company.Active = true
	if err := s.storage.CompanyStore().Create(ctx, company); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("company_id", company.ID).
		Str("name", company.Name).
		Str("room", company.Room).
		Msg("Company created")
	return company, nil
}

func (s *Service) Get(ctx context.Context, companyID string) (*models.Company, error) {
	return s.storage.CompanyStore().Get(ctx, companyID)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*models.Company, error) {
	return s.storage.CompanyStore().List(ctx, activeOnly)
}

// Deactivate soft-deactivates the company. Existing entries keep their
// company reference; new joins are refused while inactive.
func (s *Service) Deactivate(ctx context.Context, companyID string, requester models.Actor) error {
	return s.setActive(ctx, companyID, requester, false)
}

func (s *Service) Reactivate(ctx context.Context, companyID string, requester models.Actor) error {
	return s.setActive(ctx, companyID, requester, true)
}

func (s *Service) setActive(ctx context.Context, companyID string, requester models.Actor, active bool) error {
	if !requester.IsAdmin() {
		return models.ErrUnauthorized
	}

	company, err := s.storage.CompanyStore().Get(ctx, companyID)
	if err != nil {
		return err
	}
	if company.Active == active {
		return nil
	}

	company.Active = active
	if err := s.storage.CompanyStore().Save(ctx, company); err != nil {
		return err
	}

	s.logger.Info().
		Str("company_id", companyID).
		Bool("active", active).
		Msg("Company active flag updated")
	return nil
}
