package service

import (
	"context"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

// ProjectService handles business logic for projects.
type ProjectService struct {
	projectRepo ProjectRepositoryInterface
	uuidGen     UUIDGenerator
}

func NewProjectService(projectRepo ProjectRepositoryInterface) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		uuidGen:     &DefaultUUIDGenerator{},
	}
}

// Create creates a new project.
func (s *ProjectService) Create(ctx context.Context, name string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "project name is required")
	}

	project := &domain.Project{
		ID:        s.uuidGen.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// GetByID retrieves a project by ID
func (s *ProjectService) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	return s.projectRepo.GetByID(ctx, id)
}

// List retrieves all projects
func (s *ProjectService) List(ctx context.Context) ([]*domain.Project, error) {
	return s.projectRepo.List(ctx)
}
