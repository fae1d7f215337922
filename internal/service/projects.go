package service

import (
	"context"
	"strings"
	"time"

	"github.com/mmeshcher/webagency/internal/model"
)

// ProjectUpdate: изменения проекта от администратора; nil-поля не меняются.
type ProjectUpdate struct {
	Stage    *string
	Progress *int
	Status   *model.ProjectStatus
	DueDate  *time.Time
}

// ListProjects возвращает проекты клиента.
func (s *Service) ListProjects(ctx context.Context, userID int64) ([]model.Project, error) {
	return s.repo.ListProjectsByUser(ctx, userID)
}

// AdminListProjects возвращает все проекты.
func (s *Service) AdminListProjects(ctx context.Context) ([]model.Project, error) {
	return s.repo.ListProjects(ctx)
}

// UpdateProjectProgress обновляет ход работ. Прогресс 100 без явного статуса завершает проект.
func (s *Service) UpdateProjectProgress(ctx context.Context, projectID int64, upd ProjectUpdate) (*model.Project, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if upd.Stage != nil {
		p.CurrentStage = strings.TrimSpace(*upd.Stage)
	}
	if upd.Progress != nil {
		if *upd.Progress < 0 || *upd.Progress > 100 {
			return nil, model.NewValidationError("progress_percentage", "must be between 0 and 100")
		}
		p.ProgressPercentage = *upd.Progress
	}
	if upd.DueDate != nil {
		due := *upd.DueDate
		p.DueDate = &due
	}

	switch {
	case upd.Status != nil:
		if !upd.Status.Valid() {
			return nil, model.NewValidationError("status", "unknown project status")
		}
		p.Status = *upd.Status
	case upd.Progress != nil && *upd.Progress == 100:
		p.Status = model.ProjectStatusCompleted
	}

	return s.repo.UpdateProject(ctx, *p)
}

// ClientDashboard возвращает сводку личного кабинета клиента.
func (s *Service) ClientDashboard(ctx context.Context, userID int64) (*model.ClientDashboard, error) {
	return s.repo.ClientDashboard(ctx, userID)
}

// AdminDashboard возвращает сводку для панели администратора.
func (s *Service) AdminDashboard(ctx context.Context) (*model.AdminDashboard, error) {
	return s.repo.AdminDashboard(ctx)
}
