package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/webagency/internal/model"
)

const projectColumns = `id, order_id, user_id, service_name, current_stage, progress_percentage,
	due_date, status, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		p      model.Project
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.ServiceName, &p.CurrentStage, &p.ProgressPercentage,
		&p.DueDate, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProjectStatus(status)
	return &p, nil
}

func (r *PostgresRepository) queryProjects(ctx context.Context, sql string, args ...any) ([]model.Project, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer rows.Close()

	var res []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListProjectsByUser возвращает проекты клиента.
func (r *PostgresRepository) ListProjectsByUser(ctx context.Context, userID int64) ([]model.Project, error) {
	return r.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListProjects возвращает все проекты для панели администратора.
func (r *PostgresRepository) ListProjects(ctx context.Context) ([]model.Project, error) {
	return r.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`,
	)
}

// GetProject возвращает проект по идентификатору.
func (r *PostgresRepository) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// UpdateProject сохраняет этап, прогресс и статус проекта.
func (r *PostgresRepository) UpdateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	res, err := scanProject(r.pool.QueryRow(ctx,
		`UPDATE projects
		 SET current_stage = $2, progress_percentage = $3, status = $4, due_date = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+projectColumns,
		p.ID, p.CurrentStage, p.ProgressPercentage, string(p.Status), p.DueDate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("update project: %w", err)
	}
	return res, nil
}
