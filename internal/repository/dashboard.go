package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/webagency/internal/model"
)

// ClientDashboard пересчитывает сводку клиента: активные проекты, ожидающие оплаты заказы и сумму оплаченных.
func (r *PostgresRepository) ClientDashboard(ctx context.Context, userID int64) (*model.ClientDashboard, error) {
	var d model.ClientDashboard

	err := r.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM projects WHERE user_id = $1 AND status = $2),
		     (SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $3),
		     (SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE user_id = $1 AND status = $4)`,
		userID,
		string(model.ProjectStatusActive),
		string(model.OrderStatusPending),
		string(model.OrderStatusPaid),
	).Scan(&d.ActiveProjects, &d.PendingOrders, &d.TotalSpent)
	if err != nil {
		return nil, fmt.Errorf("client dashboard: %w", err)
	}

	return &d, nil
}

// AdminDashboard пересчитывает сводку по всем заказам, проектам и каталогу.
func (r *PostgresRepository) AdminDashboard(ctx context.Context) (*model.AdminDashboard, error) {
	var d model.AdminDashboard

	err := r.pool.QueryRow(ctx,
		`SELECT
		     COUNT(*) FILTER (WHERE status = $1),
		     COUNT(*) FILTER (WHERE status = $2),
		     COUNT(*) FILTER (WHERE status = $3),
		     COALESCE(SUM(total_price) FILTER (WHERE status = $2), 0),
		     (SELECT COUNT(*) FROM projects WHERE status = $4),
		     (SELECT COUNT(*) FROM services WHERE spots_total > 0 AND spots_remaining = 0)
		 FROM orders`,
		string(model.OrderStatusPending),
		string(model.OrderStatusPaid),
		string(model.OrderStatusCancelled),
		string(model.ProjectStatusActive),
	).Scan(&d.PendingOrders, &d.PaidOrders, &d.CancelledOrders, &d.Revenue, &d.ActiveProjects, &d.SoldOutServices)
	if err != nil {
		return nil, fmt.Errorf("admin dashboard: %w", err)
	}

	return &d, nil
}
