package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/webagency/internal/model"
)

const orderColumns = `id, user_id, service_id, service_name, add_ons, installment, total_price, status,
	custom_request, contact, payment_reference, payment_url, payment_expires_at, created_at, processed_at`

// querier: общий интерфейс пула и транзакции для чтения одной строки.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o       model.Order
		status  string
		addOns  []byte
		contact []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ServiceID, &o.ServiceName, &addOns, &o.Installment, &o.TotalPrice,
		&status, &o.CustomRequest, &contact, &o.PaymentReference, &o.PaymentURL, &o.PaymentExpiresAt,
		&o.CreatedAt, &o.ProcessedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)

	if err := json.Unmarshal(addOns, &o.AddOns); err != nil {
		return nil, fmt.Errorf("decode add_ons: %w", err)
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}

	return &o, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	var res []model.Order

	err := r.withRetry(ctx, func() error {
		res = nil

		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			res = append(res, *o)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})

	return res, err
}

// CreateOrder сохраняет новый заказ в статусе pending.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	addOns, err := json.Marshal(nonNilStrings(o.AddOns))
	if err != nil {
		return fmt.Errorf("encode add_ons: %w", err)
	}
	contact, err := json.Marshal(o.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, service_id, service_name, add_ons, installment, total_price,
		                     status, custom_request, contact)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		o.ID, o.UserID, o.ServiceID, o.ServiceName, addOns, o.Installment, o.TotalPrice,
		string(model.OrderStatusPending), o.CustomRequest, contact,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	o.Status = model.OrderStatusPending
	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		o, err = scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListOrders возвращает все заказы; пустой статус не фильтрует.
func (r *PostgresRepository) ListOrders(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`,
		string(status),
	)
}

// ListPendingPayments возвращает ожидающие оплаты заказы, по которым уже выставлен счёт.
func (r *PostgresRepository) ListPendingPayments(ctx context.Context, limit int) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1 AND payment_reference <> ''
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.OrderStatusPending), limit,
	)
}

// SetOrderPayment сохраняет ссылку на оплату. Обновление условное: только для заказа в статусе pending.
func (r *PostgresRepository) SetOrderPayment(ctx context.Context, orderID, reference, url string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_reference = $2, payment_url = $3, payment_expires_at = $4
		 WHERE id = $1 AND status = $5`,
		orderID, reference, url, expiresAt, string(model.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return transitionError(ctx, r.pool, orderID, nil)
}

// MarkOrderPaid атомарно переводит заказ pending → paid, создаёт проект и уменьшает число свободных мест.
// Повторный вызов для оплаченного заказа возвращает alreadyPaid = true и ничего не меняет.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, orderID, reference string, p model.Project) (bool, error) {
	var alreadyPaid bool

	err := r.withRetry(ctx, func() error {
		alreadyPaid = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID      int64
			serviceID   string
			serviceName string
		)
		err = tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $2,
			     processed_at = now(),
			     payment_reference = CASE WHEN $3 <> '' THEN $3 ELSE payment_reference END
			 WHERE id = $1 AND status = $4
			 RETURNING user_id, service_id, service_name`,
			orderID, string(model.OrderStatusPaid), reference, string(model.OrderStatusPending),
		).Scan(&userID, &serviceID, &serviceName)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("update order status: %w", err)
			}

			var status string
			err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return model.ErrNotFound
				}
				return fmt.Errorf("select order status: %w", err)
			}
			if model.OrderStatus(status) == model.OrderStatusPaid {
				alreadyPaid = true
				return nil
			}
			return model.ErrInvalidTransition
		}

		if p.ServiceName == "" {
			p.ServiceName = serviceName
		}
		if !p.Status.Valid() {
			p.Status = model.ProjectStatusActive
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO projects (order_id, user_id, service_name, current_stage, progress_percentage, due_date, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (order_id) DO NOTHING`,
			orderID, userID, p.ServiceName, p.CurrentStage, p.ProgressPercentage, p.DueDate, string(p.Status),
		)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE services SET spots_remaining = spots_remaining - 1, updated_at = now()
			 WHERE id = $1 AND spots_remaining > 0`,
			serviceID,
		)
		if err != nil {
			return fmt.Errorf("decrement spots: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return alreadyPaid, err
}

// CancelOrder переводит заказ pending → cancelled. Если userID задан, отменить можно только свой заказ.
func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID string, userID *int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, processed_at = now()
		 WHERE id = $1 AND status = $4 AND ($2::bigint IS NULL OR user_id = $2)`,
		orderID, userID, string(model.OrderStatusCancelled), string(model.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return transitionError(ctx, r.pool, orderID, userID)
}

// transitionError объясняет, почему условное обновление не затронуло ни одной строки.
func transitionError(ctx context.Context, q querier, orderID string, userID *int64) error {
	var (
		owner  int64
		status string
	)
	err := q.QueryRow(ctx, `SELECT user_id, status FROM orders WHERE id = $1`, orderID).Scan(&owner, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("select order status: %w", err)
	}
	if userID != nil && *userID != owner {
		return model.ErrNotFound
	}
	if model.OrderStatus(status).Terminal() {
		return model.ErrInvalidTransition
	}
	return fmt.Errorf("order %s: concurrent update", orderID)
}
