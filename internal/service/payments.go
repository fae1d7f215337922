package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/events"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/pricing"
)

// ErrAmountMismatch возвращается, если сумма в уведомлении шлюза не совпадает с ценой заказа.
var ErrAmountMismatch = errors.New("payment amount does not match order total")

// firstStage: этап, с которого начинается работа над оплаченным проектом.
const firstStage = "Onboarding"

// TransactionChecker запрашивает у шлюза состояние оплаты заказа.
type TransactionChecker interface {
	CheckPayment(ctx context.Context, orderID, reference string) (*gateway.Transaction, int, time.Duration, error)
}

// PaymentLookup загружает оплату по id из уведомления шлюза, который не подписывает уведомления.
type PaymentLookup interface {
	LookupPayment(ctx context.Context, paymentID string) (*gateway.Transaction, error)
}

// HandlePaymentCallback применяет уведомление шлюза. Подпись проверяется до вызова.
// PAID переводит заказ в paid; FAILED и EXPIRED оставляют его в pending, чтобы клиент мог выставить счёт заново.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb gateway.Callback) error {
	o, err := s.repo.GetOrder(ctx, cb.MerchantRef)
	if err != nil {
		return err
	}

	switch cb.Status {
	case gateway.StatusPaid:
		if cb.TotalAmount != 0 && cb.TotalAmount != o.TotalPrice {
			s.logger.Warn("payment amount mismatch",
				zap.String("order_id", o.ID),
				zap.Int64("expected", o.TotalPrice),
				zap.Int64("received", cb.TotalAmount),
			)
			return ErrAmountMismatch
		}
		_, err := s.MarkPaid(ctx, o.ID, cb.Reference)
		return err

	case gateway.StatusFailed, gateway.StatusExpired, gateway.StatusRefund, gateway.StatusUnpaid:
		s.logger.Info("payment not completed",
			zap.String("order_id", o.ID),
			zap.String("status", cb.Status),
			zap.String("order_status", string(o.Status)),
		)
		return nil

	default:
		return model.NewValidationError("status", fmt.Sprintf("unknown payment status %q", cb.Status))
	}
}

// ConfirmPayment применяет уведомление MercadoPago: оплата перечитывается из API шлюза,
// поэтому телу уведомления не нужно доверять.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID string) (*gateway.Callback, error) {
	if s.lookup == nil {
		return nil, fmt.Errorf("%w: payment lookup not configured", model.ErrNotFound)
	}

	tx, err := s.lookup.LookupPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	cb := gateway.Callback{
		Reference:   tx.Reference,
		MerchantRef: tx.MerchantRef,
		Status:      tx.Status,
		TotalAmount: tx.Amount,
	}
	return &cb, s.HandlePaymentCallback(ctx, cb)
}

// MarkPaid переводит заказ в paid и создаёт проект ровно один раз.
// Повторное уведомление по оплаченному заказу возвращает alreadyPaid = true без побочных эффектов.
func (s *Service) MarkPaid(ctx context.Context, orderID, reference string) (bool, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}

	switch o.Status {
	case model.OrderStatusPaid:
		return true, nil
	case model.OrderStatusCancelled:
		return false, model.ErrInvalidTransition
	}

	project := model.Project{
		OrderID:      o.ID,
		UserID:       o.UserID,
		ServiceName:  o.ServiceName,
		CurrentStage: firstStage,
		Status:       model.ProjectStatusActive,
	}
	if svc, err := s.repo.GetService(ctx, o.ServiceID); err == nil {
		if due, ok := pricing.DeliveryEstimate(s.now().UTC(), svc.Duration); ok {
			project.DueDate = &due
		}
	}

	alreadyPaid, err := s.repo.MarkOrderPaid(ctx, o.ID, reference, project)
	if err != nil {
		return false, err
	}
	if alreadyPaid {
		return true, nil
	}

	o.Status = model.OrderStatusPaid
	s.publish(ctx, events.OrderPaid, o)
	s.logger.Info("order paid", zap.String("order_id", o.ID), zap.String("reference", reference))

	return false, nil
}

// StartPaymentReconciliation периодически сверяет ожидающие оплаты заказы со шлюзом
// на случай потерянного callback. Блокируется до отмены контекста.
func (s *Service) StartPaymentReconciliation(ctx context.Context, checker TransactionChecker, interval time.Duration) {
	if checker == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileBatch(ctx, checker)
		}
	}
}

func (s *Service) reconcileBatch(ctx context.Context, checker TransactionChecker) {
	orders, err := s.repo.ListPendingPayments(ctx, 100)
	if err != nil {
		s.logger.Warn("list pending payments", zap.Error(err))
		return
	}

	for _, o := range orders {
		tx, statusCode, retryAfter, err := checker.CheckPayment(ctx, o.ID, o.PaymentReference)
		if err != nil {
			s.logger.Debug("get transaction", zap.Error(err), zap.String("order_id", o.ID))
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if tx == nil || tx.Status != gateway.StatusPaid {
			continue
		}
		if tx.Amount != 0 && tx.Amount != o.TotalPrice {
			s.logger.Warn("reconciled amount mismatch", zap.String("order_id", o.ID), zap.Int64("received", tx.Amount))
			continue
		}

		if _, err := s.MarkPaid(ctx, o.ID, tx.Reference); err != nil {
			s.logger.Warn("reconcile mark paid", zap.Error(err), zap.String("order_id", o.ID))
		}
	}
}
