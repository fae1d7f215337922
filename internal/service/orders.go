package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/events"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/pricing"
	"github.com/mmeshcher/webagency/internal/validation"
)

const maxCustomRequestLen = 5000

// CreateOrder оформляет заказ по сессии: фиксирует цену, забирает сессию и запрашивает ссылку на оплату.
// Проверки выполняются до того, как сессия забрана, поэтому ошибка ввода не сбрасывает корзину.
// Из параллельных запросов с одним токеном заказ создаёт только тот, кто забрал сессию.
// Если шлюз недоступен, заказ остаётся в pending и возвращается вместе с ошибкой model.ErrGateway.
func (s *Service) CreateOrder(ctx context.Context, userID int64, token, customRequest string) (*model.Order, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateContact(validation.NormalizeContact(sess.Contact)); err != nil {
		return nil, err
	}

	customRequest = strings.TrimSpace(customRequest)
	if len(customRequest) > maxCustomRequestLen {
		return nil, model.NewValidationError("custom_request", "is too long")
	}

	current, err := s.repo.GetService(ctx, sess.Service.ID)
	if err != nil {
		return nil, err
	}
	if soldOut(current) {
		return nil, model.ErrSoldOut
	}

	sess, err = s.sessions.Take(ctx, token)
	if err != nil {
		return nil, err
	}

	// сессию могли изменить между чтением и изъятием
	contact := validation.NormalizeContact(sess.Contact)
	if err := validation.ValidateContact(contact); err != nil {
		return nil, err
	}

	o := &model.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		ServiceID:     sess.Service.ID,
		ServiceName:   sess.Service.Name,
		AddOns:        sess.AddOns,
		Installment:   sess.Installment,
		TotalPrice:    pricing.Total(sess.Service, sess.AddOns, sess.Installment),
		CustomRequest: customRequest,
		Contact:       contact,
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		s.logger.Warn("checkout session consumed without order", zap.Error(err), zap.String("service_id", sess.Service.ID))
		return nil, err
	}

	s.publish(ctx, events.OrderCreated, o)

	if err := s.requestPayment(ctx, o); err != nil {
		return o, err
	}
	return o, nil
}

// ReactivatePayment выставляет новый счёт по заказу в статусе pending.
// Для оплаченного или отменённого заказа шлюз не вызывается.
func (s *Service) ReactivatePayment(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusPending {
		return nil, model.ErrInvalidTransition
	}

	if err := s.requestPayment(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) requestPayment(ctx context.Context, o *model.Order) error {
	if s.gateway == nil {
		return fmt.Errorf("%w: not configured", model.ErrGateway)
	}

	p, err := s.gateway.CreatePayment(ctx, gateway.PaymentRequest{
		OrderID:     o.ID,
		Amount:      o.TotalPrice,
		ItemName:    o.ServiceName,
		Contact:     o.Contact,
		CallbackURL: s.callbackURL,
		ReturnURL:   s.frontendURL + "/dashboard?" + url.Values{"order": {o.ID}}.Encode(),
	})
	if err != nil {
		s.logger.Warn("payment gateway error", zap.Error(err), zap.String("order_id", o.ID))
		if !errors.Is(err, model.ErrGateway) {
			err = fmt.Errorf("%w: %v", model.ErrGateway, err)
		}
		return err
	}

	if err := s.repo.SetOrderPayment(ctx, o.ID, p.Reference, p.URL, p.ExpiresAt); err != nil {
		return err
	}

	o.PaymentReference = p.Reference
	o.PaymentURL = p.URL
	expires := p.ExpiresAt
	o.PaymentExpiresAt = &expires
	return nil
}

// CancelOrder отменяет собственный заказ клиента в статусе pending.
func (s *Service) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	if err := s.repo.CancelOrder(ctx, orderID, &userID); err != nil {
		return err
	}
	s.publishCancelled(ctx, orderID)
	return nil
}

// AdminCancelOrder отменяет любой заказ в статусе pending.
func (s *Service) AdminCancelOrder(ctx context.Context, orderID string) error {
	if err := s.repo.CancelOrder(ctx, orderID, nil); err != nil {
		return err
	}
	s.publishCancelled(ctx, orderID)
	return nil
}

func (s *Service) publishCancelled(ctx context.Context, orderID string) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("load cancelled order", zap.Error(err), zap.String("order_id", orderID))
		return
	}
	s.publish(ctx, events.OrderCancelled, o)
}

// GetOrder возвращает заказ пользователя. Чужой заказ неотличим от несуществующего.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, model.ErrNotFound
	}
	return o, nil
}

// OrderStatus возвращает текущий статус заказа; клиент опрашивает его после возврата со страницы оплаты.
func (s *Service) OrderStatus(ctx context.Context, userID int64, orderID string) (model.OrderStatus, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// ListOrders возвращает заказы пользователя.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// AdminListOrders возвращает все заказы с необязательным фильтром по статусу.
func (s *Service) AdminListOrders(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError("status", "unknown order status")
	}
	return s.repo.ListOrders(ctx, status)
}

func (s *Service) publish(ctx context.Context, eventType string, o *model.Order) {
	err := s.events.Publish(ctx, events.Event{
		EventType:  eventType,
		OrderID:    o.ID,
		UserID:     o.UserID,
		ServiceID:  o.ServiceID,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("publish order event", zap.Error(err), zap.String("event_type", eventType), zap.String("order_id", o.ID))
	}
}
