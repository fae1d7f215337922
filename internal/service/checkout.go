package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/pricing"
	"github.com/mmeshcher/webagency/internal/validation"
)

// CheckoutInput: выбор покупателя при начале оформления.
type CheckoutInput struct {
	ServiceID   string
	AddOns      []string
	Installment bool
	Contact     model.Contact
}

// CheckoutPatch: частичное изменение сессии; nil-поля не меняются.
type CheckoutPatch struct {
	AddOns      *[]string
	Installment *bool
	Contact     *model.Contact
}

// StartCheckout создаёт сессию оформления. Цена всегда считается на сервере по данным каталога.
func (s *Service) StartCheckout(ctx context.Context, in CheckoutInput) (*model.CheckoutSession, error) {
	if in.ServiceID == "" {
		return nil, model.NewValidationError("service_id", "is required")
	}

	svc, err := s.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if soldOut(svc) {
		return nil, model.ErrSoldOut
	}

	addOns := pricing.SelectAddOns(*svc, in.AddOns)
	sess := &model.CheckoutSession{
		Service:     *svc,
		AddOns:      addOns,
		Installment: in.Installment,
		TotalPrice:  pricing.Total(*svc, addOns, in.Installment),
		Contact:     validation.NormalizeContact(in.Contact),
	}

	if _, err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetCheckout возвращает сессию без её потребления.
func (s *Service) GetCheckout(ctx context.Context, token string) (*model.CheckoutSession, error) {
	return s.sessions.Get(ctx, token)
}

// UpdateCheckout применяет изменения и пересчитывает итог по снимку услуги из сессии.
func (s *Service) UpdateCheckout(ctx context.Context, token string, patch CheckoutPatch) (*model.CheckoutSession, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if patch.AddOns != nil {
		sess.AddOns = pricing.SelectAddOns(sess.Service, *patch.AddOns)
	}
	if patch.Installment != nil {
		sess.Installment = *patch.Installment
	}
	if patch.Contact != nil {
		sess.Contact = mergeContact(sess.Contact, validation.NormalizeContact(*patch.Contact))
	}
	sess.TotalPrice = pricing.Total(sess.Service, sess.AddOns, sess.Installment)

	if err := s.sessions.Update(ctx, token, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResumeCheckout восстанавливает оформление по параметрам ссылки: сначала по токену сессии,
// затем заново по услуге и опциям. Если восстановить нечего, возвращает model.ErrNotFound.
func (s *Service) ResumeCheckout(ctx context.Context, q checkout.Query) (*model.CheckoutSession, error) {
	if q.Session != "" {
		sess, err := s.sessions.Get(ctx, q.Session)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	if q.ServiceID == "" {
		return nil, model.ErrNotFound
	}

	return s.StartCheckout(ctx, CheckoutInput{ServiceID: q.ServiceID, AddOns: q.AddOns})
}

// CheckoutLink возвращает query-строку, по которой сессию можно восстановить после перехода.
func CheckoutLink(sess *model.CheckoutSession) string {
	return checkout.EncodeQuery(checkout.Query{
		ServiceID: sess.Service.ID,
		Price:     sess.TotalPrice,
		AddOns:    sess.AddOns,
		Session:   sess.Token,
	})
}

// mergeContact переносит в контакт сессии только заполненные поля изменения.
func mergeContact(dst, patch model.Contact) model.Contact {
	if patch.Name != "" {
		dst.Name = patch.Name
	}
	if patch.Email != "" {
		dst.Email = patch.Email
	}
	if patch.Phone != "" {
		dst.Phone = patch.Phone
	}
	if patch.Company != "" {
		dst.Company = patch.Company
	}
	if patch.ProjectDetails != "" {
		dst.ProjectDetails = patch.ProjectDetails
	}
	return dst
}
