package service

import (
	"context"
	"strings"

	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/pricing"
)

// ListServices возвращает каталог с оценкой даты сдачи для каждой услуги.
func (s *Service) ListServices(ctx context.Context, category, industry string) ([]model.Service, error) {
	list, err := s.repo.ListServices(ctx, strings.TrimSpace(category), strings.TrimSpace(industry))
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.withDeliveryEstimate(&list[i])
	}
	return list, nil
}

// GetService возвращает услугу по идентификатору.
func (s *Service) GetService(ctx context.Context, id string) (*model.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	s.withDeliveryEstimate(svc)
	return svc, nil
}

// SaveService проверяет и сохраняет услугу каталога.
func (s *Service) SaveService(ctx context.Context, svc model.Service) (*model.Service, error) {
	svc.ID = strings.TrimSpace(svc.ID)
	svc.Name = strings.TrimSpace(svc.Name)
	for i := range svc.AddOns {
		svc.AddOns[i].Name = strings.TrimSpace(svc.AddOns[i].Name)
	}

	if err := validateService(svc); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertService(ctx, svc); err != nil {
		return nil, err
	}

	return s.GetService(ctx, svc.ID)
}

func validateService(svc model.Service) error {
	switch {
	case svc.ID == "":
		return model.NewValidationError("id", "is required")
	case svc.Name == "":
		return model.NewValidationError("name", "is required")
	case svc.Price < 0:
		return model.NewValidationError("price", "must not be negative")
	case svc.OriginalPrice < 0:
		return model.NewValidationError("original_price", "must not be negative")
	case svc.SpotsTotal < 0 || svc.SpotsRemaining < 0:
		return model.NewValidationError("spots", "must not be negative")
	case svc.SpotsRemaining > svc.SpotsTotal:
		return model.NewValidationError("spots_remaining", "exceeds spots_total")
	}

	seen := make(map[string]struct{}, len(svc.AddOns))
	for _, a := range svc.AddOns {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return model.NewValidationError("add_ons", "name is required")
		}
		if a.Price < 0 {
			return model.NewValidationError("add_ons", "price must not be negative: "+name)
		}
		if _, dup := seen[name]; dup {
			return model.NewValidationError("add_ons", "duplicate name: "+name)
		}
		seen[name] = struct{}{}
	}

	if pricing.FullPrice(svc) > pricing.MaxPrice {
		return model.NewValidationError("price", "price with all add-ons exceeds the limit")
	}

	return nil
}

// soldOut: услуга с ограниченным числом мест, где места закончились. SpotsTotal = 0 означает без ограничений.
func soldOut(svc *model.Service) bool {
	return svc.SpotsTotal > 0 && svc.SpotsRemaining <= 0
}

func (s *Service) withDeliveryEstimate(svc *model.Service) {
	if t, ok := pricing.DeliveryEstimate(s.now().UTC(), svc.Duration); ok {
		svc.DeliveryEstimate = &t
	}
}
