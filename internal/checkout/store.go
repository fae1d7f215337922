// Package checkout хранит незавершённые сессии оформления заказа.
package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mmeshcher/webagency/internal/model"
)

// DefaultTTL: срок жизни брошенной сессии оформления.
const DefaultTTL = 2 * time.Hour

// Store описывает хранилище сессий оформления. Отсутствующая или истёкшая сессия даёт model.ErrNotFound.
type Store interface {
	Create(ctx context.Context, s *model.CheckoutSession) (string, error)
	Get(ctx context.Context, token string) (*model.CheckoutSession, error)
	Update(ctx context.Context, token string, s *model.CheckoutSession) error
	// Take читает и удаляет сессию одной операцией: из параллельных вызовов сессию получает только один.
	Take(ctx context.Context, token string) (*model.CheckoutSession, error)
}

// NewToken генерирует непредсказуемый токен, пригодный для query-параметра.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// stamp заполняет токен и временные метки новой сессии.
func stamp(s *model.CheckoutSession, ttl time.Duration, now time.Time) error {
	token, err := NewToken()
	if err != nil {
		return err
	}
	s.Token = token
	s.CreatedAt = now
	s.ExpiresAt = now.Add(ttl)
	return nil
}
