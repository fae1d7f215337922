// Package gateway содержит клиентов внешних платёжных шлюзов.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/mmeshcher/webagency/internal/model"
)

// Статусы платежа, которые шлюз сообщает в callback и в ответе о транзакции.
const (
	StatusUnpaid  = "UNPAID"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
	StatusRefund  = "REFUND"
)

// PaymentRequest: данные для выставления счёта по заказу.
type PaymentRequest struct {
	OrderID     string
	Amount      int64
	ItemName    string
	Contact     model.Contact
	CallbackURL string
	ReturnURL   string
}

// Payment: созданная в шлюзе транзакция со ссылкой на оплату.
type Payment struct {
	Reference string
	URL       string
	ExpiresAt time.Time
}

// Gateway выставляет счёт и возвращает ссылку для перенаправления покупателя.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error)
}

// Callback: уведомление шлюза о результате оплаты.
type Callback struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	PaidAt      int64  `json:"paid_at"`
}

// retryAfter читает Retry-After в секундах; некорректное значение даёт 0.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
