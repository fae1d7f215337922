package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"github.com/mmeshcher/webagency/internal/model"
)

// ErrMissingAccessToken возвращается, если не задан токен MercadoPago.
var ErrMissingAccessToken = errors.New("missing mercadopago access token")

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentFinder interface {
	Search(ctx context.Context, request payment.SearchRequest) (*payment.SearchResponse, error)
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// MercadoPago выставляет счёт через Checkout Pro: preference с external_reference = id заказа.
// Оплаты по заказу ищутся через Payments API.
type MercadoPago struct {
	client     preferenceCreator
	payments   paymentFinder
	currency   string
	sandbox    bool
	paymentTTL time.Duration
	now        func() time.Time
}

// NewMercadoPago создаёт шлюз MercadoPago по access token.
func NewMercadoPago(accessToken, currency string, sandbox bool, paymentTTL time.Duration) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}

	return newMercadoPago(preference.NewClient(cfg), payment.NewClient(cfg), currency, sandbox, paymentTTL), nil
}

func newMercadoPago(client preferenceCreator, payments paymentFinder, currency string, sandbox bool, paymentTTL time.Duration) *MercadoPago {
	if paymentTTL <= 0 {
		paymentTTL = 24 * time.Hour
	}
	return &MercadoPago{
		client:     client,
		payments:   payments,
		currency:   currency,
		sandbox:    sandbox,
		paymentTTL: paymentTTL,
		now:        time.Now,
	}
}

// CreatePayment создаёт preference и возвращает init point для перенаправления.
func (m *MercadoPago) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	now := m.now().UTC()
	expires := now.Add(m.paymentTTL)

	res, err := m.client.Create(ctx, preference.Request{
		Items: []preference.ItemRequest{
			{
				ID:         req.OrderID,
				Title:      req.ItemName,
				Quantity:   1,
				UnitPrice:  float64(req.Amount),
				CurrencyID: m.currency,
			},
		},
		ExternalReference: req.OrderID,
		NotificationURL:   req.CallbackURL,
		BackURLs: &preference.BackURLsRequest{
			Success: req.ReturnURL,
			Pending: req.ReturnURL,
			Failure: req.ReturnURL,
		},
		Expires:            true,
		ExpirationDateFrom: &now,
		ExpirationDateTo:   &expires,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create preference: %v", model.ErrGateway, err)
	}

	link := res.InitPoint
	if m.sandbox && res.SandboxInitPoint != "" {
		link = res.SandboxInitPoint
	}
	if link == "" {
		return nil, fmt.Errorf("%w: empty init point", model.ErrGateway)
	}

	return &Payment{
		Reference: res.ID,
		URL:       link,
		ExpiresAt: expires,
	}, nil
}

// CheckPayment ищет оплаты по external_reference заказа. Одобренная оплата важнее остальных,
// иначе берётся самая свежая. При 429 возвращает код ответа и Retry-After без ошибки.
func (m *MercadoPago) CheckPayment(ctx context.Context, orderID, _ string) (*Transaction, int, time.Duration, error) {
	res, err := m.payments.Search(ctx, payment.SearchRequest{
		Limit: 10,
		Filters: map[string]string{
			"external_reference": orderID,
			"sort":               "date_created",
			"criteria":           "desc",
		},
	})
	if err != nil {
		var re *mperror.ResponseError
		if errors.As(err, &re) {
			if re.StatusCode == http.StatusTooManyRequests {
				return nil, re.StatusCode, retryAfter(re.Headers), nil
			}
			return nil, re.StatusCode, 0, fmt.Errorf("search payments: %w", err)
		}
		return nil, 0, 0, fmt.Errorf("search payments: %w", err)
	}

	if len(res.Results) == 0 {
		return nil, http.StatusNotFound, 0, nil
	}

	best := res.Results[0]
	for _, p := range res.Results {
		if p.Status == "approved" {
			best = p
			break
		}
	}
	return paymentTransaction(&best), http.StatusOK, 0, nil
}

// LookupPayment загружает оплату по id из уведомления MercadoPago.
func (m *MercadoPago) LookupPayment(ctx context.Context, paymentID string) (*Transaction, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: invalid payment id %q", model.ErrNotFound, paymentID)
	}

	p, err := m.payments.Get(ctx, id)
	if err != nil {
		var re *mperror.ResponseError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get payment: %v", model.ErrGateway, err)
	}
	return paymentTransaction(p), nil
}

func paymentTransaction(p *payment.Response) *Transaction {
	return &Transaction{
		Reference:   strconv.Itoa(p.ID),
		MerchantRef: p.ExternalReference,
		Amount:      int64(math.Round(p.TransactionAmount)),
		Status:      paymentStatus(p.Status),
	}
}

// paymentStatus переводит статус MercadoPago в статусы шлюза.
func paymentStatus(status string) string {
	switch status {
	case "approved":
		return StatusPaid
	case "rejected", "cancelled":
		return StatusFailed
	case "refunded", "charged_back":
		return StatusRefund
	default:
		return StatusUnpaid
	}
}
