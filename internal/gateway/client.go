package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/webagency/internal/model"
)

// Options: параметры подключения к HTTP-шлюзу.
type Options struct {
	BaseURL      string
	APIKey       string
	PrivateKey   string
	MerchantCode string
	Method       string
	PaymentTTL   time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL      string
	apiKey       string
	privateKey   string
	merchantCode string
	method       string
	paymentTTL   time.Duration
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient создаёт HTTP-клиент платёжного шлюза.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	ttl := opts.PaymentTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	method := opts.Method
	if method == "" {
		method = "QRIS"
	}

	return &Client{
		baseURL:      base,
		apiKey:       opts.APIKey,
		privateKey:   opts.PrivateKey,
		merchantCode: opts.MerchantCode,
		method:       method,
		paymentTTL:   ttl,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

type orderItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type transactionRequest struct {
	Method        string      `json:"method"`
	MerchantRef   string      `json:"merchant_ref"`
	Amount        int64       `json:"amount"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone"`
	OrderItems    []orderItem `json:"order_items"`
	CallbackURL   string      `json:"callback_url"`
	ReturnURL     string      `json:"return_url"`
	ExpiredTime   int64       `json:"expired_time"`
	Signature     string      `json:"signature"`
}

// Transaction описывает транзакцию на стороне шлюза.
type Transaction struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	CheckoutURL string `json:"checkout_url"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	ExpiredTime int64  `json:"expired_time"`
}

type transactionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

// CreatePayment создаёт транзакцию и возвращает ссылку на оплату.
// Любая ошибка шлюза оборачивается в model.ErrGateway.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", model.ErrGateway)
	}

	expires := c.now().Add(c.paymentTTL)

	body, err := json.Marshal(transactionRequest{
		Method:        c.method,
		MerchantRef:   req.OrderID,
		Amount:        req.Amount,
		CustomerName:  req.Contact.Name,
		CustomerEmail: req.Contact.Email,
		CustomerPhone: req.Contact.Phone,
		OrderItems: []orderItem{
			{Name: req.ItemName, Price: req.Amount, Quantity: 1},
		},
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		ExpiredTime: expires.Unix(),
		Signature:   c.transactionSignature(req.OrderID, req.Amount),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: do request: %v", model.ErrGateway, err)
	}
	defer resp.Body.Close()

	var result transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response (status %d): %v", model.ErrGateway, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		return nil, fmt.Errorf("%w: status %d: %s", model.ErrGateway, resp.StatusCode, result.Message)
	}
	if result.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: empty checkout url", model.ErrGateway)
	}

	if result.Data.ExpiredTime > 0 {
		expires = time.Unix(result.Data.ExpiredTime, 0)
	}

	return &Payment{
		Reference: result.Data.Reference,
		URL:       result.Data.CheckoutURL,
		ExpiresAt: expires.UTC(),
	}, nil
}

// CheckPayment сверяет оплату заказа по ссылке, выданной шлюзом при создании транзакции.
func (c *Client) CheckPayment(ctx context.Context, _, reference string) (*Transaction, int, time.Duration, error) {
	return c.GetTransaction(ctx, reference)
}

// GetTransaction запрашивает состояние транзакции по ссылке шлюза.
// При 429 возвращает код ответа и значение Retry-After без ошибки.
func (c *Client) GetTransaction(ctx context.Context, reference string) (*Transaction, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, errors.New("gateway client not configured")
	}

	u := c.baseURL + "/transaction/detail?" + url.Values{"reference": {reference}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, retryAfter(resp.Header), nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}
	if !result.Success {
		return nil, resp.StatusCode, 0, fmt.Errorf("gateway error: %s", result.Message)
	}

	return &result.Data, resp.StatusCode, 0, nil
}

// transactionSignature: HMAC-SHA256(merchant_code + merchant_ref + amount, private_key).
func (c *Client) transactionSignature(merchantRef string, amount int64) string {
	mac := hmac.New(sha256.New, []byte(c.privateKey))
	mac.Write([]byte(c.merchantCode + merchantRef + strconv.FormatInt(amount, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
