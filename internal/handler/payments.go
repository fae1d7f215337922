package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/middleware"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/service"
)

const maxCallbackBody = 1 << 20

type callbackResponse struct {
	Success bool `json:"success"`
}

// PaymentCallback принимает уведомление шлюза об изменении статуса оплаты.
// Подпись проверяется по сырому телу запроса до разбора JSON.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !gateway.VerifySignature(h.callbackSecret, body, r.Header.Get(gateway.SignatureHeader)) {
		h.logger.Warn("payment callback with invalid signature", zap.String("remote_addr", r.RemoteAddr))
		middleware.RecordPaymentCallback("", "invalid_signature")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	cb, err := gateway.ParseCallback(body)
	if err != nil {
		middleware.RecordPaymentCallback("", "malformed")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.HandlePaymentCallback(r.Context(), *cb)
	h.writeCallbackResult(w, cb, err)
}

type mercadoPagoNotification struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// mercadoPagoPaymentID достаёт id оплаты из уведомления MercadoPago: из query (webhook и IPN) или из JSON-тела.
// Для уведомлений не об оплате возвращает пустую строку и false.
func mercadoPagoPaymentID(r *http.Request, body []byte) (string, bool) {
	q := r.URL.Query()
	kind := q.Get("type")
	if kind == "" {
		kind = q.Get("topic")
	}
	id := q.Get("data.id")
	if id == "" {
		id = q.Get("id")
	}

	if len(body) > 0 {
		var n mercadoPagoNotification
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			if kind == "" {
				kind = n.Type
			}
			if kind == "" {
				kind = n.Topic
			}
			if id == "" {
				id = n.Data.ID.String()
			}
		}
	}

	if kind != "" && kind != "payment" {
		return "", false
	}
	return id, true
}

// MercadoPagoNotification принимает уведомление MercadoPago. Подписи нет, поэтому оплата
// перечитывается из API шлюза по id, а тело используется только как источник id.
func (h *Handler) MercadoPagoNotification(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	paymentID, ok := mercadoPagoPaymentID(r, body)
	if !ok {
		middleware.RecordPaymentCallback("", "ignored")
		writeJSON(w, http.StatusOK, callbackResponse{Success: true})
		return
	}
	if paymentID == "" {
		middleware.RecordPaymentCallback("", "malformed")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cb, err := h.service.ConfirmPayment(r.Context(), paymentID)
	if cb == nil {
		cb = &gateway.Callback{Reference: paymentID}
	}
	h.writeCallbackResult(w, cb, err)
}

// writeCallbackResult отвечает шлюзу по результату применения уведомления и учитывает его в метриках.
func (h *Handler) writeCallbackResult(w http.ResponseWriter, cb *gateway.Callback, err error) {
	switch {
	case err == nil:
		middleware.RecordPaymentCallback(cb.Status, "applied")
		writeJSON(w, http.StatusOK, callbackResponse{Success: true})
	case errors.Is(err, service.ErrAmountMismatch), model.IsValidation(err):
		middleware.RecordPaymentCallback(cb.Status, "rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInvalidTransition):
		// оплата пришла по уже отменённому заказу: шлюзу повторять нечего
		h.logger.Warn("payment for cancelled order", zap.String("order_id", cb.MerchantRef), zap.String("reference", cb.Reference))
		middleware.RecordPaymentCallback(cb.Status, "conflict")
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), OrderID: cb.MerchantRef})
	default:
		middleware.RecordPaymentCallback(cb.Status, "error")
		h.writeError(w, err, "payment callback error", zap.String("order_id", cb.MerchantRef))
	}
}
