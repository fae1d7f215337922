package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/service"
)

// ListServices возвращает каталог услуг с фильтрами ?category= и ?industry=.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListServices(r.Context(), q.Get("category"), q.Get("industry"))
	if err != nil {
		h.writeError(w, err, "list services error")
		return
	}
	if list == nil {
		list = []model.Service{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetService возвращает услугу каталога.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get service error")
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

type checkoutRequest struct {
	ServiceID   string        `json:"service_id"`
	AddOns      []string      `json:"add_ons"`
	Installment bool          `json:"installment"`
	Contact     model.Contact `json:"contact"`
}

type checkoutPatchRequest struct {
	AddOns      *[]string      `json:"add_ons"`
	Installment *bool          `json:"installment"`
	Contact     *model.Contact `json:"contact"`
}

type checkoutResponse struct {
	*model.CheckoutSession
	Link string `json:"link"`
}

func newCheckoutResponse(sess *model.CheckoutSession) checkoutResponse {
	return checkoutResponse{CheckoutSession: sess, Link: service.CheckoutLink(sess)}
}

// StartCheckout создаёт сессию оформления заказа. Итог считается на сервере.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sess, err := h.service.StartCheckout(r.Context(), service.CheckoutInput{
		ServiceID:   req.ServiceID,
		AddOns:      req.AddOns,
		Installment: req.Installment,
		Contact:     req.Contact,
	})
	if err != nil {
		h.writeError(w, err, "start checkout error", zap.String("service_id", req.ServiceID))
		return
	}

	writeJSON(w, http.StatusCreated, newCheckoutResponse(sess))
}

// writeCheckoutNotFound сообщает странице, что восстановить нечего и нужно показать пустое оформление.
func writeCheckoutNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "checkout not found", Fallback: "empty_checkout"})
}

// GetCheckout возвращает сессию оформления по токену.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetCheckout(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeCheckoutNotFound(w)
			return
		}
		h.writeError(w, err, "get checkout error")
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutResponse(sess))
}

// UpdateCheckout частично изменяет сессию оформления.
func (h *Handler) UpdateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sess, err := h.service.UpdateCheckout(r.Context(), chi.URLParam(r, "token"), service.CheckoutPatch{
		AddOns:      req.AddOns,
		Installment: req.Installment,
		Contact:     req.Contact,
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeCheckoutNotFound(w)
			return
		}
		h.writeError(w, err, "update checkout error")
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutResponse(sess))
}

// ResumeCheckout восстанавливает оформление по параметрам ссылки ?service=&price=&addons=&session=.
func (h *Handler) ResumeCheckout(w http.ResponseWriter, r *http.Request) {
	q := checkout.DecodeQuery(r.URL.Query())
	if q.Empty() {
		writeCheckoutNotFound(w)
		return
	}

	sess, err := h.service.ResumeCheckout(r.Context(), q)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeCheckoutNotFound(w)
			return
		}
		h.writeError(w, err, "resume checkout error")
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutResponse(sess))
}
