package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/model"
)

type createOrderRequest struct {
	Token         string `json:"token"`
	CustomRequest string `json:"custom_request"`
}

// CreateOrder оформляет заказ по сессии и возвращает ссылку на оплату.
// При недоступном шлюзе заказ сохраняется, а клиент получает 502 с его идентификатором.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.CreateOrder(r.Context(), userID, req.Token, req.CustomRequest)
	if err != nil {
		if errors.Is(err, model.ErrGateway) && o != nil {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), OrderID: o.ID})
			return
		}
		h.writeError(w, err, "create order error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get orders error", zap.Int64("userID", userID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get order error", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type orderStatusResponse struct {
	ID     string            `json:"id"`
	Status model.OrderStatus `json:"status"`
}

// GetOrderStatus отдаёт статус заказа для опроса после возврата со страницы оплаты.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	status, err := h.service.OrderStatus(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "get order status error", zap.String("order_id", id))
		return
	}
	writeJSON(w, http.StatusOK, orderStatusResponse{ID: id, Status: status})
}

// CancelOrder отменяет собственный неоплаченный заказ.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.CancelOrder(r.Context(), userID, id); err != nil {
		h.writeError(w, err, "cancel order error", zap.String("order_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReactivatePayment выставляет новый счёт по неоплаченному заказу.
func (h *Handler) ReactivatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	o, err := h.service.ReactivatePayment(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "reactivate payment error", zap.String("order_id", id))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetProjects возвращает проекты текущего пользователя.
func (h *Handler) GetProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	projects, err := h.service.ListProjects(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get projects error", zap.Int64("userID", userID))
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetDashboard возвращает сводку личного кабинета.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	d, err := h.service.ClientDashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get dashboard error", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, d)
}
