package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/service"
)

// AdminListOrders возвращает все заказы, ?status= фильтрует по статусу.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AdminListOrders(r.Context(), model.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err, "admin list orders error")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// AdminCancelOrder отменяет любой неоплаченный заказ.
func (h *Handler) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.AdminCancelOrder(r.Context(), id); err != nil {
		h.writeError(w, err, "admin cancel order error", zap.String("order_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveService создаёт или обновляет услугу каталога.
func (h *Handler) SaveService(w http.ResponseWriter, r *http.Request) {
	var req model.Service
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	svc, err := h.service.SaveService(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "save service error", zap.String("service_id", req.ID))
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// AdminListProjects возвращает все проекты.
func (h *Handler) AdminListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.AdminListProjects(r.Context())
	if err != nil {
		h.writeError(w, err, "admin list projects error")
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

type projectUpdateRequest struct {
	CurrentStage       *string              `json:"current_stage"`
	ProgressPercentage *int                 `json:"progress_percentage"`
	Status             *model.ProjectStatus `json:"status"`
	DueDate            *time.Time           `json:"due_date"`
}

// UpdateProject меняет этап, прогресс, статус или срок проекта.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req projectUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdateProjectProgress(r.Context(), id, service.ProjectUpdate{
		Stage:    req.CurrentStage,
		Progress: req.ProgressPercentage,
		Status:   req.Status,
		DueDate:  req.DueDate,
	})
	if err != nil {
		h.writeError(w, err, "update project error", zap.Int64("project_id", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AdminDashboard возвращает сводку для панели администратора.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.AdminDashboard(r.Context())
	if err != nil {
		h.writeError(w, err, "admin dashboard error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
