// Package handler содержит HTTP-обработчики API витрины веб-агентства.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/middleware"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/repository"
	"github.com/mmeshcher/webagency/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	ListServices(ctx context.Context, category, industry string) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	SaveService(ctx context.Context, svc model.Service) (*model.Service, error)

	StartCheckout(ctx context.Context, in service.CheckoutInput) (*model.CheckoutSession, error)
	GetCheckout(ctx context.Context, token string) (*model.CheckoutSession, error)
	UpdateCheckout(ctx context.Context, token string, patch service.CheckoutPatch) (*model.CheckoutSession, error)
	ResumeCheckout(ctx context.Context, q checkout.Query) (*model.CheckoutSession, error)

	CreateOrder(ctx context.Context, userID int64, token, customRequest string) (*model.Order, error)
	ReactivatePayment(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderID string) error
	AdminCancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	OrderStatus(ctx context.Context, userID int64, orderID string) (model.OrderStatus, error)
	ListOrders(ctx context.Context, userID int64) ([]model.Order, error)
	AdminListOrders(ctx context.Context, status model.OrderStatus) ([]model.Order, error)

	HandlePaymentCallback(ctx context.Context, cb gateway.Callback) error
	ConfirmPayment(ctx context.Context, paymentID string) (*gateway.Callback, error)

	ListProjects(ctx context.Context, userID int64) ([]model.Project, error)
	AdminListProjects(ctx context.Context) ([]model.Project, error)
	UpdateProjectProgress(ctx context.Context, projectID int64, upd service.ProjectUpdate) (*model.Project, error)

	ClientDashboard(ctx context.Context, userID int64) (*model.ClientDashboard, error)
	AdminDashboard(ctx context.Context) (*model.AdminDashboard, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	callbackSecret string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// callbackSecret: ключ, которым шлюз подписывает уведомления об оплате.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, callbackSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		callbackSecret: callbackSecret,
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor сопоставляет доменную ошибку с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAmountMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError отвечает статусом по ошибке; внутренние ошибки пишутся в журнал, а клиенту уходит только текст статуса.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var v model.ValidationError
	if errors.As(err, &v) {
		resp.Field = v.Field
		resp.Error = v.Message
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    int64      `json:"id"`
	Login string     `json:"login"`
	Role  model.Role `json:"role"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if model.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, err, "register user error")
		return
	}

	h.login(w, u)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "login user error")
		return
	}

	h.login(w, u)
}

func (h *Handler) login(w http.ResponseWriter, u *model.User) {
	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.Role); err != nil {
		h.logger.Error("sign auth token", zap.Error(err), zap.Int64("userID", u.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Login: u.Login, Role: u.Role})
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
