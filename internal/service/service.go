// Package service реализует бизнес-логику витрины веб-агентства.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/events"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/repository"
	"github.com/mmeshcher/webagency/internal/validation"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	SetUserRole(ctx context.Context, login string, role model.Role) error

	ListServices(ctx context.Context, category, industry string) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	UpsertService(ctx context.Context, s model.Service) error

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context, status model.OrderStatus) ([]model.Order, error)
	ListPendingPayments(ctx context.Context, limit int) ([]model.Order, error)
	SetOrderPayment(ctx context.Context, orderID, reference, url string, expiresAt time.Time) error
	MarkOrderPaid(ctx context.Context, orderID, reference string, p model.Project) (bool, error)
	CancelOrder(ctx context.Context, orderID string, userID *int64) error

	ListProjectsByUser(ctx context.Context, userID int64) ([]model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) (*model.Project, error)

	ClientDashboard(ctx context.Context, userID int64) (*model.ClientDashboard, error)
	AdminDashboard(ctx context.Context) (*model.AdminDashboard, error)
}

// DefaultCallbackPath: путь уведомлений HTTP-шлюза.
const DefaultCallbackPath = "/api/payments/callback"

// Options: внешние адреса, список администраторов и поиск оплат для уведомлений без подписи.
type Options struct {
	// PublicBaseURL: адрес API, на который шлюз шлёт callback.
	PublicBaseURL string
	// CallbackPath: путь уведомлений относительно PublicBaseURL, по умолчанию DefaultCallbackPath.
	CallbackPath string
	// FrontendURL: адрес сайта, куда шлюз возвращает покупателя.
	FrontendURL   string
	AdminLogins   []string
	PaymentLookup PaymentLookup
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo     Repository
	sessions checkout.Store
	gateway  gateway.Gateway
	events   events.Publisher
	logger   *zap.Logger
	lookup   PaymentLookup

	callbackURL string
	frontendURL string
	admins      map[string]struct{}

	now func() time.Time
}

// NewService создаёт сервис. Публикатор событий и логгер могут быть nil.
func NewService(repo Repository, sessions checkout.Store, gw gateway.Gateway, pub events.Publisher, logger *zap.Logger, opts Options) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	admins := make(map[string]struct{}, len(opts.AdminLogins))
	for _, l := range opts.AdminLogins {
		if l = strings.TrimSpace(l); l != "" {
			admins[l] = struct{}{}
		}
	}

	callbackPath := opts.CallbackPath
	if callbackPath == "" {
		callbackPath = DefaultCallbackPath
	}

	return &Service{
		repo:        repo,
		sessions:    sessions,
		gateway:     gw,
		events:      pub,
		logger:      logger,
		lookup:      opts.PaymentLookup,
		callbackURL: strings.TrimRight(opts.PublicBaseURL, "/") + callbackPath,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		admins:      admins,
		now:         time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.events != nil {
		errs = append(errs, s.events.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// RegisterUser регистрирует нового пользователя с ролью client.
// Роль admin выдаёт только PromoteAdmins при старте, поэтому логин из списка администраторов нельзя занять регистрацией.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if err := validation.ValidateCredentials(login, password); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.CreateUser(ctx, login, hashed, model.RoleClient)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, repository.ErrUserExists
		}
		return nil, err
	}

	return &model.User{ID: id, Login: login, Role: model.RoleClient}, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// PromoteAdmins назначает роль admin уже зарегистрированным пользователям из списка администраторов.
func (s *Service) PromoteAdmins(ctx context.Context) error {
	for login := range s.admins {
		err := s.repo.SetUserRole(ctx, login, model.RoleAdmin)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
	}
	return nil
}

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
