package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/events"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/model"
	"github.com/mmeshcher/webagency/internal/pricing"
	"github.com/mmeshcher/webagency/internal/repository"
)

// stubRepo хранит данные в памяти и повторяет условные переходы PostgresRepository.
type stubRepo struct {
	mu sync.Mutex

	users    map[string]model.User
	services map[string]model.Service
	orders   map[string]model.Order
	projects map[int64]model.Project
	nextID   int64

	createUserErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:    make(map[string]model.User),
		services: make(map[string]model.Service),
		orders:   make(map[string]model.Order),
		projects: make(map[int64]model.Project),
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUserErr != nil {
		return 0, s.createUserErr
	}
	if _, ok := s.users[login]; ok {
		return 0, repository.ErrUserExists
	}
	s.nextID++
	s.users[login] = model.User{ID: s.nextID, Login: login, PasswordHash: passwordHash, Role: role}
	return s.nextID, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (s *stubRepo) SetUserRole(ctx context.Context, login string, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[login]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Role = role
	s.users[login] = u
	return nil
}

func (s *stubRepo) ListServices(ctx context.Context, category, industry string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Service
	for _, svc := range s.services {
		if category == "" || svc.Category == category {
			res = append(res, svc)
		}
	}
	return res, nil
}

func (s *stubRepo) GetService(ctx context.Context, id string) (*model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &svc, nil
}

func (s *stubRepo) UpsertService(ctx context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Status = model.OrderStatusPending
	o.CreatedAt = time.Now()
	s.orders[o.ID] = *o
	return nil
}

func (s *stubRepo) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &o, nil
}

func (s *stubRepo) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			res = append(res, o)
		}
	}
	return res, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			res = append(res, o)
		}
	}
	return res, nil
}

func (s *stubRepo) ListPendingPayments(ctx context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.Status == model.OrderStatusPending && o.PaymentReference != "" {
			res = append(res, o)
		}
	}
	return res, nil
}

func (s *stubRepo) SetOrderPayment(ctx context.Context, orderID, reference, url string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return model.ErrInvalidTransition
	}
	o.PaymentReference = reference
	o.PaymentURL = url
	o.PaymentExpiresAt = &expiresAt
	s.orders[orderID] = o
	return nil
}

func (s *stubRepo) MarkOrderPaid(ctx context.Context, orderID, reference string, p model.Project) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, model.ErrNotFound
	}
	switch o.Status {
	case model.OrderStatusPaid:
		return true, nil
	case model.OrderStatusCancelled:
		return false, model.ErrInvalidTransition
	}

	now := time.Now()
	o.Status = model.OrderStatusPaid
	o.ProcessedAt = &now
	if reference != "" {
		o.PaymentReference = reference
	}
	s.orders[orderID] = o

	for _, existing := range s.projects {
		if existing.OrderID == orderID {
			return false, nil
		}
	}
	s.nextID++
	p.ID = s.nextID
	p.OrderID = orderID
	p.UserID = o.UserID
	s.projects[p.ID] = p

	if svc, ok := s.services[o.ServiceID]; ok && svc.SpotsRemaining > 0 {
		svc.SpotsRemaining--
		s.services[o.ServiceID] = svc
	}
	return false, nil
}

func (s *stubRepo) CancelOrder(ctx context.Context, orderID string, userID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || (userID != nil && *userID != o.UserID) {
		return model.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return model.ErrInvalidTransition
	}
	o.Status = model.OrderStatusCancelled
	s.orders[orderID] = o
	return nil
}

func (s *stubRepo) ListProjectsByUser(ctx context.Context, userID int64) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *stubRepo) ListProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		res = append(res, p)
	}
	return res, nil
}

func (s *stubRepo) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (s *stubRepo) UpdateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return nil, model.ErrNotFound
	}
	s.projects[p.ID] = p
	return &p, nil
}

func (s *stubRepo) ClientDashboard(ctx context.Context, userID int64) (*model.ClientDashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d model.ClientDashboard
	for _, p := range s.projects {
		if p.UserID == userID && p.Status == model.ProjectStatusActive {
			d.ActiveProjects++
		}
	}
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		switch o.Status {
		case model.OrderStatusPending:
			d.PendingOrders++
		case model.OrderStatusPaid:
			d.TotalSpent += o.TotalPrice
		}
	}
	return &d, nil
}

func (s *stubRepo) AdminDashboard(ctx context.Context) (*model.AdminDashboard, error) {
	return &model.AdminDashboard{}, nil
}

// stubStore: хранилище сессий в памяти.
type stubStore struct {
	mu       sync.Mutex
	sessions map[string]model.CheckoutSession
	seq      int
	getDelay time.Duration
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]model.CheckoutSession)}
}

func (s *stubStore) Create(ctx context.Context, cs *model.CheckoutSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cs.Token = "tok-" + string(rune('a'+s.seq))
	s.sessions[cs.Token] = *cs
	return cs.Token, nil
}

func (s *stubStore) Get(ctx context.Context, token string) (*model.CheckoutSession, error) {
	time.Sleep(s.getDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &cs, nil
}

func (s *stubStore) Update(ctx context.Context, token string, cs *model.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return model.ErrNotFound
	}
	s.sessions[token] = *cs
	return nil
}

func (s *stubStore) Take(ctx context.Context, token string) (*model.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	delete(s.sessions, token)
	return &cs, nil
}

type stubGateway struct {
	calls int
	err   error
	last  gateway.PaymentRequest
}

func (g *stubGateway) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Payment, error) {
	g.calls++
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Payment{
		Reference: "REF-" + req.OrderID,
		URL:       "https://pay.example/" + req.OrderID,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	svc     *Service
	repo    *stubRepo
	store   *stubStore
	gateway *stubGateway
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newStubRepo()
	repo.services["landing-page"] = model.Service{
		ID:             "landing-page",
		Name:           "Landing Page",
		Price:          150000,
		Duration:       "7-14 days",
		SpotsRemaining: 3,
		SpotsTotal:     5,
		AddOns: []model.AddOn{
			{Name: "WhatsApp Integration", Price: 15000},
			{Name: "Live Chat Widget", Price: 25000},
		},
	}

	f := &fixture{
		repo:    repo,
		store:   newStubStore(),
		gateway: &stubGateway{},
		events:  &recordingPublisher{},
	}
	f.svc = NewService(repo, f.store, f.gateway, f.events, nil, Options{
		PublicBaseURL: "https://api.agency.example/",
		FrontendURL:   "https://agency.example",
		AdminLogins:   []string{"boss"},
	})
	return f
}

func validContact() model.Contact {
	return model.Contact{Name: "Budi", Email: "budi@example.com", Phone: "081234567890"}
}

func (f *fixture) startSession(t *testing.T) *model.CheckoutSession {
	t.Helper()
	sess, err := f.svc.StartCheckout(context.Background(), CheckoutInput{
		ServiceID: "landing-page",
		AddOns:    []string{"WhatsApp Integration", "Live Chat Widget"},
		Contact:   validContact(),
	})
	if err != nil {
		t.Fatalf("StartCheckout error: %v", err)
	}
	return sess
}

func (f *fixture) placeOrder(t *testing.T, userID int64) *model.Order {
	t.Helper()
	sess := f.startSession(t)
	o, err := f.svc.CreateOrder(context.Background(), userID, sess.Token, "")
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	return o
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	f := newFixture(t)
	f.repo.createUserErr = repository.ErrUserExists

	_, err := f.svc.RegisterUser(context.Background(), "login", "password")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_AdminLoginGetsClientRole(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.RegisterUser(context.Background(), "boss", "anything123")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if u.Role != model.RoleClient {
		t.Fatalf("role = %s, want client", u.Role)
	}
	if f.repo.users["boss"].Role != model.RoleClient {
		t.Fatalf("stored role = %s, want client", f.repo.users["boss"].Role)
	}

	if err := f.svc.PromoteAdmins(context.Background()); err != nil {
		t.Fatalf("PromoteAdmins error: %v", err)
	}
	if f.repo.users["boss"].Role != model.RoleAdmin {
		t.Fatalf("boss was not promoted at startup")
	}
}

func TestAuthenticateUser(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RegisterUser(context.Background(), "user", "correct-horse"); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	u, err := f.svc.AuthenticateUser(context.Background(), "user", "correct-horse")
	if err != nil || u.Login != "user" {
		t.Fatalf("AuthenticateUser = %+v, %v", u, err)
	}

	if _, err := f.svc.AuthenticateUser(context.Background(), "user", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.AuthenticateUser(context.Background(), "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown login, got %v", err)
	}
}

func TestPromoteAdmins(t *testing.T) {
	f := newFixture(t)
	f.repo.users["boss"] = model.User{ID: 99, Login: "boss", Role: model.RoleClient}

	if err := f.svc.PromoteAdmins(context.Background()); err != nil {
		t.Fatalf("PromoteAdmins error: %v", err)
	}
	if f.repo.users["boss"].Role != model.RoleAdmin {
		t.Fatalf("boss was not promoted")
	}
}

func TestStartCheckout_ServerComputesTotal(t *testing.T) {
	f := newFixture(t)

	sess := f.startSession(t)
	if sess.TotalPrice != 190000 {
		t.Fatalf("total = %d, want 190000", sess.TotalPrice)
	}
	if sess.Token == "" {
		t.Fatalf("token not assigned")
	}

	got, err := f.svc.GetCheckout(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("GetCheckout error: %v", err)
	}
	if got.TotalPrice != sess.TotalPrice || len(got.AddOns) != 2 {
		t.Fatalf("session did not round-trip: %+v", got)
	}
}

func TestStartCheckout_Errors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.StartCheckout(context.Background(), CheckoutInput{ServiceID: "missing"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	svc := f.repo.services["landing-page"]
	svc.SpotsRemaining = 0
	f.repo.services["landing-page"] = svc

	if _, err := f.svc.StartCheckout(context.Background(), CheckoutInput{ServiceID: "landing-page"}); !errors.Is(err, model.ErrSoldOut) {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}
}

func TestUpdateCheckout_RecomputesTotal(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	installment := true
	addOns := []string{"WhatsApp Integration", "WhatsApp Integration", "Unknown"}
	got, err := f.svc.UpdateCheckout(context.Background(), sess.Token, CheckoutPatch{
		AddOns:      &addOns,
		Installment: &installment,
	})
	if err != nil {
		t.Fatalf("UpdateCheckout error: %v", err)
	}
	// (150000 + 15000) × 1.3
	if got.TotalPrice != 214500 {
		t.Fatalf("total = %d, want 214500", got.TotalPrice)
	}

	if _, err := f.svc.UpdateCheckout(context.Background(), "missing", CheckoutPatch{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCheckout_MergesContact(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	got, err := f.svc.UpdateCheckout(context.Background(), sess.Token, CheckoutPatch{
		Contact: &model.Contact{ProjectDetails: "  need a blog  "},
	})
	if err != nil {
		t.Fatalf("UpdateCheckout error: %v", err)
	}

	want := validContact()
	want.ProjectDetails = "need a blog"
	if got.Contact != want {
		t.Fatalf("contact = %+v, want %+v", got.Contact, want)
	}

	got, err = f.svc.UpdateCheckout(context.Background(), sess.Token, CheckoutPatch{
		Contact: &model.Contact{Email: "new@example.com", Company: "PT Maju"},
	})
	if err != nil {
		t.Fatalf("UpdateCheckout error: %v", err)
	}
	if got.Contact.Email != "new@example.com" || got.Contact.Company != "PT Maju" || got.Contact.Name != "Budi" || got.Contact.ProjectDetails != "need a blog" {
		t.Fatalf("unexpected merged contact: %+v", got.Contact)
	}

	if _, err := f.svc.CreateOrder(context.Background(), 1, sess.Token, ""); err != nil {
		t.Fatalf("CreateOrder after partial contact update: %v", err)
	}
}

func TestResumeCheckout(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	got, err := f.svc.ResumeCheckout(context.Background(), checkout.Query{Session: sess.Token})
	if err != nil || got.Token != sess.Token {
		t.Fatalf("resume by token = %+v, %v", got, err)
	}

	got, err = f.svc.ResumeCheckout(context.Background(), checkout.Query{
		Session:   "expired",
		ServiceID: "landing-page",
		AddOns:    []string{"Live Chat Widget"},
		Price:     1,
	})
	if err != nil {
		t.Fatalf("resume by service error: %v", err)
	}
	if got.TotalPrice != 175000 {
		t.Fatalf("rebuilt total = %d, want 175000", got.TotalPrice)
	}

	if _, err := f.svc.ResumeCheckout(context.Background(), checkout.Query{Session: "expired"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	o, err := f.svc.CreateOrder(context.Background(), 7, sess.Token, "  need bilingual copy ")
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if o.Status != model.OrderStatusPending || o.TotalPrice != 190000 || o.UserID != 7 {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.CustomRequest != "need bilingual copy" {
		t.Fatalf("custom request = %q", o.CustomRequest)
	}
	if o.PaymentURL == "" || o.PaymentReference == "" {
		t.Fatalf("payment link not stored: %+v", o)
	}
	if f.gateway.last.CallbackURL != "https://api.agency.example/api/payments/callback" {
		t.Fatalf("callback url = %q", f.gateway.last.CallbackURL)
	}

	stored := f.repo.orders[o.ID]
	if stored.PaymentURL != o.PaymentURL {
		t.Fatalf("payment url not persisted")
	}

	if _, err := f.svc.GetCheckout(context.Background(), sess.Token); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("session must be consumed, got %v", err)
	}
	if f.events.count(events.OrderCreated) != 1 {
		t.Fatalf("order_created not published")
	}
}

func TestCreateOrder_DoubleSubmitCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	f.store.getDelay = 20 * time.Millisecond

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		missing int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), 1, sess.Token, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, model.ErrNotFound):
				missing++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || missing != 1 {
		t.Fatalf("created = %d, missing = %d, want 1 and 1", created, missing)
	}
	if n := len(f.repo.orders); n != 1 {
		t.Fatalf("orders stored = %d, want 1", n)
	}
}

func TestCreateOrder_ValidationKeepsSession(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	_, err := f.svc.CreateOrder(context.Background(), 1, sess.Token, strings.Repeat("x", maxCustomRequestLen+1))
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.GetCheckout(context.Background(), sess.Token); err != nil {
		t.Fatalf("session must survive a rejected order: %v", err)
	}
}

func TestCreateOrder_InvalidContact(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.StartCheckout(context.Background(), CheckoutInput{
		ServiceID: "landing-page",
		Contact:   model.Contact{Name: "Budi", Email: "not-an-email", Phone: "081234567890"},
	})
	if err != nil {
		t.Fatalf("StartCheckout error: %v", err)
	}

	_, err = f.svc.CreateOrder(context.Background(), 1, sess.Token, "")
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.repo.orders) != 0 {
		t.Fatalf("order must not be persisted on validation error")
	}
}

func TestCreateOrder_GatewayFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("connection refused")
	sess := f.startSession(t)

	o, err := f.svc.CreateOrder(context.Background(), 1, sess.Token, "")
	if !errors.Is(err, model.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if o == nil || f.repo.orders[o.ID].Status != model.OrderStatusPending {
		t.Fatalf("order must stay pending after gateway failure")
	}

	f.gateway.err = nil
	o, err = f.svc.ReactivatePayment(context.Background(), 1, o.ID)
	if err != nil {
		t.Fatalf("ReactivatePayment error: %v", err)
	}
	if o.PaymentURL == "" {
		t.Fatalf("reactivated order has no payment url")
	}
}

func TestReactivatePayment_TerminalOrderSkipsGateway(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	if err := f.svc.CancelOrder(context.Background(), 1, o.ID); err != nil {
		t.Fatalf("CancelOrder error: %v", err)
	}

	calls := f.gateway.calls
	_, err := f.svc.ReactivatePayment(context.Background(), 1, o.ID)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.gateway.calls != calls {
		t.Fatalf("gateway must not be called for a cancelled order")
	}
}

func TestReactivatePayment_ForeignOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	if _, err := f.svc.ReactivatePayment(context.Background(), 2, o.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkPaid_Idempotent(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	already, err := f.svc.MarkPaid(context.Background(), o.ID, "REF")
	if err != nil || already {
		t.Fatalf("first MarkPaid = %v, %v", already, err)
	}

	already, err = f.svc.MarkPaid(context.Background(), o.ID, "REF")
	if err != nil || !already {
		t.Fatalf("second MarkPaid = %v, %v", already, err)
	}

	if len(f.repo.projects) != 1 {
		t.Fatalf("projects = %d, want exactly 1", len(f.repo.projects))
	}
	for _, p := range f.repo.projects {
		if p.DueDate == nil || p.Status != model.ProjectStatusActive || p.CurrentStage == "" {
			t.Fatalf("unexpected project: %+v", p)
		}
	}
	if f.repo.services["landing-page"].SpotsRemaining != 2 {
		t.Fatalf("spots must be decremented once")
	}
	if f.events.count(events.OrderPaid) != 1 {
		t.Fatalf("order_paid must be published once")
	}

	d, _ := f.svc.ClientDashboard(context.Background(), 1)
	if d.TotalSpent != 190000 || d.ActiveProjects != 1 {
		t.Fatalf("unexpected dashboard: %+v", d)
	}
}

func TestMarkPaid_Concurrent(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.MarkPaid(context.Background(), o.ID, "REF"); err != nil {
				t.Errorf("MarkPaid error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(f.repo.projects) != 1 {
		t.Fatalf("projects = %d, want exactly 1", len(f.repo.projects))
	}
}

func TestMarkPaid_CancelledOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	if err := f.svc.AdminCancelOrder(context.Background(), o.ID); err != nil {
		t.Fatalf("AdminCancelOrder error: %v", err)
	}

	if _, err := f.svc.MarkPaid(context.Background(), o.ID, "REF"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(f.repo.projects) != 0 {
		t.Fatalf("cancelled order must not produce a project")
	}
}

func TestCancelOrder_PaidOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	if _, err := f.svc.MarkPaid(context.Background(), o.ID, "REF"); err != nil {
		t.Fatalf("MarkPaid error: %v", err)
	}

	if err := f.svc.CancelOrder(context.Background(), 1, o.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.repo.orders[o.ID].Status != model.OrderStatusPaid {
		t.Fatalf("paid order status must not change")
	}
}

func TestHandlePaymentCallback(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	err := f.svc.HandlePaymentCallback(context.Background(), gateway.Callback{
		MerchantRef: o.ID, Status: gateway.StatusFailed,
	})
	if err != nil {
		t.Fatalf("failed callback error: %v", err)
	}
	if f.repo.orders[o.ID].Status != model.OrderStatusPending {
		t.Fatalf("failed payment must keep the order pending")
	}

	err = f.svc.HandlePaymentCallback(context.Background(), gateway.Callback{
		MerchantRef: o.ID, Status: gateway.StatusPaid, TotalAmount: 1,
	})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	for i := 0; i < 2; i++ {
		err = f.svc.HandlePaymentCallback(context.Background(), gateway.Callback{
			Reference: "T1", MerchantRef: o.ID, Status: gateway.StatusPaid, TotalAmount: o.TotalPrice,
		})
		if err != nil {
			t.Fatalf("paid callback #%d error: %v", i, err)
		}
	}
	if f.repo.orders[o.ID].Status != model.OrderStatusPaid || len(f.repo.projects) != 1 {
		t.Fatalf("paid callback not applied exactly once")
	}

	err = f.svc.HandlePaymentCallback(context.Background(), gateway.Callback{MerchantRef: "missing", Status: gateway.StatusPaid})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = f.svc.HandlePaymentCallback(context.Background(), gateway.Callback{MerchantRef: o.ID, Status: "WHATEVER"})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type stubChecker struct {
	tx     *gateway.Transaction
	orders []string
}

func (c *stubChecker) CheckPayment(ctx context.Context, orderID, reference string) (*gateway.Transaction, int, time.Duration, error) {
	c.orders = append(c.orders, orderID)
	if c.tx == nil {
		return nil, 404, 0, nil
	}
	tx := *c.tx
	tx.Reference = reference
	return &tx, 200, 0, nil
}

type stubLookup struct {
	payments map[string]gateway.Transaction
}

func (l *stubLookup) LookupPayment(ctx context.Context, paymentID string) (*gateway.Transaction, error) {
	tx, ok := l.payments[paymentID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &tx, nil
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	f.svc.lookup = &stubLookup{payments: map[string]gateway.Transaction{
		"101": {Reference: "101", MerchantRef: o.ID, Status: gateway.StatusUnpaid, Amount: o.TotalPrice},
		"102": {Reference: "102", MerchantRef: o.ID, Status: gateway.StatusPaid, Amount: o.TotalPrice + 1},
		"103": {Reference: "103", MerchantRef: o.ID, Status: gateway.StatusPaid, Amount: o.TotalPrice},
	}}

	if _, err := f.svc.ConfirmPayment(context.Background(), "101"); err != nil {
		t.Fatalf("pending payment: %v", err)
	}
	if f.repo.orders[o.ID].Status != model.OrderStatusPending {
		t.Fatalf("pending payment must not change the order")
	}

	if _, err := f.svc.ConfirmPayment(context.Background(), "102"); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	cb, err := f.svc.ConfirmPayment(context.Background(), "103")
	if err != nil {
		t.Fatalf("approved payment: %v", err)
	}
	if cb.MerchantRef != o.ID || cb.Status != gateway.StatusPaid {
		t.Fatalf("unexpected callback: %+v", cb)
	}
	if f.repo.orders[o.ID].Status != model.OrderStatusPaid {
		t.Fatalf("approved payment did not mark the order paid")
	}

	if _, err := f.svc.ConfirmPayment(context.Background(), "999"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown payment, got %v", err)
	}
}

func TestConfirmPayment_NoLookup(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.ConfirmPayment(context.Background(), "1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without lookup, got %v", err)
	}
}

func TestReconcileBatch_MarksPaid(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)

	checker := &stubChecker{}
	f.svc.reconcileBatch(context.Background(), checker)
	if f.repo.orders[o.ID].Status != model.OrderStatusPending {
		t.Fatalf("unknown transaction must not change the order")
	}
	if len(checker.orders) != 1 || checker.orders[0] != o.ID {
		t.Fatalf("checker asked for orders %v, want [%s]", checker.orders, o.ID)
	}

	f.svc.reconcileBatch(context.Background(), &stubChecker{tx: &gateway.Transaction{Status: gateway.StatusPaid, Amount: o.TotalPrice}})
	if f.repo.orders[o.ID].Status != model.OrderStatusPaid {
		t.Fatalf("reconciliation did not mark the order paid")
	}
}

func TestStartPaymentReconciliation_NoChecker(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartPaymentReconciliation(ctx, nil, time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartPaymentReconciliation did not return without checker")
	}
}

func TestSaveService_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		svc  model.Service
	}{
		{name: "missing id", svc: model.Service{Name: "X"}},
		{name: "negative price", svc: model.Service{ID: "x", Name: "X", Price: -1}},
		{name: "spots overflow", svc: model.Service{ID: "x", Name: "X", SpotsTotal: 1, SpotsRemaining: 2}},
		{name: "duplicate add-on", svc: model.Service{ID: "x", Name: "X", AddOns: []model.AddOn{{Name: "SEO"}, {Name: " SEO "}}}},
		{name: "price above limit", svc: model.Service{ID: "x", Name: "X", Price: pricing.MaxPrice + 1}},
		{name: "add-ons push total above limit", svc: model.Service{ID: "x", Name: "X", Price: pricing.MaxPrice, AddOns: []model.AddOn{{Name: "SEO", Price: 1}}}},
		{name: "add-on sum overflows int64", svc: model.Service{ID: "x", Name: "X", AddOns: []model.AddOn{{Name: "A", Price: math.MaxInt64}, {Name: "B", Price: math.MaxInt64}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.SaveService(context.Background(), tt.svc); !model.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	saved, err := f.svc.SaveService(context.Background(), model.Service{ID: "seo", Name: "SEO Audit", Price: 500000, Duration: "2 weeks"})
	if err != nil {
		t.Fatalf("SaveService error: %v", err)
	}
	if saved.DeliveryEstimate == nil {
		t.Fatalf("delivery estimate not computed")
	}
}

func TestUpdateProjectProgress(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, 1)
	if _, err := f.svc.MarkPaid(context.Background(), o.ID, "REF"); err != nil {
		t.Fatalf("MarkPaid error: %v", err)
	}

	var id int64
	for k := range f.repo.projects {
		id = k
	}

	stage := "Design"
	progress := 40
	p, err := f.svc.UpdateProjectProgress(context.Background(), id, ProjectUpdate{Stage: &stage, Progress: &progress})
	if err != nil {
		t.Fatalf("UpdateProjectProgress error: %v", err)
	}
	if p.CurrentStage != "Design" || p.ProgressPercentage != 40 || p.Status != model.ProjectStatusActive {
		t.Fatalf("unexpected project: %+v", p)
	}

	progress = 100
	p, err = f.svc.UpdateProjectProgress(context.Background(), id, ProjectUpdate{Progress: &progress})
	if err != nil {
		t.Fatalf("UpdateProjectProgress error: %v", err)
	}
	if p.Status != model.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", p.Status)
	}

	paused := model.ProjectStatusPaused
	p, err = f.svc.UpdateProjectProgress(context.Background(), id, ProjectUpdate{Progress: &progress, Status: &paused})
	if err != nil || p.Status != model.ProjectStatusPaused {
		t.Fatalf("explicit status must win: %+v, %v", p, err)
	}

	progress = 101
	if _, err := f.svc.UpdateProjectProgress(context.Background(), id, ProjectUpdate{Progress: &progress}); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdminListOrders_UnknownStatus(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AdminListOrders(context.Background(), "refunded"); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
