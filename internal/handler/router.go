package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/webagency/internal/middleware"
	"github.com/mmeshcher/webagency/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics)

	r.Handle("/metrics", custommiddleware.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Get("/services", h.ListServices)
		r.Get("/services/{id}", h.GetService)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/sessions", h.StartCheckout)
			r.Get("/sessions/{token}", h.GetCheckout)
			r.Patch("/sessions/{token}", h.UpdateCheckout)
			r.Get("/resume", h.ResumeCheckout)
		})

		r.Post("/payments/callback", h.PaymentCallback)
		r.Post("/payments/mercadopago", h.MercadoPagoNotification)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/orders/{id}/status", h.GetOrderStatus)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Post("/orders/{id}/payment", h.ReactivatePayment)

			r.Get("/projects", h.GetProjects)
			r.Get("/dashboard", h.GetDashboard)

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRoles(model.RoleAdmin))

				r.Get("/orders", h.AdminListOrders)
				r.Post("/orders/{id}/cancel", h.AdminCancelOrder)
				r.Put("/services", h.SaveService)
				r.Get("/projects", h.AdminListProjects)
				r.Patch("/projects/{id}", h.UpdateProject)
				r.Get("/dashboard", h.AdminDashboard)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
