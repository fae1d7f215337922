// Package model содержит доменные сущности витрины веб-агентства.
package model

import "time"

// Role описывает роль пользователя портала.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// User представляет зарегистрированного клиента или администратора.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// AddOn описывает платную опцию, привязанную к конкретной услуге.
type AddOn struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Service описывает пакет услуг агентства (например, «Landing Page»).
type Service struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Price            int64      `json:"price"`
	OriginalPrice    int64      `json:"original_price"`
	Duration         string     `json:"duration"`
	DeliveryEstimate *time.Time `json:"delivery_estimate,omitempty"`
	SpotsRemaining   int        `json:"spots_remaining"`
	SpotsTotal       int        `json:"spots_total"`
	AddOns           []AddOn    `json:"add_ons"`
	Features         []string   `json:"features"`
	Category         string     `json:"category"`
	Industries       []string   `json:"industries"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Contact содержит контактные данные и описание проекта, собираемые при оформлении.
type Contact struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Company        string `json:"company,omitempty"`
	ProjectDetails string `json:"project_details,omitempty"`
}

// CheckoutSession хранит незавершённое оформление заказа между перезагрузками и авторизацией.
type CheckoutSession struct {
	Token       string    `json:"token"`
	Service     Service   `json:"service"`
	AddOns      []string  `json:"add_ons"`
	Installment bool      `json:"installment"`
	TotalPrice  int64     `json:"total_price"`
	Contact     Contact   `json:"contact"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OrderStatus описывает состояние заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// Valid проверяет, что статус входит в закрытое перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

// Order описывает заказ с зафиксированной на момент покупки ценой.
type Order struct {
	ID               string      `json:"id"`
	UserID           int64       `json:"user_id"`
	ServiceID        string      `json:"service_id"`
	ServiceName      string      `json:"service_name"`
	AddOns           []string    `json:"add_ons"`
	Installment      bool        `json:"installment"`
	TotalPrice       int64       `json:"total_price"`
	Status           OrderStatus `json:"status"`
	CustomRequest    string      `json:"custom_request,omitempty"`
	Contact          Contact     `json:"contact"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	PaymentURL       string      `json:"payment_url,omitempty"`
	PaymentExpiresAt *time.Time  `json:"payment_expires_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	ProcessedAt      *time.Time  `json:"processed_at,omitempty"`
}

// ProjectStatus описывает состояние работ по проекту.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"
)

// Valid проверяет, что статус проекта известен.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusPaused, ProjectStatusCompleted:
		return true
	}
	return false
}

// Project создаётся один раз на оплаченный заказ и отражает ход работ.
type Project struct {
	ID                 int64         `json:"id"`
	OrderID            string        `json:"order_id"`
	UserID             int64         `json:"user_id"`
	ServiceName        string        `json:"service_name"`
	CurrentStage       string        `json:"current_stage"`
	ProgressPercentage int           `json:"progress_percentage"`
	DueDate            *time.Time    `json:"due_date,omitempty"`
	Status             ProjectStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// ClientDashboard содержит сводку для личного кабинета клиента.
type ClientDashboard struct {
	ActiveProjects int   `json:"active_projects"`
	PendingOrders  int   `json:"pending_orders"`
	TotalSpent     int64 `json:"total_spent"`
}

// AdminDashboard содержит сводку для панели администратора.
type AdminDashboard struct {
	PendingOrders   int   `json:"pending_orders"`
	PaidOrders      int   `json:"paid_orders"`
	CancelledOrders int   `json:"cancelled_orders"`
	Revenue         int64 `json:"revenue"`
	ActiveProjects  int   `json:"active_projects"`
	SoldOutServices int   `json:"sold_out_services"`
}
