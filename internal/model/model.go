// Package model содержит доменные сущности сервиса приёма заказов.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role определяет уровень доступа пользователя.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Customer представляет покупателя с накопительным бонусным счётом.
type Customer struct {
	ID            int64
	Login         string
	PasswordHash  []byte
	Role          Role
	LoyaltyPoints int64
	CreatedAt     time.Time
}

// Coordinates задаёт географическую точку.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Branch описывает физический филиал сети.
// City — ключ шардирования; Slug — нормализованное имя, выводимое из города.
type Branch struct {
	ID         int64
	Name       string
	Address    string
	City       string
	PostalCode string
	Location   *Coordinates
	Slug       string
	CreatedAt  time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// ValidStatus сообщает, входит ли значение в допустимое множество статусов.
func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderType описывает способ получения заказа.
type OrderType string

const (
	OrderTypePickup       OrderType = "pickup"
	OrderTypeHomeDelivery OrderType = "homeDelivery"
)

// OrderItem — одна позиция заказа. Цена хранится в центах.
type OrderItem struct {
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price"`
}

// Order описывает заказ. Денежные суммы хранятся в центах.
// Запись принадлежит ровно одной партиции, выбранной при создании,
// и никогда не переносится между партициями.
type Order struct {
	ID               uuid.UUID
	Number           string
	CustomerID       int64
	Items            []OrderItem
	SubtotalCents    int64
	TaxCents         int64
	TotalCents       int64
	PointsUsed       int64
	PointsEarned     int64
	Status           OrderStatus
	PaymentMethod    string
	Address          string
	City             string
	PostalCode       string
	OrderType        OrderType
	BranchName       string
	CustomerLocation *Coordinates
	BranchLocation   *Coordinates
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
