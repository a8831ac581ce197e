// Package service реализует бизнес-логику сервиса приёма заказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderhub-system/internal/address"
	"github.com/mmeshcher/orderhub-system/internal/locator"
	"github.com/mmeshcher/orderhub-system/internal/loyalty"
	"github.com/mmeshcher/orderhub-system/internal/model"
	"github.com/mmeshcher/orderhub-system/internal/repository"
	"github.com/mmeshcher/orderhub-system/internal/shard"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden возвращается, когда операция недоступна текущему пользователю.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError описывает ошибку валидации конкретного поля запроса.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Msg)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error)
	ApplyLoyaltyDelta(ctx context.Context, customerID, pointsUsed, pointsEarned int64) error
	CreateBranch(ctx context.Context, b *model.Branch) (int64, error)
	UpdateBranch(ctx context.Context, b *model.Branch) error
	DeleteBranch(ctx context.Context, id int64) error
	ListBranches(ctx context.Context) ([]model.Branch, error)
	InsertOrder(ctx context.Context, partition string, o *model.Order) error
	UpdateOrder(ctx context.Context, partition string, o *model.Order) error
}

// Router выдаёт дескриптор партиции для города филиала.
type Router interface {
	PartitionFor(ctx context.Context, cityRaw string) (*shard.Partition, error)
}

// Sequence выдаёт следующий глобальный номер заказа.
type Sequence interface {
	Next(ctx context.Context) (string, error)
}

// Locator определяет обслуживающий филиал; nil означает отсутствие совпадения.
type Locator interface {
	Locate(ctx context.Context, req locator.Request) *model.Branch
}

// Aggregator выполняет чтение заказов поверх всех партиций.
type Aggregator interface {
	ListAll(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error)
	FindByNumber(ctx context.Context, number string) (*model.Order, string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, string, error)
}

// Geocoder переводит адрес в координаты; используется только как
// необязательное обогащение данных филиала.
type Geocoder interface {
	Geocode(ctx context.Context, addr string) (*model.Coordinates, error)
}

// Service содержит бизнес-логику сервиса приёма заказов.
type Service struct {
	repo     Repository
	router   Router
	sequence Sequence
	locator  Locator
	agg      Aggregator
	geocoder Geocoder
	logger   *zap.Logger
}

// NewService создаёт сервис с указанными зависимостями.
// Геокодер может быть nil: обогащение координат филиалов тогда отключено.
func NewService(repo Repository, router Router, seq Sequence, loc Locator, agg Aggregator, geocoder Geocoder, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		router:   router,
		sequence: seq,
		locator:  loc,
		agg:      agg,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// nonFatal выполняет необязательную операцию: ошибка логируется,
// вызывающий продолжает работу. Отличает best-effort побочные эффекты
// от операций, сбой которых обязан прервать вызывающего.
func (s *Service) nonFatal(op string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("non-fatal operation failed", zap.String("op", op), zap.Error(err))
	}
}

// RegisterCustomer регистрирует нового покупателя.
func (s *Service) RegisterCustomer(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	return s.repo.CreateCustomer(ctx, login, hashed, model.RoleCustomer)
}

// AuthenticateCustomer проверяет логин и пароль и возвращает покупателя.
func (s *Service) AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error) {
	c, err := s.repo.GetCustomerByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(c.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return c, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetBalance возвращает текущий бонусный баланс покупателя.
func (s *Service) GetBalance(ctx context.Context, customerID int64) (int64, error) {
	c, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return c.LoyaltyPoints, nil
}

// ItemRequest — одна позиция входящего заказа. Цена в долларах.
type ItemRequest struct {
	Name     string
	Quantity int64
	Price    float64
}

// CreateOrderRequest — входящий запрос на создание заказа.
// Филиал задаётся либо явно городом, либо координатами покупателя;
// адрес может быть свободным текстом либо явной парой город/индекс.
type CreateOrderRequest struct {
	CustomerID    int64
	Items         []ItemRequest
	Total         float64
	PaymentMethod string
	Address       string
	City          string
	PostalCode    string
	PointsUsed    int64
	BranchCity    string
	Coords        *model.Coordinates
	OrderType     model.OrderType
}

func (req *CreateOrderRequest) validate() error {
	if req.CustomerID <= 0 {
		return &ValidationError{Field: "customerId", Msg: "required"}
	}
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Msg: "must not be empty"}
	}
	for _, it := range req.Items {
		if it.Name == "" {
			return &ValidationError{Field: "items.name", Msg: "required"}
		}
		if it.Quantity < 1 {
			return &ValidationError{Field: "items.quantity", Msg: "must be at least 1"}
		}
		if it.Price < 0 {
			return &ValidationError{Field: "items.price", Msg: "must not be negative"}
		}
	}
	if req.Total < 0 {
		return &ValidationError{Field: "total", Msg: "must not be negative"}
	}
	if req.PointsUsed < 0 {
		return &ValidationError{Field: "pointsUsed", Msg: "must not be negative"}
	}
	if req.OrderType != "" && req.OrderType != model.OrderTypePickup && req.OrderType != model.OrderTypeHomeDelivery {
		return &ValidationError{Field: "orderType", Msg: "unknown order type"}
	}
	return nil
}

// CreateOrder создаёт заказ: определяет филиал и партицию, выдаёт номер,
// рассчитывает бонусы, сохраняет запись и применяет дельту баланса.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	city, postalCode := req.City, req.PostalCode
	if req.Address != "" && (city == "" || postalCode == "") {
		parsed := address.Parse(req.Address)
		if city == "" {
			city = parsed.City
		}
		if postalCode == "" {
			postalCode = parsed.PostalCode
		}
	}

	// Явно указанный город филиала имеет приоритет над городом покупателя.
	locateCity := req.BranchCity
	if locateCity == "" {
		locateCity = city
	}

	branch := s.locator.Locate(ctx, locator.Request{Coords: req.Coords, City: locateCity})

	branchCity := ""
	if branch != nil {
		branchCity = branch.City
	}

	partition, err := s.router.PartitionFor(ctx, branchCity)
	if err != nil {
		return nil, err
	}

	number, err := s.sequence.Next(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.OrderItem{
			Name:       it.Name,
			Quantity:   it.Quantity,
			PriceCents: loyalty.Cents(it.Price),
		})
	}

	customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
	if err != nil && !errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, err
	}

	// Отсутствие записи покупателя не блокирует создание заказа:
	// бонусы не списываются, баланс не обновляется.
	var quote loyalty.Quote
	if customer != nil {
		quote = loyalty.Calculate(items, loyalty.Cents(req.Total), req.PointsUsed, customer.LoyaltyPoints)
	} else {
		s.logger.Warn("customer not found, skipping loyalty ledger", zap.Int64("customerID", req.CustomerID))
		quote = loyalty.Calculate(items, loyalty.Cents(req.Total), 0, 0)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = model.OrderTypePickup
	}

	now := time.Now().UTC()
	o := &model.Order{
		ID:               uuid.New(),
		Number:           number,
		CustomerID:       req.CustomerID,
		Items:            items,
		SubtotalCents:    quote.SubtotalCents,
		TaxCents:         quote.TaxCents,
		TotalCents:       quote.TotalCents,
		PointsUsed:       quote.PointsUsed,
		PointsEarned:     quote.PointsEarned,
		Status:           model.OrderStatusPending,
		PaymentMethod:    req.PaymentMethod,
		Address:          req.Address,
		City:             city,
		PostalCode:       postalCode,
		OrderType:        orderType,
		CustomerLocation: req.Coords,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if branch != nil {
		o.BranchName = branch.Name
		o.BranchLocation = branch.Location
	}

	if err := s.repo.InsertOrder(ctx, partition.Name, o); err != nil {
		return nil, err
	}

	// Без зафиксированной оплаты заказ остаётся неоплаченным,
	// дельта баланса при создании не применяется.
	if customer != nil && req.PaymentMethod != "" {
		if err := s.repo.ApplyLoyaltyDelta(ctx, customer.ID, quote.PointsUsed, quote.PointsEarned); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// UpdateOrderRequest — частичное обновление заказа. Nil-поля не меняются.
type UpdateOrderRequest struct {
	Total         *float64
	PointsUsed    *int64
	PaymentMethod *string
	Address       *string
	Items         []ItemRequest
	Status        *model.OrderStatus
}

// UpdateOrder применяет частичное обновление заказа от имени указанного
// пользователя. Изменение состава, суммы или списанных баллов пересчитывает
// бонусы и применяет дельту баланса; смена статуса доступна только администратору.
func (s *Service) UpdateOrder(ctx context.Context, actorID int64, actorRole model.Role, number string, req UpdateOrderRequest) (*model.Order, error) {
	o, partition, err := s.agg.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if actorRole != model.RoleAdmin && o.CustomerID != actorID {
		return nil, ErrForbidden
	}
	if req.Status != nil && actorRole != model.RoleAdmin {
		return nil, ErrForbidden
	}

	if req.Status != nil {
		if !model.ValidStatus(*req.Status) {
			return nil, &ValidationError{Field: "status", Msg: "unknown status"}
		}
		o.Status = *req.Status
	}
	if req.PaymentMethod != nil {
		o.PaymentMethod = *req.PaymentMethod
	}
	if req.Address != nil {
		o.Address = *req.Address
		parsed := address.Parse(*req.Address)
		o.City = parsed.City
		o.PostalCode = parsed.PostalCode
	}

	recalc := req.Items != nil || req.Total != nil || req.PointsUsed != nil

	if req.Items != nil {
		items := make([]model.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			if it.Name == "" {
				return nil, &ValidationError{Field: "items.name", Msg: "required"}
			}
			if it.Quantity < 1 {
				return nil, &ValidationError{Field: "items.quantity", Msg: "must be at least 1"}
			}
			if it.Price < 0 {
				return nil, &ValidationError{Field: "items.price", Msg: "must not be negative"}
			}
			items = append(items, model.OrderItem{
				Name:       it.Name,
				Quantity:   it.Quantity,
				PriceCents: loyalty.Cents(it.Price),
			})
		}
		o.Items = items
	}

	if recalc {
		// Налог — сквозное значение: без новой заявленной суммы ранее
		// зафиксированный налог переносится как есть и не выводится
		// заново из итога со скидкой.
		declaredTotal := loyalty.Subtotal(o.Items) + o.TaxCents
		if req.Total != nil {
			if *req.Total < 0 {
				return nil, &ValidationError{Field: "total", Msg: "must not be negative"}
			}
			declaredTotal = loyalty.Cents(*req.Total)
		}

		requestedPoints := o.PointsUsed
		if req.PointsUsed != nil {
			if *req.PointsUsed < 0 {
				return nil, &ValidationError{Field: "pointsUsed", Msg: "must not be negative"}
			}
			requestedPoints = *req.PointsUsed
		}

		customer, err := s.repo.GetCustomerByID(ctx, o.CustomerID)
		if err != nil && !errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, err
		}

		var quote loyalty.Quote
		if customer != nil {
			quote = loyalty.Calculate(o.Items, declaredTotal, requestedPoints, customer.LoyaltyPoints)
		} else {
			s.logger.Warn("customer not found, skipping loyalty ledger", zap.Int64("customerID", o.CustomerID))
			quote = loyalty.Calculate(o.Items, declaredTotal, 0, 0)
		}

		o.SubtotalCents = quote.SubtotalCents
		o.TaxCents = quote.TaxCents
		o.TotalCents = quote.TotalCents
		o.PointsUsed = quote.PointsUsed
		o.PointsEarned = quote.PointsEarned

		o.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateOrder(ctx, partition, o); err != nil {
			return nil, err
		}

		if customer != nil {
			if err := s.repo.ApplyLoyaltyDelta(ctx, customer.ID, quote.PointsUsed, quote.PointsEarned); err != nil {
				return nil, err
			}
		}

		return o, nil
	}

	o.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateOrder(ctx, partition, o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrder возвращает заказ по номеру, опрашивая все партиции.
func (s *Service) GetOrder(ctx context.Context, number string) (*model.Order, error) {
	o, _, err := s.agg.FindByNumber(ctx, number)
	return o, err
}

// ListOrders возвращает объединённый список заказов по всем партициям.
func (s *Service) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	return s.agg.ListAll(ctx, filter)
}

// CreateBranch сохраняет филиал. Если координаты не заданы, делается
// одна необязательная попытка геокодирования адреса.
func (s *Service) CreateBranch(ctx context.Context, b *model.Branch) (int64, error) {
	if b.City == "" {
		return 0, &ValidationError{Field: "city", Msg: "required"}
	}

	s.enrichLocation(ctx, b)

	id, err := s.repo.CreateBranch(ctx, b)
	if err != nil {
		return 0, err
	}
	b.ID = id
	b.Slug = shard.NormalizeCity(b.City)
	return id, nil
}

// UpdateBranch обновляет филиал с тем же необязательным геокодированием.
func (s *Service) UpdateBranch(ctx context.Context, b *model.Branch) error {
	if b.City == "" {
		return &ValidationError{Field: "city", Msg: "required"}
	}

	s.enrichLocation(ctx, b)
	return s.repo.UpdateBranch(ctx, b)
}

// DeleteBranch удаляет филиал. Уже созданные партиции его города не трогаются.
func (s *Service) DeleteBranch(ctx context.Context, id int64) error {
	return s.repo.DeleteBranch(ctx, id)
}

// ListBranches возвращает справочник филиалов.
func (s *Service) ListBranches(ctx context.Context) ([]model.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) enrichLocation(ctx context.Context, b *model.Branch) {
	if b.Location != nil || s.geocoder == nil {
		return
	}

	s.nonFatal("geocode branch", func() error {
		coords, err := s.geocoder.Geocode(ctx, fmt.Sprintf("%s, %s, %s", b.Address, b.City, b.PostalCode))
		if err != nil {
			return err
		}
		b.Location = coords
		return nil
	})
}
