// Package handler содержит HTTP-обработчики API сервиса приёма заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderhub-system/internal/loyalty"
	"github.com/mmeshcher/orderhub-system/internal/middleware"
	"github.com/mmeshcher/orderhub-system/internal/model"
	"github.com/mmeshcher/orderhub-system/internal/repository"
	"github.com/mmeshcher/orderhub-system/internal/service"
	"github.com/mmeshcher/orderhub-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, login, password string) (int64, error)
	AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error)
	GetBalance(ctx context.Context, customerID int64) (int64, error)
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*model.Order, error)
	UpdateOrder(ctx context.Context, actorID int64, actorRole model.Role, number string, req service.UpdateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, number string) (*model.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error)
	CreateBranch(ctx context.Context, b *model.Branch) (int64, error)
	UpdateBranch(ctx context.Context, b *model.Branch) error
	DeleteBranch(ctx context.Context, id int64) error
	ListBranches(ctx context.Context) ([]model.Branch, error)
}

// Handler реализует HTTP-обработчики API сервиса приёма заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID, err := h.service.RegisterCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, customerID, model.RoleCustomer)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию покупателя и установку cookie.
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

	customer, err := h.service.AuthenticateCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, customer.ID, customer.Role)
	w.WriteHeader(http.StatusOK)
}

type orderItemRequest struct {
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

type createOrderRequest struct {
	Items         []orderItemRequest `json:"items"`
	Total         *float64           `json:"total"`
	PaymentMethod string             `json:"paymentMethod"`
	Address       string             `json:"address"`
	City          string             `json:"city"`
	PostalCode    string             `json:"postalCode"`
	PointsUsed    int64              `json:"pointsUsed"`
	BranchCity    string             `json:"branchCity"`
	Location      *model.Coordinates `json:"location"`
	OrderType     string             `json:"orderType"`
}

type orderItemResponse struct {
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	OrderID          string              `json:"orderId"`
	Items            []orderItemResponse `json:"items"`
	Subtotal         float64             `json:"subtotal"`
	Tax              float64             `json:"tax"`
	Total            float64             `json:"total"`
	PointsUsed       int64               `json:"pointsUsed"`
	PointsEarned     int64               `json:"pointsEarned"`
	Status           string              `json:"status"`
	PaymentMethod    string              `json:"paymentMethod,omitempty"`
	Address          string              `json:"address,omitempty"`
	City             string              `json:"city,omitempty"`
	PostalCode       string              `json:"postalCode,omitempty"`
	OrderType        string              `json:"orderType"`
	BranchName       string              `json:"branchName,omitempty"`
	CustomerLocation *model.Coordinates  `json:"customerLocation,omitempty"`
	BranchLocation   *model.Coordinates  `json:"branchLocation,omitempty"`
	CreatedAt        string              `json:"createdAt"`
	UpdatedAt        string              `json:"updatedAt"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    loyalty.Dollars(it.PriceCents),
		})
	}

	return orderResponse{
		ID:               o.ID.String(),
		OrderID:          o.Number,
		Items:            items,
		Subtotal:         loyalty.Dollars(o.SubtotalCents),
		Tax:              loyalty.Dollars(o.TaxCents),
		Total:            loyalty.Dollars(o.TotalCents),
		PointsUsed:       o.PointsUsed,
		PointsEarned:     o.PointsEarned,
		Status:           string(o.Status),
		PaymentMethod:    o.PaymentMethod,
		Address:          o.Address,
		City:             o.City,
		PostalCode:       o.PostalCode,
		OrderType:        string(o.OrderType),
		BranchName:       o.BranchName,
		CustomerLocation: o.CustomerLocation,
		BranchLocation:   o.BranchLocation,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        o.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateOrder принимает новый заказ от текущего покупателя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Total == nil {
		http.Error(w, "invalid field total: required", http.StatusBadRequest)
		return
	}

	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}

	o, err := h.service.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerID:    customerID,
		Items:         items,
		Total:         *req.Total,
		PaymentMethod: req.PaymentMethod,
		Address:       req.Address,
		City:          req.City,
		PostalCode:    req.PostalCode,
		PointsUsed:    req.PointsUsed,
		BranchCity:    req.BranchCity,
		Coords:        req.Location,
		OrderType:     model.OrderType(req.OrderType),
	})
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			http.Error(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create order error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toOrderResponse(o)); err != nil {
		h.logger.Error("encode order error", zap.Error(err))
	}
}

// GetOrders возвращает список заказов: покупатель видит свои,
// администратор — все, с необязательным фильтром по статусу.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	filter := repository.OrderFilter{CustomerID: customerID}
	if role == model.RoleAdmin {
		filter.CustomerID = 0
	}
	if status := r.URL.Query().Get("status"); status != "" {
		if !model.ValidStatus(model.OrderStatus(status)) {
			http.Error(w, "invalid field status: unknown status", http.StatusBadRequest)
			return
		}
		filter.Status = model.OrderStatus(status)
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetOrder возвращает заказ по номеру. Доступен владельцу и администратору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	number := chi.URLParam(r, "number")
	if !validation.IsValidOrderNumber(number) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	o, err := h.service.GetOrder(r.Context(), number)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.String("order", number))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if role != model.RoleAdmin && o.CustomerID != customerID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toOrderResponse(o)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type updateOrderRequest struct {
	Total         *float64           `json:"total"`
	PointsUsed    *int64             `json:"pointsUsed"`
	PaymentMethod *string            `json:"paymentMethod"`
	Address       *string            `json:"address"`
	Items         []orderItemRequest `json:"items"`
	Status        *string            `json:"status"`
}

// UpdateOrder применяет частичное обновление заказа.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	number := chi.URLParam(r, "number")
	if !validation.IsValidOrderNumber(number) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	upd := service.UpdateOrderRequest{
		Total:         req.Total,
		PointsUsed:    req.PointsUsed,
		PaymentMethod: req.PaymentMethod,
		Address:       req.Address,
	}
	if req.Items != nil {
		items := make([]service.ItemRequest, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, service.ItemRequest{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
		}
		upd.Items = items
	}
	if req.Status != nil {
		status := model.OrderStatus(*req.Status)
		upd.Status = &status
	}

	o, err := h.service.UpdateOrder(r.Context(), customerID, role, number, upd)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			http.Error(w, vErr.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("update order error", zap.Error(err), zap.String("order", number))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toOrderResponse(o)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type balanceResponse struct {
	Points int64 `json:"points"`
}

// GetBalance возвращает бонусный баланс текущего покупателя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	points, err := h.service.GetBalance(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(balanceResponse{Points: points}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type branchRequest struct {
	Name       string             `json:"name"`
	Address    string             `json:"address"`
	City       string             `json:"city"`
	PostalCode string             `json:"postalCode"`
	Location   *model.Coordinates `json:"location"`
}

type branchResponse struct {
	ID         int64              `json:"id"`
	Name       string             `json:"name"`
	Address    string             `json:"address,omitempty"`
	City       string             `json:"city"`
	PostalCode string             `json:"postalCode,omitempty"`
	Location   *model.Coordinates `json:"location,omitempty"`
	Slug       string             `json:"slug"`
}

// CreateBranch добавляет филиал. Только для администратора.
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.City == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b := &model.Branch{
		Name:       req.Name,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Location:   req.Location,
	}

	if _, err := h.service.CreateBranch(r.Context(), b); err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			http.Error(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create branch error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toBranchResponse(b)); err != nil {
		h.logger.Error("encode branch error", zap.Error(err))
	}
}

// GetBranches возвращает справочник филиалов.
func (h *Handler) GetBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.service.ListBranches(r.Context())
	if err != nil {
		h.logger.Error("list branches error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]branchResponse, 0, len(branches))
	for i := range branches {
		resp = append(resp, toBranchResponse(&branches[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// UpdateBranch обновляет филиал. Только для администратора.
func (h *Handler) UpdateBranch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b := &model.Branch{
		ID:         id,
		Name:       req.Name,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Location:   req.Location,
	}

	if err := h.service.UpdateBranch(r.Context(), b); err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			http.Error(w, vErr.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrBranchNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update branch error", zap.Error(err), zap.Int64("branchID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteBranch удаляет филиал. Только для администратора.
func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteBranch(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrBranchNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete branch error", zap.Error(err), zap.Int64("branchID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toBranchResponse(b *model.Branch) branchResponse {
	return branchResponse{
		ID:         b.ID,
		Name:       b.Name,
		Address:    b.Address,
		City:       b.City,
		PostalCode: b.PostalCode,
		Location:   b.Location,
		Slug:       b.Slug,
	}
}
