package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, req service.UpdateOrderRequest) (*service.OrderResult, error)
	PayOrder(ctx context.Context, id uuid.UUID, req service.PayOrderRequest) (*service.OrderResult, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*service.OrderResult, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListUnpaidOrders(ctx context.Context, branchID uuid.UUID) ([]database.Order, error)
	ListOpenOrderItemsByBranch(ctx context.Context, branchID uuid.UUID) ([]database.OrderItem, error)
	GetDailyStats(ctx context.Context, arg database.GetDailyStatsParams) (database.GetDailyStatsRow, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	store     OrderStore
	publisher events.Publisher
	now       func() time.Time
}

// NewOrderHandler creates a new OrderHandler. Every successful mutation is
// published to pub.
func NewOrderHandler(svc OrderServicer, store OrderStore, pub events.Publisher) *OrderHandler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &OrderHandler{svc: svc, store: store, publisher: pub, now: time.Now}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/unpaid", h.ListUnpaid)
	r.Get("/stats/daily", h.DailyStats)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}/pay", h.Pay)
	r.Patch("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Status        string             `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	BranchID      string             `json:"branch_id"`
	UserID        string             `json:"user_id"`
	OSNum         *int               `json:"os_num"`
	Items         []orderLineRequest `json:"items"`
}

type orderLineRequest struct {
	MenuID      string `json:"menu_id"`
	Quantity    int32  `json:"quantity"`
	OrderItemID string `json:"order_item_id"`
	Served      *bool  `json:"served"`
}

type updateOrderRequest struct {
	PaymentMethod string             `json:"payment_method"`
	Items         []orderLineRequest `json:"items"`
}

type payOrderRequest struct {
	PaymentMethod string          `json:"payment_method"`
	TotalBill     json.RawMessage `json:"total_bill"`
	TotalDiscount json.RawMessage `json:"total_discount"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"order_id"`
	OrderNumber   int32               `json:"order_number"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	State         string              `json:"state"`
	BranchID      uuid.UUID           `json:"branch_id"`
	UserID        uuid.UUID           `json:"user_id"`
	OSNum         *int                `json:"os_num,omitempty"`
	TotalBill     string              `json:"total_bill"`
	TotalDiscount string              `json:"total_discount"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	Items         []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"order_item_id"`
	MenuID      uuid.UUID `json:"menu_id"`
	MenuName    string    `json:"menu_name"`
	Quantity    int32     `json:"quantity"`
	PriceAtTime string    `json:"price_at_time"`
	Served      bool      `json:"served"`
}

type dailyStatsResponse struct {
	DineIn    int64 `json:"dine_in"`
	TakeOut   int64 `json:"take_out"`
	Cancelled int64 `json:"cancelled"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	branchID, err := uuid.Parse(req.BranchID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid branch_id")
		return
	}
	if !middleware.CanAccessBranch(claims, branchID) {
		writeError(w, http.StatusForbidden, "access denied for this branch")
		return
	}

	userID := claims.UserID
	if req.UserID != "" {
		if userID, err = uuid.Parse(req.UserID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		BranchID:      branchID,
		UserID:        userID,
		Channel:       req.Status,
		PaymentMethod: req.PaymentMethod,
		OSNum:         req.OSNum,
		Items:         toServiceLines(req.Items),
	})
	if err != nil {
		h.writeServiceError(w, "create order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	events.Emit(r.Context(), h.publisher, events.New(events.OrderCreated, resp.BranchID, resp.ID, resp))
	writeData(w, http.StatusCreated, resp)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		internalError(w, "list order items", err)
		return
	}

	writeData(w, http.StatusOK, toOrderResponse(order, items))
}

// Update handles PUT /orders/{id}.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.UpdateOrder(r.Context(), order.ID, service.UpdateOrderRequest{
		PaymentMethod: req.PaymentMethod,
		Items:         toServiceLines(req.Items),
	})
	if err != nil {
		h.writeServiceError(w, "update order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	events.Emit(r.Context(), h.publisher, events.New(events.OrderUpdated, resp.BranchID, resp.ID, resp))
	writeData(w, http.StatusOK, resp)
}

// Pay handles PATCH /orders/{id}/pay.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.PayOrder(r.Context(), order.ID, service.PayOrderRequest{
		PaymentMethod: req.PaymentMethod,
		TotalBill:     rawAmount(req.TotalBill),
		TotalDiscount: rawAmount(req.TotalDiscount),
	})
	if err != nil {
		h.writeServiceError(w, "pay order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	events.Emit(r.Context(), h.publisher, events.New(events.OrderPaid, resp.BranchID, resp.ID, resp))
	writeData(w, http.StatusOK, resp)
}

// Cancel handles PATCH /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}

	result, err := h.svc.CancelOrder(r.Context(), order.ID)
	if err != nil {
		h.writeServiceError(w, "cancel order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	events.Emit(r.Context(), h.publisher, events.New(events.OrderCancelled, resp.BranchID, resp.ID, resp))
	writeData(w, http.StatusOK, resp)
}

// ListUnpaid handles GET /orders/unpaid?branch_id=.
func (h *OrderHandler) ListUnpaid(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.queryBranch(w, r)
	if !ok {
		return
	}

	orders, err := h.store.ListUnpaidOrders(r.Context(), branchID)
	if err != nil {
		internalError(w, "list unpaid orders", err)
		return
	}
	items, err := h.store.ListOpenOrderItemsByBranch(r.Context(), branchID)
	if err != nil {
		internalError(w, "list open order items", err)
		return
	}

	byOrder := make(map[uuid.UUID][]database.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, byOrder[o.ID])
	}
	writeData(w, http.StatusOK, resp)
}

// DailyStats handles GET /orders/stats/daily?branch_id=. The window is the
// current calendar day in the server's local time.
func (h *OrderHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.queryBranch(w, r)
	if !ok {
		return
	}

	now := h.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	row, err := h.store.GetDailyStats(r.Context(), database.GetDailyStatsParams{
		BranchID: branchID,
		From:     pgtype.Timestamptz{Time: from, Valid: true},
		To:       pgtype.Timestamptz{Time: from.AddDate(0, 0, 1), Valid: true},
	})
	if err != nil {
		internalError(w, "get daily stats", err)
		return
	}

	writeData(w, http.StatusOK, dailyStatsResponse{
		DineIn:    row.DineIn,
		TakeOut:   row.TakeOut,
		Cancelled: row.Cancelled,
	})
}

// --- Helpers ---

// authorizeOrder loads the order named by the {id} URL param and checks the
// caller's branch binding against it.
func (h *OrderHandler) authorizeOrder(w http.ResponseWriter, r *http.Request) (database.Order, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return database.Order{}, false
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return database.Order{}, false
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return database.Order{}, false
		}
		internalError(w, "get order", err)
		return database.Order{}, false
	}

	if !middleware.CanAccessBranch(claims, order.BranchID) {
		writeError(w, http.StatusForbidden, "access denied for this branch")
		return database.Order{}, false
	}
	return order, true
}

func (h *OrderHandler) queryBranch(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	branchID, err := uuid.Parse(r.URL.Query().Get("branch_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "branch_id is required")
		return uuid.Nil, false
	}
	return branchID, true
}

func (h *OrderHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOrderPaid), errors.Is(err, service.ErrOrderCancelled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		internalError(w, op, err)
	}
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidChannel) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrInvalidOSNum) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrDiscountExceedsBill) ||
		errors.Is(err, service.ErrUnknownReference)
}

func toServiceLines(items []orderLineRequest) []service.OrderLineRequest {
	out := make([]service.OrderLineRequest, len(items))
	for i, it := range items {
		out[i] = service.OrderLineRequest{
			MenuItemID:  it.MenuID,
			Quantity:    it.Quantity,
			OrderItemID: it.OrderItemID,
			Served:      it.Served,
		}
	}
	return out
}

// rawAmount accepts an amount sent either as a JSON number or a string.
func rawAmount(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Channel,
		PaymentMethod: o.PaymentMethod,
		State:         o.State,
		BranchID:      o.BranchID,
		UserID:        o.UserID,
		TotalBill:     numericToString(o.TotalBill),
		TotalDiscount: numericToString(o.TotalDiscount),
		CreatedAt:     o.CreatedAt.Time,
		Items:         make([]orderItemResponse, len(items)),
	}
	if o.OsNum.Valid {
		n := int(o.OsNum.Int32)
		resp.OSNum = &n
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		resp.PaidAt = &t
	}
	for i, it := range items {
		resp.Items[i] = orderItemResponse{
			ID:          it.ID,
			MenuID:      it.MenuItemID,
			MenuName:    it.MenuName,
			Quantity:    it.Quantity,
			PriceAtTime: numericToString(it.PriceAtTime),
			Served:      it.Served,
		}
	}
	return resp
}
