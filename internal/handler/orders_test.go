package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/auth"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/handler"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/shopspring/decimal"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	updateFn func(ctx context.Context, id uuid.UUID, req service.UpdateOrderRequest) (*service.OrderResult, error)
	payFn    func(ctx context.Context, id uuid.UUID, req service.PayOrderRequest) (*service.OrderResult, error)
	cancelFn func(ctx context.Context, id uuid.UUID) (*service.OrderResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
	return m.createFn(ctx, req)
}

func (m *mockOrderService) UpdateOrder(ctx context.Context, id uuid.UUID, req service.UpdateOrderRequest) (*service.OrderResult, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockOrderService) PayOrder(ctx context.Context, id uuid.UUID, req service.PayOrderRequest) (*service.OrderResult, error) {
	return m.payFn(ctx, id, req)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, id uuid.UUID) (*service.OrderResult, error) {
	return m.cancelFn(ctx, id)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	orders map[uuid.UUID]database.Order
	items  []database.OrderItem
	stats  database.GetDailyStatsRow

	statsArg database.GetDailyStatsParams
}

func (m *mockOrderStore) GetOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(_ context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockOrderStore) ListUnpaidOrders(_ context.Context, branchID uuid.UUID) ([]database.Order, error) {
	var out []database.Order
	for _, o := range m.orders {
		if o.BranchID == branchID && o.State == "OPEN" {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderStore) ListOpenOrderItemsByBranch(_ context.Context, branchID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range m.items {
		if o, ok := m.orders[it.OrderID]; ok && o.BranchID == branchID && o.State == "OPEN" {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockOrderStore) GetDailyStats(_ context.Context, arg database.GetDailyStatsParams) (database.GetDailyStatsRow, error) {
	m.statsArg = arg
	return m.stats, nil
}

// --- Recording publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// --- Fixture ---

func numeric(s string) pgtype.Numeric {
	return database.DecimalToNumeric(decimal.RequireFromString(s))
}

type orderFixture struct {
	branchID uuid.UUID
	order    database.Order
	item     database.OrderItem
	svc      *mockOrderService
	store    *mockOrderStore
	pub      *recordingPublisher
	router   *chi.Mux
}

func newOrderFixture() *orderFixture {
	branchID := uuid.New()
	order := database.Order{
		ID:            uuid.New(),
		BranchID:      branchID,
		UserID:        uuid.New(),
		OrderNumber:   7,
		Channel:       "Dine In",
		PaymentMethod: "Cash",
		State:         "OPEN",
		OsNum:         pgtype.Int4{Int32: 101, Valid: true},
		TotalBill:     numeric("0"),
		TotalDiscount: numeric("0"),
	}
	item := database.OrderItem{
		ID:          uuid.New(),
		OrderID:     order.ID,
		MenuItemID:  uuid.New(),
		MenuName:    "Chicken Adobo",
		Quantity:    2,
		PriceAtTime: numeric("250"),
	}
	f := &orderFixture{
		branchID: branchID,
		order:    order,
		item:     item,
		svc:      &mockOrderService{},
		store: &mockOrderStore{
			orders: map[uuid.UUID]database.Order{order.ID: order},
			items:  []database.OrderItem{item},
		},
		pub: &recordingPublisher{},
	}
	h := handler.NewOrderHandler(f.svc, f.store, f.pub)
	f.router = chi.NewRouter()
	f.router.Route("/orders", h.RegisterRoutes)
	return f
}

func (f *orderFixture) do(t *testing.T, claims *auth.Claims, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *orderFixture) cashier() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), BranchID: f.branchID, Role: "CASHIER"}
}

// --- Tests ---

func TestCreateOrder_ReturnsFullOrderAndPublishes(t *testing.T) {
	f := newOrderFixture()
	claims := f.cashier()
	menuID := uuid.New()

	var got service.CreateOrderRequest
	f.svc.createFn = func(_ context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
		got = req
		return &service.OrderResult{Order: f.order, Items: []database.OrderItem{f.item}}, nil
	}

	rr := f.do(t, claims, http.MethodPost, "/orders", map[string]interface{}{
		"status":         "Dine In",
		"payment_method": "Cash",
		"branch_id":      f.branchID.String(),
		"user_id":        claims.UserID.String(),
		"os_num":         101,
		"items":          []map[string]interface{}{{"menu_id": menuID.String(), "quantity": 2}},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body=%s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	// The body decodes into the shape the terminal consumes.
	var order repository.Order
	decodeData(t, rr, &order)
	if order.ID != f.order.ID || order.State != "OPEN" || order.OSNum == nil || *order.OSNum != 101 {
		t.Errorf("unexpected order: %+v", order)
	}
	if len(order.Items) != 1 || !order.Items[0].PriceAtTime.Equal(decimal.NewFromInt(250)) {
		t.Errorf("unexpected items: %+v", order.Items)
	}

	if got.Channel != "Dine In" || got.BranchID != f.branchID || got.UserID != claims.UserID {
		t.Errorf("service request: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].MenuItemID != menuID.String() || got.Items[0].Quantity != 2 {
		t.Errorf("service items: %+v", got.Items)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != events.OrderCreated {
		t.Errorf("events: got %v", types)
	}
}

func TestCreateOrder_ValidationError(t *testing.T) {
	f := newOrderFixture()
	f.svc.createFn = func(context.Context, service.CreateOrderRequest) (*service.OrderResult, error) {
		return nil, service.ErrMenuItemNotFound
	}

	rr := f.do(t, f.cashier(), http.MethodPost, "/orders", map[string]interface{}{
		"status":         "Dine In",
		"payment_method": "Cash",
		"branch_id":      f.branchID.String(),
		"items":          []map[string]interface{}{{"menu_id": uuid.NewString(), "quantity": 1}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if len(f.pub.types()) != 0 {
		t.Error("failed create must not publish")
	}
}

func TestCreateOrder_OtherBranchForbidden(t *testing.T) {
	f := newOrderFixture()
	rr := f.do(t, f.cashier(), http.MethodPost, "/orders", map[string]interface{}{
		"status":         "Dine In",
		"payment_method": "Cash",
		"branch_id":      uuid.NewString(),
		"items":          []map[string]interface{}{{"menu_id": uuid.NewString(), "quantity": 1}},
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	f := newOrderFixture()
	rr := f.do(t, nil, http.MethodPost, "/orders", map[string]interface{}{})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestGetOrder(t *testing.T) {
	f := newOrderFixture()

	rr := f.do(t, f.cashier(), http.MethodGet, "/orders/"+f.order.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var order repository.Order
	decodeData(t, rr, &order)
	if len(order.Items) != 1 || order.Items[0].Name != "Chicken Adobo" {
		t.Errorf("items: %+v", order.Items)
	}

	rr = f.do(t, f.cashier(), http.MethodGet, "/orders/"+uuid.NewString(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing order: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = f.do(t, f.cashier(), http.MethodGet, "/orders/not-a-uuid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	stranger := &auth.Claims{UserID: uuid.New(), BranchID: uuid.New(), Role: "CASHIER"}
	rr = f.do(t, stranger, http.MethodGet, "/orders/"+f.order.ID.String(), nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("other branch cashier: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestUpdateOrder(t *testing.T) {
	f := newOrderFixture()
	served := true
	var got service.UpdateOrderRequest
	f.svc.updateFn = func(_ context.Context, id uuid.UUID, req service.UpdateOrderRequest) (*service.OrderResult, error) {
		got = req
		return &service.OrderResult{Order: f.order, Items: []database.OrderItem{f.item}}, nil
	}

	rr := f.do(t, f.cashier(), http.MethodPut, "/orders/"+f.order.ID.String(), map[string]interface{}{
		"payment_method": "E-Wallet",
		"items": []map[string]interface{}{
			{"menu_id": f.item.MenuItemID.String(), "quantity": 3, "order_item_id": f.item.ID.String(), "served": served},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got.PaymentMethod != "E-Wallet" || len(got.Items) != 1 {
		t.Fatalf("service request: %+v", got)
	}
	line := got.Items[0]
	if line.OrderItemID != f.item.ID.String() || line.Served == nil || !*line.Served || line.Quantity != 3 {
		t.Errorf("line: %+v", line)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != events.OrderUpdated {
		t.Errorf("events: got %v", types)
	}
}

func TestPayOrder_AcceptsStringOrNumberAmounts(t *testing.T) {
	f := newOrderFixture()
	var got []service.PayOrderRequest
	f.svc.payFn = func(_ context.Context, id uuid.UUID, req service.PayOrderRequest) (*service.OrderResult, error) {
		got = append(got, req)
		paid := f.order
		paid.State = "PAID"
		return &service.OrderResult{Order: paid}, nil
	}

	for _, body := range []map[string]interface{}{
		{"payment_method": "Cash", "total_bill": "500.00", "total_discount": "100"},
		{"payment_method": "Cash", "total_bill": 500, "total_discount": 100},
	} {
		rr := f.do(t, f.cashier(), http.MethodPatch, "/orders/"+f.order.ID.String()+"/pay", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("status: got %d, want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
		}
	}

	if got[0].TotalBill != "500.00" || got[0].TotalDiscount != "100" {
		t.Errorf("string amounts: %+v", got[0])
	}
	if got[1].TotalBill != "500" || got[1].TotalDiscount != "100" {
		t.Errorf("number amounts: %+v", got[1])
	}
	if types := f.pub.types(); len(types) != 2 || types[0] != events.OrderPaid {
		t.Errorf("events: got %v", types)
	}
}

func TestPayOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"discount exceeds bill", service.ErrDiscountExceedsBill, http.StatusBadRequest},
		{"already paid", service.ErrOrderPaid, http.StatusConflict},
		{"already cancelled", service.ErrOrderCancelled, http.StatusConflict},
		{"vanished", service.ErrOrderNotFound, http.StatusNotFound},
		{"database down", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture()
			f.svc.payFn = func(context.Context, uuid.UUID, service.PayOrderRequest) (*service.OrderResult, error) {
				return nil, tt.err
			}
			rr := f.do(t, f.cashier(), http.MethodPatch, "/orders/"+f.order.ID.String()+"/pay",
				map[string]interface{}{"payment_method": "Cash", "total_bill": "10"})
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
			if len(f.pub.types()) != 0 {
				t.Error("failed pay must not publish")
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	f := newOrderFixture()
	f.svc.cancelFn = func(_ context.Context, id uuid.UUID) (*service.OrderResult, error) {
		c := f.order
		c.State = "CANCELLED"
		return &service.OrderResult{Order: c}, nil
	}

	rr := f.do(t, f.cashier(), http.MethodPatch, "/orders/"+f.order.ID.String()+"/cancel", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var order repository.Order
	decodeData(t, rr, &order)
	if order.State != "CANCELLED" {
		t.Errorf("state: got %s", order.State)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != events.OrderCancelled {
		t.Errorf("events: got %v", types)
	}
}

func TestListUnpaid_GroupsItems(t *testing.T) {
	f := newOrderFixture()
	second := f.order
	second.ID = uuid.New()
	second.OrderNumber = 8
	f.store.orders[second.ID] = second
	paid := f.order
	paid.ID = uuid.New()
	paid.State = "PAID"
	f.store.orders[paid.ID] = paid
	f.store.items = append(f.store.items, database.OrderItem{
		ID: uuid.New(), OrderID: second.ID, MenuItemID: uuid.New(), MenuName: "Garlic Rice", Quantity: 1, PriceAtTime: numeric("50"),
	})

	rr := f.do(t, f.cashier(), http.MethodGet, "/orders/unpaid?branch_id="+f.branchID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var orders []repository.Order
	decodeData(t, rr, &orders)
	if len(orders) != 2 {
		t.Fatalf("orders: got %d, want 2", len(orders))
	}
	for _, o := range orders {
		if len(o.Items) != 1 {
			t.Errorf("order %s: got %d items, want 1", o.ID, len(o.Items))
		}
	}

	rr = f.do(t, f.cashier(), http.MethodGet, "/orders/unpaid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing branch_id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDailyStats(t *testing.T) {
	f := newOrderFixture()
	f.store.stats = database.GetDailyStatsRow{DineIn: 4, TakeOut: 2, Cancelled: 1}

	rr := f.do(t, f.cashier(), http.MethodGet, "/orders/stats/daily?branch_id="+f.branchID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var stats repository.DailyStats
	decodeData(t, rr, &stats)
	if stats != (repository.DailyStats{DineIn: 4, TakeOut: 2, Cancelled: 1}) {
		t.Errorf("stats: got %+v", stats)
	}

	arg := f.store.statsArg
	if arg.BranchID != f.branchID {
		t.Errorf("branch: got %v", arg.BranchID)
	}
	from, to := arg.From.Time, arg.To.Time
	if from.Hour() != 0 || from.Minute() != 0 || to.Sub(from).Hours() < 23 || to.Sub(from).Hours() > 25 {
		t.Errorf("window: %v .. %v", from, to)
	}
}
