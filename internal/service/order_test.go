package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	commits     int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { m.commits++; return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore. Function fields default to an
// in-memory order table; tests override the ones they care about.
type mockOrderStore struct {
	orders map[uuid.UUID]database.Order
	items  map[uuid.UUID]database.OrderItem
	menu   map[uuid.UUID]database.GetMenuItemForOrderRow

	getNextOrderNumberFn func(ctx context.Context, branchID uuid.UUID) (int32, error)
	createOrderFn        func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	payOrderFn           func(ctx context.Context, arg database.PayOrderParams) (database.Order, error)

	updated, deleted, created int
}

func newMockStore(branchID uuid.UUID) *mockOrderStore {
	m := &mockOrderStore{
		orders: make(map[uuid.UUID]database.Order),
		items:  make(map[uuid.UUID]database.OrderItem),
		menu:   make(map[uuid.UUID]database.GetMenuItemForOrderRow),
	}
	m.getNextOrderNumberFn = func(ctx context.Context, bid uuid.UUID) (int32, error) {
		return int32(len(m.orders) + 1), nil
	}
	m.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		o := database.Order{
			ID:            uuid.New(),
			BranchID:      arg.BranchID,
			UserID:        arg.UserID,
			OrderNumber:   arg.OrderNumber,
			Channel:       arg.Channel,
			PaymentMethod: arg.PaymentMethod,
			State:         enum.OrderStateOpen,
			OsNum:         arg.OsNum,
		}
		m.orders[o.ID] = o
		return o, nil
	}
	m.payOrderFn = func(ctx context.Context, arg database.PayOrderParams) (database.Order, error) {
		o, ok := m.orders[arg.ID]
		if !ok || o.State != enum.OrderStateOpen {
			return database.Order{}, pgx.ErrNoRows
		}
		o.State = enum.OrderStatePaid
		o.PaymentMethod = arg.PaymentMethod
		o.TotalBill, o.TotalDiscount = arg.TotalBill, arg.TotalDiscount
		m.orders[o.ID] = o
		return o, nil
	}
	return m
}

func (m *mockOrderStore) addMenu(branchID uuid.UUID, name, price string) uuid.UUID {
	id := uuid.New()
	m.menu[id] = database.GetMenuItemForOrderRow{ID: id, Name: name, Price: database.DecimalToNumeric(decimal.RequireFromString(price))}
	return id
}

func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	return m.getNextOrderNumberFn(ctx, branchID)
}
func (m *mockOrderStore) GetMenuItemForOrder(ctx context.Context, arg database.GetMenuItemForOrderParams) (database.GetMenuItemForOrderRow, error) {
	row, ok := m.menu[arg.ID]
	if !ok {
		return database.GetMenuItemForOrderRow{}, pgx.ErrNoRows
	}
	return row, nil
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	m.created++
	it := database.OrderItem{
		ID:          uuid.New(),
		OrderID:     arg.OrderID,
		MenuItemID:  arg.MenuItemID,
		MenuName:    m.menu[arg.MenuItemID].Name,
		Quantity:    arg.Quantity,
		PriceAtTime: arg.PriceAtTime,
		Served:      arg.Served,
	}
	m.items[it.ID] = it
	return it, nil
}
func (m *mockOrderStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}
func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}
func (m *mockOrderStore) UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) error {
	m.updated++
	it := m.items[arg.ID]
	it.Quantity, it.Served = arg.Quantity, arg.Served
	m.items[arg.ID] = it
	return nil
}
func (m *mockOrderStore) DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error {
	m.deleted++
	delete(m.items, arg.ID)
	return nil
}
func (m *mockOrderStore) UpdateOrderPaymentMethod(ctx context.Context, arg database.UpdateOrderPaymentMethodParams) (database.Order, error) {
	o := m.orders[arg.ID]
	o.PaymentMethod = arg.PaymentMethod
	m.orders[arg.ID] = o
	return o, nil
}
func (m *mockOrderStore) PayOrder(ctx context.Context, arg database.PayOrderParams) (database.Order, error) {
	return m.payOrderFn(ctx, arg)
}
func (m *mockOrderStore) CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok || o.State != enum.OrderStateOpen {
		return database.Order{}, pgx.ErrNoRows
	}
	o.State = enum.OrderStateCancelled
	m.orders[id] = o
	return o, nil
}

// --- Test helpers ---

// newTestService creates an OrderService with mocked dependencies.
func newTestService(store *mockOrderStore) (*OrderService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore), tx
}

func basicReq(branchID uuid.UUID, menuID uuid.UUID) CreateOrderRequest {
	osNum := 101
	return CreateOrderRequest{
		BranchID:      branchID,
		UserID:        uuid.New(),
		Channel:       string(enum.ChannelDineIn),
		PaymentMethod: string(enum.PaymentCash),
		OSNum:         &osNum,
		Items:         []OrderLineRequest{{MenuItemID: menuID.String(), Quantity: 2}},
	}
}

func mustCreate(t *testing.T, svc *OrderService, req CreateOrderRequest) *OrderResult {
	t.Helper()
	res, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return res
}

// =====================
// Create validation
// =====================

func TestCreateOrder_Validation(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	menuID := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, _ := newTestService(store)

	zero := 0
	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		want   error
	}{
		{"empty items", func(r *CreateOrderRequest) { r.Items = nil }, ErrEmptyItems},
		{"bad channel", func(r *CreateOrderRequest) { r.Channel = "Drive Thru" }, ErrInvalidChannel},
		{"bad payment", func(r *CreateOrderRequest) { r.PaymentMethod = "IOU" }, ErrInvalidPaymentMethod},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, ErrInvalidQuantity},
		{"bad menu id", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = "nope" }, ErrInvalidMenuItemID},
		{"unknown menu item", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = uuid.NewString() }, ErrMenuItemNotFound},
		{"zero os_num", func(r *CreateOrderRequest) { r.OSNum = &zero }, ErrInvalidOSNum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := basicReq(branchID, menuID)
			tt.mutate(&req)
			_, err := svc.CreateOrder(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got: %v", tt.want, err)
			}
		})
	}
}

func TestCreateOrder_SnapshotsMenuPrice(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	menuID := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, tx := newTestService(store)

	res := mustCreate(t, svc, basicReq(branchID, menuID))

	if len(res.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(res.Items))
	}
	if got := database.NumericToDecimal(res.Items[0].PriceAtTime); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("price_at_time: got %s, want 250", got)
	}
	if res.Order.State != enum.OrderStateOpen {
		t.Errorf("state: got %s, want OPEN", res.Order.State)
	}
	if !res.Order.OsNum.Valid || res.Order.OsNum.Int32 != 101 {
		t.Errorf("os_num: got %+v", res.Order.OsNum)
	}
	if tx.commits != 1 {
		t.Errorf("commits: got %d, want 1", tx.commits)
	}
}

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	menuID := store.addMenu(branchID, "Chicken Adobo", "250")

	createCallCount := 0
	base := store.createOrderFn
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCallCount++
		if createCallCount == 1 {
			return database.Order{}, &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "orders_branch_id_order_number_key",
			}
		}
		return base(ctx, arg)
	}

	svc, _ := newTestService(store)
	mustCreate(t, svc, basicReq(branchID, menuID))
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrder calls (1 fail + 1 success), got %d", createCallCount)
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	menuID := store.addMenu(branchID, "Chicken Adobo", "250")
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "orders_branch_id_order_number_key",
		}
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(branchID, menuID))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order") {
		t.Errorf("expected 'create order' in error message, got: %v", err)
	}
}

func TestCreateOrder_UnknownBranchOrUser(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	menuID := store.addMenu(branchID, "Chicken Adobo", "250")
	callCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		callCount++
		return database.Order{}, &pgconn.PgError{Code: "23503", ConstraintName: "orders_user_id_fkey"}
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(branchID, menuID))
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("foreign key errors should not retry: expected 1 call, got %d", callCount)
	}
}

// =====================
// Update reconciliation
// =====================

func TestUpdateOrder_Reconciles(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	rice := store.addMenu(branchID, "Garlic Rice", "50")
	sisig := store.addMenu(branchID, "Pork Sisig", "220")
	svc, _ := newTestService(store)

	req := basicReq(branchID, adobo)
	req.Items = append(req.Items, OrderLineRequest{MenuItemID: rice.String(), Quantity: 1})
	created := mustCreate(t, svc, req)

	var adoboLine database.OrderItem
	for _, it := range created.Items {
		if it.MenuItemID == adobo {
			adoboLine = it
		}
	}
	served := true
	res, err := svc.UpdateOrder(context.Background(), created.Order.ID, UpdateOrderRequest{
		PaymentMethod: string(enum.PaymentCard),
		Items: []OrderLineRequest{
			{MenuItemID: adobo.String(), Quantity: 3, OrderItemID: adoboLine.ID.String(), Served: &served},
			{MenuItemID: sisig.String(), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if store.updated != 1 || store.deleted != 1 {
		t.Errorf("updated/deleted: got %d/%d, want 1/1", store.updated, store.deleted)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(res.Items))
	}
	for _, it := range res.Items {
		switch it.MenuItemID {
		case adobo:
			if it.ID != adoboLine.ID || it.Quantity != 3 || !it.Served {
				t.Errorf("adobo line not updated in place: %+v", it)
			}
		case sisig:
			if !database.NumericToDecimal(it.PriceAtTime).Equal(decimal.NewFromInt(220)) {
				t.Errorf("new line price: got %s", database.NumericToDecimal(it.PriceAtTime))
			}
		default:
			t.Errorf("unexpected line %s", it.MenuName)
		}
	}
	if res.Order.PaymentMethod != string(enum.PaymentCard) {
		t.Errorf("payment method: got %s", res.Order.PaymentMethod)
	}
}

func TestUpdateOrder_ForeignLineIDIsInserted(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, _ := newTestService(store)
	created := mustCreate(t, svc, basicReq(branchID, adobo))

	res, err := svc.UpdateOrder(context.Background(), created.Order.ID, UpdateOrderRequest{
		Items: []OrderLineRequest{{MenuItemID: adobo.String(), Quantity: 1, OrderItemID: uuid.NewString()}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.updated != 0 {
		t.Errorf("a line id from another order must not update anything, got %d updates", store.updated)
	}
	if len(res.Items) != 1 || res.Items[0].ID == created.Items[0].ID {
		t.Errorf("expected the old line replaced by a new one, got %+v", res.Items)
	}
	if res.Order.PaymentMethod != string(enum.PaymentCash) {
		t.Errorf("empty payment method should keep the current one, got %s", res.Order.PaymentMethod)
	}
}

func TestUpdateOrder_ClosedOrder(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, _ := newTestService(store)
	created := mustCreate(t, svc, basicReq(branchID, adobo))

	if _, err := svc.CancelOrder(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := svc.UpdateOrder(context.Background(), created.Order.ID, UpdateOrderRequest{
		Items: []OrderLineRequest{{MenuItemID: adobo.String(), Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderCancelled) {
		t.Fatalf("expected ErrOrderCancelled, got: %v", err)
	}
}

func TestUpdateOrder_NotFound(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, _ := newTestService(store)

	_, err := svc.UpdateOrder(context.Background(), uuid.New(), UpdateOrderRequest{
		Items: []OrderLineRequest{{MenuItemID: adobo.String(), Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

// =====================
// Pay / cancel
// =====================

func TestPayOrder(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, _ := newTestService(store)
	created := mustCreate(t, svc, basicReq(branchID, adobo))

	res, err := svc.PayOrder(context.Background(), created.Order.ID, PayOrderRequest{
		PaymentMethod: string(enum.PaymentCash),
		TotalBill:     "500",
		TotalDiscount: "100",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.Order.State != enum.OrderStatePaid {
		t.Errorf("state: got %s, want PAID", res.Order.State)
	}
	if got := database.NumericToDecimal(res.Order.TotalDiscount); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("discount: got %s", got)
	}

	_, err = svc.PayOrder(context.Background(), created.Order.ID, PayOrderRequest{
		PaymentMethod: string(enum.PaymentCash),
		TotalBill:     "500",
	})
	if !errors.Is(err, ErrOrderPaid) {
		t.Fatalf("second pay: expected ErrOrderPaid, got: %v", err)
	}
	_, err = svc.CancelOrder(context.Background(), created.Order.ID)
	if !errors.Is(err, ErrOrderPaid) {
		t.Fatalf("cancel after pay: expected ErrOrderPaid, got: %v", err)
	}
}

func TestPayOrder_Validation(t *testing.T) {
	svc, _ := newTestService(newMockStore(uuid.New()))
	tests := []struct {
		name string
		req  PayOrderRequest
		want error
	}{
		{"bad method", PayOrderRequest{PaymentMethod: "IOU", TotalBill: "10"}, ErrInvalidPaymentMethod},
		{"bad bill", PayOrderRequest{PaymentMethod: "Cash", TotalBill: "ten"}, ErrInvalidAmount},
		{"negative bill", PayOrderRequest{PaymentMethod: "Cash", TotalBill: "-1"}, ErrInvalidAmount},
		{"negative discount", PayOrderRequest{PaymentMethod: "Cash", TotalBill: "10", TotalDiscount: "-1"}, ErrInvalidAmount},
		{"discount over bill", PayOrderRequest{PaymentMethod: "Cash", TotalBill: "10", TotalDiscount: "11"}, ErrDiscountExceedsBill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PayOrder(context.Background(), uuid.New(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got: %v", tt.want, err)
			}
		})
	}
}

func TestCancelOrder_NotFound(t *testing.T) {
	svc, _ := newTestService(newMockStore(uuid.New()))
	_, err := svc.CancelOrder(context.Background(), uuid.New())
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestCommitFailureIsReturned(t *testing.T) {
	branchID := uuid.New()
	store := newMockStore(branchID)
	adobo := store.addMenu(branchID, "Chicken Adobo", "250")
	svc, tx := newTestService(store)
	tx.commitErr = errors.New("connection reset")

	_, err := svc.CreateOrder(context.Background(), basicReq(branchID, adobo))
	if err == nil || !strings.Contains(err.Error(), "commit tx") {
		t.Fatalf("expected commit error, got: %v", err)
	}
}
