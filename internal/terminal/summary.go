package terminal

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/discount"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/settlement"
	"github.com/shopspring/decimal"
)

type LineView struct {
	LineID      uuid.UUID       `json:"line_id"`
	MenuItemID  uuid.UUID       `json:"menu_id"`
	Name        string          `json:"menu_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Served      bool            `json:"served"`
	OrderItemID *uuid.UUID      `json:"order_item_id,omitempty"`
}

// Summary is a snapshot of the working order with every derived figure
// recomputed.
type Summary struct {
	State         State              `json:"state"`
	OrderID       *uuid.UUID         `json:"order_id,omitempty"`
	Channel       enum.Channel       `json:"channel"`
	PaymentMethod enum.PaymentMethod `json:"payment_method"`
	Reference     string             `json:"os_num"`
	Table         string             `json:"table"`

	Lines       []LineView      `json:"lines"`
	ItemCount   int             `json:"item_count"`
	Total       decimal.Decimal `json:"total"`
	ServedCount int             `json:"served_count"`
	AllServed   bool            `json:"all_served"`

	Headcount int             `json:"headcount"`
	Discounts []discount.Row  `json:"discounts"`
	Discount  discount.Result `json:"discount"`

	Tendered string            `json:"tendered"`
	Received decimal.Decimal   `json:"received"`
	Tender   settlement.Tender `json:"tender"`

	CanPlace       bool     `json:"can_place"`
	CanCheckout    bool     `json:"can_checkout"`
	CanConfirm     bool     `json:"can_confirm"`
	ConfirmBlocker string   `json:"confirm_blocker,omitempty"`
	Unsynced       bool     `json:"unsynced"`
	Busy           []string `json:"busy"`
}

func (t *Terminal) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := &t.w

	s := Summary{
		State:         w.state,
		Channel:       w.channel,
		PaymentMethod: w.payment,
		Reference:     w.reference,
		Table:         w.table,
		ItemCount:     w.lines.ItemCount(),
		ServedCount:   w.lines.ServedCount(),
		AllServed:     w.lines.AllServed(),
		Headcount:     w.headcount,
		Discounts:     append([]discount.Row{}, w.discounts...),
		Tendered:      w.tendered,
		Unsynced:      w.state.persisted() && (!w.synced || w.pushed != w.revision),
		Busy:          make([]string, 0, len(t.inflight)),
	}
	if w.orderID != uuid.Nil {
		id := w.orderID
		s.OrderID = &id
	}
	for _, l := range w.lines.Lines() {
		s.Lines = append(s.Lines, LineView{
			LineID:      l.LineID,
			MenuItemID:  l.MenuItemID,
			Name:        l.Name,
			Price:       l.Price,
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal(),
			Served:      l.Served,
			OrderItemID: l.OrderItemID,
		})
	}
	if s.Lines == nil {
		s.Lines = []LineView{}
	}

	f := w.figures()
	s.Total, s.Discount, s.Received, s.Tender = f.total, f.discount, f.received, f.tender

	if w.state == StateDraft {
		_, err := w.placeRequest()
		s.CanPlace = err == nil
	}
	if w.state == StatePlaced || w.state == StateEditing {
		s.CanCheckout = w.checkoutBlocker() == nil
	}
	if w.state == StateCheckout {
		err := settlement.CanConfirm(f.tender, f.discount, w.headcount)
		s.CanConfirm = err == nil
		if err != nil {
			s.ConfirmBlocker = err.Error()
		}
	}

	for slot := range t.inflight {
		s.Busy = append(s.Busy, slot)
	}
	sort.Strings(s.Busy)
	return s
}
